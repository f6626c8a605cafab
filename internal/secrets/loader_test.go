package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	filled := filepath.Join(dir, "key")
	if err := os.WriteFile(filled, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	t.Setenv("JOBAGG_TEST_SECRET", " from-env ")

	tests := []struct {
		name    string
		src     Source
		expect  string
		wantErr string
	}{
		{name: "file wins", src: Source{File: filled, Value: "inline", Env: "JOBAGG_TEST_SECRET"}, expect: "from-file"},
		{name: "inline before env", src: Source{Value: " inline ", Env: "JOBAGG_TEST_SECRET"}, expect: "inline"},
		{name: "env fallback", src: Source{Env: "JOBAGG_TEST_SECRET"}, expect: "from-env"},
		{name: "empty file", src: Source{Name: "jooble api key", File: empty}, wantErr: "jooble api key file"},
		{name: "missing", src: Source{Name: "adzuna app key"}, wantErr: "adzuna app key is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	got, err := LoadOptional(Source{Name: "token", Env: "JOBAGG_UNSET_SECRET"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty secret, got %q", got)
	}

	if _, err := LoadOptional(Source{File: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("expected read error for missing file")
	}
}
