package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spigell/job-aggregator/internal/ai/httpjson"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != generatePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "llama3" || req.System != "sys" || req.Prompt != "hello" || req.Stream || req.Format != "json" {
			t.Errorf("unexpected request %+v", req)
		}

		_ = json.NewEncoder(w).Encode(generateResponse{Model: "llama3", Response: ` {"relevant": true} `, Done: true})
	}))
	defer srv.Close()

	g, err := NewGenerator(srv.URL+"/", "secret", "llama3", srv.Client())
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	out, err := g.Generate(context.Background(), "sys", "hello")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != `{"relevant": true}` {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestGenerateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Model {
		case "missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
		case "empty":
			_ = json.NewEncoder(w).Encode(generateResponse{Done: true})
		default:
			_ = json.NewEncoder(w).Encode(generateResponse{Error: "out of memory"})
		}
	}))
	defer srv.Close()

	g, _ := NewGenerator(srv.URL, "", "missing", srv.Client())
	_, err := g.Generate(context.Background(), "sys", "p")
	var statusErr *httpjson.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode() != http.StatusNotFound {
		t.Fatalf("expected status error, got %v", err)
	}

	g, _ = NewGenerator(srv.URL, "", "empty", srv.Client())
	if _, err := g.Generate(context.Background(), "sys", "p"); err == nil {
		t.Fatal("expected error for empty response")
	}

	g, _ = NewGenerator(srv.URL, "", "oom", srv.Client())
	if _, err := g.Generate(context.Background(), "sys", "p"); err == nil || err.Error() != "out of memory" {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestNewGeneratorValidation(t *testing.T) {
	if _, err := NewGenerator(" ", "", "llama3", nil); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewGenerator("http://localhost:11434", "", "", nil); err == nil {
		t.Fatal("expected error for empty model")
	}
}
