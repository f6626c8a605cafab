package httpjson

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPostStatusErrorTruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", 2*maxErrorBody)))
	}))
	defer srv.Close()

	var out map[string]any
	err := Post(context.Background(), srv.Client(), srv.URL, "", map[string]string{"a": "b"}, &out)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected status error, got %v", err)
	}
	if statusErr.StatusCode() != http.StatusBadGateway {
		t.Fatalf("unexpected code %d", statusErr.StatusCode())
	}
	if len(statusErr.Body) >= 2*maxErrorBody {
		t.Fatalf("body was not truncated: %d bytes", len(statusErr.Body))
	}
}

func TestPostDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	var out map[string]any
	if err := Post(context.Background(), srv.Client(), srv.URL, "", nil, &out); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPostHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var out map[string]any
	err := Post(ctx, srv.Client(), srv.URL, "", nil, &out)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
