package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitForReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := WaitFor(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("WaitFor did not return promptly")
	}
}

func TestWaitForElapses(t *testing.T) {
	t.Parallel()

	if err := WaitFor(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		expect  time.Duration
	}{
		{attempt: 0, expect: 100 * time.Millisecond},
		{attempt: 1, expect: 200 * time.Millisecond},
		{attempt: 2, expect: 400 * time.Millisecond},
		{attempt: 10, expect: time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.attempt, 100*time.Millisecond, time.Second); got != tt.expect {
			t.Fatalf("attempt %d: expected %s, got %s", tt.attempt, tt.expect, got)
		}
	}
}
