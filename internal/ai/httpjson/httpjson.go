// Package httpjson is the JSON-over-HTTP exchange shared by the self-hosted model backends.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spigell/job-aggregator/internal/utils"
)

const (
	maxBodySize  = 8 << 20
	maxErrorBody = 300
)

// StatusError is a non-2xx answer from a model server.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %s: %s", e.Status, e.Body)
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

// Post sends body as JSON with an optional bearer token and decodes the answer into target.
func Post(ctx context.Context, client *http.Client, endpoint, token string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: utils.TruncateForLog(string(data), maxErrorBody)}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
