// Package ollama talks to a self-hosted Ollama server.
package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/spigell/job-aggregator/internal/ai/httpjson"
)

const generatePath = "/api/generate"

type Generator struct {
	endpoint string
	token    string
	model    string
	client   *http.Client
}

type generateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// NewGenerator expects the server root, e.g. http://localhost:11434. The token is optional
// and is sent as a bearer token for servers behind an authenticating proxy.
func NewGenerator(endpoint, token, model string, client *http.Client) (*Generator, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("ollama endpoint is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		return nil, errors.New("ollama model is required")
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Generator{endpoint: endpoint, token: token, model: model, client: client}, nil
}

func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := generateRequest{
		Model:   g.model,
		System:  system,
		Prompt:  prompt,
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": 0.2},
	}

	var resp generateResponse
	if err := httpjson.Post(ctx, g.client, g.endpoint+generatePath, g.token, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}

	output := strings.TrimSpace(resp.Response)
	if output == "" {
		return "", errors.New("ollama returned empty response")
	}
	return output, nil
}

func (g *Generator) Model() string {
	return g.model
}
