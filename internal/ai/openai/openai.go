// Package openai talks to OpenAI compatible chat completion servers such as llama.cpp,
// LM Studio or vLLM running next to the user.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/spigell/job-aggregator/internal/ai/httpjson"
)

type Generator struct {
	endpoint string
	token    string
	model    string
	client   *http.Client
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// NewGenerator accepts the server root or its /v1 base. The token is optional.
func NewGenerator(endpoint, token, model string, client *http.Client) (*Generator, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("openai compatible endpoint is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		return nil, errors.New("model is required")
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Generator{endpoint: completionsURL(endpoint), token: token, model: model, client: client}, nil
}

func completionsURL(endpoint string) string {
	if strings.HasSuffix(endpoint, "/chat/completions") {
		return endpoint
	}
	if strings.HasSuffix(endpoint, "/v1") {
		return endpoint + "/chat/completions"
	}
	return endpoint + "/v1/chat/completions"
}

func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := chatRequest{
		Model: g.model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var resp chatResponse
	if err := httpjson.Post(ctx, g.client, g.endpoint, g.token, req, &resp); err != nil {
		return "", err
	}

	for _, choice := range resp.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text, nil
		}
	}
	return "", errors.New("chat completion returned no content")
}

func (g *Generator) Model() string {
	return g.model
}
