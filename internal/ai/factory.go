package ai

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/ai/gemini"
	"github.com/spigell/job-aggregator/internal/ai/ollama"
	"github.com/spigell/job-aggregator/internal/ai/openai"
	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/logger"
)

// NewFactory maps providers to backends:
// local-inference speaks the OpenAI chat completions protocol, self-hosted is an Ollama
// server and hosted-api is Gemini.
func NewFactory(client *http.Client, l *zap.Logger) Factory {
	if client == nil {
		client = http.DefaultClient
	}
	l = logger.OrNop(l)

	return func(ctx context.Context, cfg *aiconfig.Config) (Generator, error) {
		if cfg == nil {
			return nil, fmt.Errorf("ai config is required")
		}

		switch cfg.Provider {
		case aiconfig.ProviderLocalInference:
			return openai.NewGenerator(cfg.Endpoint, cfg.Credential, cfg.Model, client)
		case aiconfig.ProviderSelfHosted:
			return ollama.NewGenerator(cfg.Endpoint, cfg.Credential, cfg.Model, client)
		case aiconfig.ProviderHostedAPI:
			return gemini.NewGenerator(ctx, gemini.Options{
				APIKey:     cfg.Credential,
				Model:      cfg.Model,
				BaseURL:    cfg.Endpoint,
				HTTPClient: client,
			}, l)
		default:
			return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
		}
	}
}
