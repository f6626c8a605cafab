// Package ai classifies listings against the user's criteria with a language model.
// The backend is chosen per call from the user's active AI configuration.
package ai

import (
	"context"

	"github.com/spigell/job-aggregator/internal/aiconfig"
)

// Generator sends one prompt to a language model and returns its text answer.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Factory builds a Generator for a configuration.
type Factory func(ctx context.Context, cfg *aiconfig.Config) (Generator, error)

// Hints describe what the user is looking for. They are rendered into the prompt.
type Hints struct {
	Keywords  []string `json:"keywords,omitempty"`
	Locations []string `json:"locations,omitempty"`
	JobTypes  []string `json:"jobTypes,omitempty"`
	// Profile is free text about the candidate, e.g. a short resume summary.
	Profile string `json:"profile,omitempty"`
	// MinConfidence turns relevant verdicts below it into irrelevant ones. Zero disables it.
	MinConfidence int `json:"minConfidence,omitempty"`
}
