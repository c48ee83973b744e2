// Package llm drives the model round trip of the healing pipeline: it
// renders a captured failure into an analysis prompt, sends it to a
// text-generation service, and parses the structured reply into a patch
// proposal. Transport and protocol failures never escape as faults; they
// surface as "no proposal" with a reason.
package llm

import (
	"context"
	"fmt"
	"strings"

	"reflexruntime/internal/config"
)

// Client is the minimal completion interface the generator calls.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewClient builds a client for the configured provider.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAIClient(cfg), nil
	case "gemini":
		return NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
