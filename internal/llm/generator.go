package llm

import (
	"context"
	"fmt"

	"reflexruntime/internal/logging"
	"reflexruntime/internal/types"
)

// Generator drives one analysis round trip per failure.
type Generator struct {
	client Client
}

// NewGenerator creates a generator over the given completion client.
func NewGenerator(client Client) *Generator {
	return &Generator{client: client}
}

// GenerateWithRaw asks the model for a patch proposal and returns it
// together with the raw response text for audit logging. A nil proposal
// with a non-nil error means "could not produce a patch" and the error
// carries the reason; the caller never sees a transport fault directly.
func (g *Generator) GenerateWithRaw(ctx context.Context, ec types.ErrorContext) (*types.PatchProposal, string, error) {
	if g.client == nil {
		return nil, "", fmt.Errorf("LLM client not available")
	}

	prompt := BuildPrompt(ec)
	logging.LLMDebug("sending analysis prompt: target=%s prompt_len=%d", ec.TargetFQN, len(prompt))

	raw, err := g.client.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		logging.LLMError("model call failed for %s: %v", ec.TargetFQN, err)
		return nil, "", fmt.Errorf("model call failed: %w", err)
	}

	proposal, err := ParseProposal(raw)
	if err != nil {
		logging.LLMError("could not parse model reply for %s: %v", ec.TargetFQN, err)
		return nil, raw, fmt.Errorf("could not parse model reply: %w", err)
	}

	logging.LLM("proposal generated for %s: confidence=%.2f test_cases=%d",
		ec.TargetFQN, proposal.Confidence, len(proposal.TestCases))
	return proposal, raw, nil
}

// Generate is the convenience variant that discards the raw response.
func (g *Generator) Generate(ctx context.Context, ec types.ErrorContext) (*types.PatchProposal, error) {
	proposal, _, err := g.GenerateWithRaw(ctx, ec)
	return proposal, err
}
