// Package types defines the data model shared across the self-healing
// pipeline: the captured failure context, the model's patch proposal, and
// the record of an applied (or rejected) patch.
package types

import (
	"time"

	"github.com/google/uuid"
)

// PatchStatus describes where a patch is in its lifecycle.
type PatchStatus string

const (
	PatchPending    PatchStatus = "pending"
	PatchApplied    PatchStatus = "applied"
	PatchFailed     PatchStatus = "failed"
	PatchRolledBack PatchStatus = "rolled_back"
)

// ErrorContext is an immutable snapshot of one failure. It is built once per
// recovered panic, consumed by the patch generator and the session logger,
// and then discarded; only its rendered session record survives.
type ErrorContext struct {
	ExceptionType    string         `json:"exception_type"`
	ExceptionMessage string         `json:"exception_message"`
	TracebackStr     string         `json:"traceback_str"`
	TargetFQN        string         `json:"target_fqn"`
	SourceCode       string         `json:"source_code"`
	FilePath         string         `json:"file_path"`
	LineNumber       int            `json:"line_number"`
	LocalVars        map[string]any `json:"local_vars"`
}

// FunctionName returns the simple (unqualified) name of the failing callable.
func (ec ErrorContext) FunctionName() string {
	fqn := ec.TargetFQN
	for i := len(fqn) - 1; i >= 0; i-- {
		if fqn[i] == '.' {
			return fqn[i+1:]
		}
	}
	return fqn
}

// PatchProposal is the model's candidate fix. PatchCode is expected to hold a
// complete function definition reusing the original name and signature. A nil
// *PatchProposal signals "no patch produced". Never mutated after construction.
type PatchProposal struct {
	PatchCode   string   `json:"patch_code"`
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"`
	TestCases   []string `json:"test_cases"`
}

// NewPatchProposal constructs a proposal with the default confidence used
// when a caller builds one directly rather than parsing a model payload.
func NewPatchProposal(patchCode, explanation string) *PatchProposal {
	return &PatchProposal{
		PatchCode:   patchCode,
		Explanation: explanation,
		Confidence:  0.8,
		TestCases:   []string{},
	}
}

// PatchResult records the outcome of one apply attempt.
type PatchResult struct {
	PatchID     string      `json:"patch_id"`
	Status      PatchStatus `json:"status"`
	TargetFQN   string      `json:"target_fqn"`
	PatchedCode string      `json:"patched_code"`
	AppliedAt   time.Time   `json:"applied_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// NewPatchResult creates a pending result for the given target.
func NewPatchResult(targetFQN, patchedCode string) *PatchResult {
	return &PatchResult{
		PatchID:     uuid.NewString(),
		Status:      PatchPending,
		TargetFQN:   targetFQN,
		PatchedCode: patchedCode,
	}
}

// MarkApplied transitions the result to applied.
func (r *PatchResult) MarkApplied() {
	r.Status = PatchApplied
	r.AppliedAt = time.Now()
}

// MarkFailed transitions the result to failed with a reason.
func (r *PatchResult) MarkFailed(reason string) {
	r.Status = PatchFailed
	r.Error = reason
}
