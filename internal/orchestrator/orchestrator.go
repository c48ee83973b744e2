// Package orchestrator drives the full healing pipeline: capture the
// failure, ask the model for a patch, apply it into the live namespace,
// and record the session. One attempt per failure, no retries.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"

	"reflexruntime/internal/applier"
	"reflexruntime/internal/capture"
	"reflexruntime/internal/config"
	"reflexruntime/internal/llm"
	"reflexruntime/internal/logging"
	"reflexruntime/internal/registry"
	"reflexruntime/internal/session"
	"reflexruntime/internal/types"
)

// PatchGenerator produces a patch proposal for a captured failure.
// Satisfied by *llm.Generator.
type PatchGenerator interface {
	GenerateWithRaw(ctx context.Context, ec types.ErrorContext) (*types.PatchProposal, string, error)
}

// PatchApplier installs a proposal into the live namespace.
// Satisfied by *applier.Applier.
type PatchApplier interface {
	Apply(ec types.ErrorContext, proposal *types.PatchProposal) (*types.PatchResult, error)
}

// SessionRecorder persists one session record per healing attempt.
// Satisfied by *session.Logger.
type SessionRecorder interface {
	Record(ec types.ErrorContext, proposal *types.PatchProposal, success bool, rawResponse, errorMessage string) string
}

// Orchestrator owns the healing pipeline for one process.
type Orchestrator struct {
	mu sync.Mutex

	namespaces *registry.Manager
	generator  PatchGenerator
	applier    PatchApplier
	sessions   SessionRecorder

	// patchesApplied counts successful patches per target FQN so a
	// function that keeps failing cannot consume the model forever.
	patchesApplied map[string]int
	maxPerTarget   int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGenerator overrides the patch generator.
func WithGenerator(g PatchGenerator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// WithApplier overrides the patch applier.
func WithApplier(a PatchApplier) Option {
	return func(o *Orchestrator) { o.applier = a }
}

// WithSessions overrides the session recorder.
func WithSessions(s SessionRecorder) Option {
	return func(o *Orchestrator) { o.sessions = s }
}

// WithMaxPatchesPerTarget overrides the per-function patch budget.
func WithMaxPatchesPerTarget(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxPerTarget = n
		}
	}
}

// New builds an Orchestrator from configuration. The LLM client comes
// from cfg.LLM; a client construction failure leaves the generator nil,
// which Handle reports as an analysis failure rather than a startup one;
// the process being debugged must never be taken down by its debugger.
func New(cfg config.Config, namespaces *registry.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		namespaces:     namespaces,
		applier:        applier.New(namespaces),
		sessions:       session.NewLogger(cfg.Sessions.Dir),
		patchesApplied: make(map[string]int),
		maxPerTarget:   cfg.Healing.MaxPatchesPerTarget,
	}
	if o.maxPerTarget <= 0 {
		o.maxPerTarget = 3
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		logging.OrchestratorError("LLM client unavailable: %v", err)
	} else {
		o.generator = llm.NewGenerator(client)
	}

	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Namespaces exposes the registry manager the orchestrator patches into.
func (o *Orchestrator) Namespaces() *registry.Manager { return o.namespaces }

// Handle runs one healing attempt for a recovered panic and reports
// whether a patch was applied. Exactly one session record is written per
// call, success or failure. Handle never panics: any internal fault is
// recovered and reported as false so the healing layer cannot crash the
// program it protects. Concurrent failures are serialized; the live
// namespace is patched one function at a time.
func (o *Orchestrator) Handle(ctx context.Context, recovered any, callers []uintptr, opts ...capture.Option) (healed bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.OrchestratorError("internal fault during healing: %v", r)
			healed = false
		}
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	ec := capture.FromPanic(recovered, callers, opts...)
	logging.Orchestrator("handling %s in %s (%s:%d)", ec.ExceptionType, ec.TargetFQN, ec.FilePath, ec.LineNumber)

	fmt.Fprintf(os.Stderr, "\n[ReflexRuntime] Caught %s: %s\n", ec.ExceptionType, ec.ExceptionMessage)

	if o.patchesApplied[ec.TargetFQN] >= o.maxPerTarget {
		logging.Orchestrator("patch budget exhausted for %s (%d applied)", ec.TargetFQN, o.patchesApplied[ec.TargetFQN])
		o.record(ec, nil, false, "", fmt.Sprintf("patch budget exhausted for %s", ec.TargetFQN))
		return false
	}

	if o.generator == nil {
		o.record(ec, nil, false, "", "LLM client not available")
		return false
	}

	fmt.Fprintf(os.Stderr, "[ReflexRuntime] Analyzing failure in %s...\n", ec.TargetFQN)

	proposal, raw, err := o.generator.GenerateWithRaw(ctx, ec)
	if err != nil {
		logging.OrchestratorError("analysis failed for %s: %v", ec.TargetFQN, err)
		fmt.Fprintf(os.Stderr, "[ReflexRuntime] Analysis failed: %v\n", err)
		o.record(ec, nil, false, raw, err.Error())
		return false
	}

	result, err := o.applier.Apply(ec, proposal)
	if err != nil {
		logging.OrchestratorError("patch application failed for %s: %v", ec.TargetFQN, err)
		fmt.Fprintf(os.Stderr, "[ReflexRuntime] Patch application failed: %v\n", err)
		o.record(ec, proposal, false, raw, err.Error())
		return false
	}

	o.patchesApplied[ec.TargetFQN]++
	logging.Orchestrator("patch %s applied to %s (confidence %.2f)", result.PatchID, ec.TargetFQN, proposal.Confidence)
	fmt.Fprintf(os.Stderr, "[ReflexRuntime] Patch applied to %s: %s\n", ec.TargetFQN, proposal.Explanation)

	// The swap is confirmed; a fault in the record write must not undo that.
	o.record(ec, proposal, true, raw, "")
	return true
}

// record writes the session record inside its own recover so a logging
// fault can never change the outcome of a healing attempt.
func (o *Orchestrator) record(ec types.ErrorContext, proposal *types.PatchProposal, success bool, raw, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			logging.OrchestratorError("session record write faulted: %v", r)
		}
	}()
	o.sessions.Record(ec, proposal, success, raw, errMsg)
}

// HandleError runs the pipeline for a plain error value instead of a
// recovered panic.
func (o *Orchestrator) HandleError(ctx context.Context, err error, opts ...capture.Option) bool {
	if err == nil {
		return false
	}
	return o.Handle(ctx, err, capture.Callers(1), opts...)
}
