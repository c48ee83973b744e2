// Package reflexruntime is the public surface of the self-healing layer.
// Embed it in a program by activating the runtime once at startup and
// wrapping fragile entry points with Protect:
//
//	cfg, _ := reflexruntime.LoadConfig("reflex.yaml")
//	rt, err := reflexruntime.Activate(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	rt.Namespaces().Main().Register("divide", divide)
//	reflexruntime.Protect(func() { run() })
//
// A protected panic is captured, analyzed by the configured model, and on
// success the failing function is hot-swapped in the live namespace; the
// attempt is recorded as a markdown session file either way. Unhealed
// panics propagate unchanged.
package reflexruntime

import (
	"reflexruntime/internal/capture"
	"reflexruntime/internal/config"
	"reflexruntime/internal/orchestrator"
)

// Config is the runtime configuration.
type Config = config.Config

// Runtime is an activated healing pipeline.
type Runtime = orchestrator.Orchestrator

// Option configures the runtime at activation.
type Option = orchestrator.Option

// CaptureOption customizes failure capture at a Recover call site.
type CaptureOption = capture.Option

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads configuration from path; a missing file yields defaults
// with environment overrides applied.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Activate installs the process-wide healing runtime.
func Activate(cfg Config, opts ...Option) (*Runtime, error) {
	return orchestrator.Activate(cfg, opts...)
}

// Deactivate removes the process-wide runtime; Protect becomes a
// passthrough again.
func Deactivate() { orchestrator.Deactivate() }

// Protect runs fn under the healing runtime. Unhealed panics re-raise.
func Protect(fn func()) { orchestrator.Protect(fn) }

// ProtectErr runs fn and feeds a returned error to the healing runtime;
// the error is returned either way.
func ProtectErr(fn func() error) error { return orchestrator.ProtectErr(fn) }

// Recover forwards an already-recovered panic value to the runtime from a
// caller-managed deferred recover. Collect the counters with Callers at the
// recovery point. Returns true when the failure was healed.
func Recover(recovered any, callers []uintptr, opts ...CaptureOption) bool {
	return orchestrator.Recover(recovered, callers, opts...)
}

// Callers collects program counters at the recovery point for Recover.
func Callers(skip int) []uintptr { return capture.Callers(skip + 1) }

// WithLocals attaches a caller-supplied local variable snapshot to the
// session record.
func WithLocals(locals map[string]any) CaptureOption { return capture.WithLocals(locals) }

// WithTarget pins the failing function's qualified name instead of deriving
// it from stack frames.
func WithTarget(fqn string) CaptureOption { return capture.WithTargetFQN(fqn) }
