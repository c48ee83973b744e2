package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"reflexruntime/internal/capture"
	"reflexruntime/internal/config"
	"reflexruntime/internal/logging"
	"reflexruntime/internal/registry"
)

var (
	defaultMu   sync.Mutex
	defaultOnce *Orchestrator
)

// Activate installs the process-wide orchestrator. Subsequent calls
// replace it; Default returns the current one. Activation is what turns
// Protect from a plain recover wrapper into a healing hook.
func Activate(cfg config.Config, opts ...Option) (*Orchestrator, error) {
	namespaces, err := registry.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize namespace registry: %w", err)
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()

	o := New(cfg, namespaces, opts...)
	defaultOnce = o
	logging.Boot("healing activated (provider=%s model=%s sessions=%s)", cfg.LLM.Provider, cfg.LLM.Model, cfg.Sessions.Dir)
	return o, nil
}

// Default returns the process-wide orchestrator, or nil before Activate.
func Default() *Orchestrator {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultOnce
}

// Deactivate removes the process-wide orchestrator.
func Deactivate() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultOnce = nil
}

// Protect runs fn and routes any panic through the process-wide
// orchestrator. An unhealed panic is re-raised unchanged so the caller's
// normal crash path still happens; healing only ever swallows failures
// it actually patched. Without an active orchestrator Protect is a
// transparent passthrough.
func Protect(fn func()) {
	o := Default()
	if o == nil {
		fn()
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if !o.Handle(context.Background(), r, capture.Callers(2)) {
				panic(r)
			}
		}
	}()
	fn()
}

// Recover is the manual catch-and-forward entry for call sites that manage
// their own deferred recover. Pass the recovered value and the counters
// collected at the recovery point; the return value reports whether the
// failure was healed, so the caller decides whether to re-panic.
func Recover(recovered any, callers []uintptr, opts ...capture.Option) bool {
	if recovered == nil {
		return false
	}
	o := Default()
	if o == nil {
		return false
	}
	return o.Handle(context.Background(), recovered, callers, opts...)
}

// ProtectErr runs fn and routes a returned error through the healing
// pipeline. The error is returned either way; healing repairs the
// function binding for future calls, it does not rewrite this one.
func ProtectErr(fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if o := Default(); o != nil {
		o.HandleError(context.Background(), err)
	}
	return err
}
