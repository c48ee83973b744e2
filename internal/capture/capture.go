// Package capture turns a recovered panic (or an error) into a structured
// ErrorContext: exception type and message, formatted stack text, the failing
// function's qualified name, a marked source window, and a best-effort local
// variable snapshot. Capture never fails; every degradation collapses to a
// sentinel value.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"

	"reflexruntime/internal/logging"
	"reflexruntime/internal/types"
)

const (
	unknownTarget = "unknown"
	moduleTarget  = "unknown.module"

	// Context lines on either side of the failing line.
	sourceWindow = 2
)

// Option customizes a capture.
type Option func(*options)

type options struct {
	locals    map[string]any
	targetFQN string
}

// WithLocals attaches a caller-supplied snapshot of local variables. Go
// cannot reflect stack locals, so call sites that want them in the session
// record pass them explicitly. Values are sanitized to JSON-serializable
// representations; exotic values degrade to their string form.
func WithLocals(locals map[string]any) Option {
	return func(o *options) { o.locals = locals }
}

// WithTargetFQN overrides frame-derived target resolution. Useful when the
// failing callable is an interpreted binding whose frames point into the
// interpreter rather than at the logical function.
func WithTargetFQN(fqn string) Option {
	return func(o *options) { o.targetFQN = fqn }
}

// Callers collects program counters for the current goroutine, skipping the
// given number of frames above the caller. Use from the deferred recover
// site, before the stack unwinds further.
func Callers(skip int) []uintptr {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// FromPanic builds an ErrorContext from a recovered panic value and the
// program counters collected at the recovery point. A nil or empty caller
// slice degrades all location fields to sentinels.
func FromPanic(recovered any, callers []uintptr, opts ...Option) types.ErrorContext {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	excType := exceptionTypeName(recovered)
	excMsg := exceptionMessage(recovered)

	ec := types.ErrorContext{
		ExceptionType:    excType,
		ExceptionMessage: excMsg,
		TargetFQN:        unknownTarget,
		FilePath:         unknownTarget,
		LineNumber:       0,
		SourceCode:       "",
		TracebackStr:     fmt.Sprintf("%s: %s", excType, excMsg),
		LocalVars:        sanitizeLocals(o.locals),
	}

	if len(callers) == 0 {
		logging.CaptureDebug("capture without stack: type=%s", excType)
		if o.targetFQN != "" {
			ec.TargetFQN = o.targetFQN
		}
		return ec
	}

	frames := collectFrames(callers)
	ec.TracebackStr = formatTraceback(excType, excMsg, frames)

	if inner, ok := innermostUserFrame(frames); ok {
		ec.FilePath = inner.File
		ec.LineNumber = inner.Line
		if inner.Function == "" {
			ec.TargetFQN = moduleTarget
		} else {
			ec.TargetFQN = inner.Function
		}
		ec.SourceCode = sourceSnippet(inner.File, inner.Line)
	}
	if o.targetFQN != "" {
		ec.TargetFQN = o.targetFQN
	}

	logging.CaptureDebug("captured context: type=%s target=%s file=%s line=%d",
		ec.ExceptionType, ec.TargetFQN, ec.FilePath, ec.LineNumber)
	return ec
}

// FromError builds an ErrorContext from an error at the current call site.
func FromError(err error, opts ...Option) types.ErrorContext {
	return FromPanic(err, Callers(1), opts...)
}

func exceptionTypeName(recovered any) string {
	// Concrete runtime error types are unexported; the interface name is
	// the stable identity.
	if _, ok := recovered.(runtime.Error); ok {
		return "runtime.Error"
	}
	switch v := recovered.(type) {
	case nil:
		return "nil"
	case error:
		t := fmt.Sprintf("%T", v)
		return strings.TrimPrefix(t, "*")
	default:
		return fmt.Sprintf("%T", v)
	}
}

func exceptionMessage(recovered any) string {
	switch v := recovered.(type) {
	case nil:
		return "nil panic value"
	case error:
		return v.Error()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func collectFrames(callers []uintptr) []runtime.Frame {
	var out []runtime.Frame
	frames := runtime.CallersFrames(callers)
	for {
		frame, more := frames.Next()
		out = append(out, frame)
		if !more {
			break
		}
	}
	return out
}

// skipPrefixes lists frame owners that can never be the failing user code:
// the Go runtime's panic machinery and this module's own capture and
// orchestration entry points, which sit between the recovery site and the
// frame that actually raised.
var skipPrefixes = []string{
	"runtime.",
	"reflexruntime/internal/orchestrator.",
	"reflexruntime/internal/capture.Callers",
	"reflexruntime/internal/capture.From",
}

// innermostUserFrame walks to the innermost frame outside the runtime and
// outside the healing pipeline itself. The orchestrator hands us the counters
// collected at the recovery point, so the first qualifying frame is where the
// failure was raised.
func innermostUserFrame(frames []runtime.Frame) (runtime.Frame, bool) {
	for _, f := range frames {
		fn := f.Function
		if fn == "" {
			continue
		}
		skip := false
		for _, p := range skipPrefixes {
			if strings.HasPrefix(fn, p) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		return f, true
	}
	// Nothing but runtime frames; degrade to the outermost one so the
	// traceback at least points somewhere.
	if len(frames) > 0 {
		return frames[len(frames)-1], true
	}
	return runtime.Frame{}, false
}

func formatTraceback(excType, excMsg string, frames []runtime.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", excType, excMsg)
	for _, f := range frames {
		fn := f.Function
		if fn == "" {
			fn = "<unknown>"
		}
		fmt.Fprintf(&b, "  at %s (%s:%d)\n", fn, f.File, f.Line)
	}
	return b.String()
}

// sourceSnippet renders the failing line with two lines of context on either
// side, the failing line marked distinctly. A file that cannot be read yields
// an explanatory placeholder, never an error.
func sourceSnippet(path string, line int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("Could not retrieve source code for %s:%d", path, line)
	}
	lines := strings.Split(string(data), "\n")

	start := line - sourceWindow
	if start < 1 {
		start = 1
	}
	end := line + sourceWindow

	var out []string
	for i := start; i <= end && i <= len(lines); i++ {
		prefix := "    "
		if i == line {
			prefix = ">>> "
		}
		out = append(out, fmt.Sprintf("%s%d: %s", prefix, i, strings.TrimRight(lines[i-1], "\r\n")))
	}
	if len(out) == 0 {
		return fmt.Sprintf("Could not retrieve source code for %s:%d", path, line)
	}
	return strings.Join(out, "\n")
}

// sanitizeLocals copies the snapshot, replacing values that do not survive
// JSON rendering with their string form. Never panics, whatever the values.
func sanitizeLocals(locals map[string]any) map[string]any {
	out := make(map[string]any, len(locals))
	for k, v := range locals {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) (result any) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("<unrepresentable: %v>", r)
		}
	}()
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}
