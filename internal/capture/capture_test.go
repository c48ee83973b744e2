package capture

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reflexruntime/internal/types"
)

func TestFromPanic_RuntimeError(t *testing.T) {
	ctx := capturePanic(t, func() {
		var a, b = 4, 0
		_ = a / b
	})

	if ctx.ExceptionType != "runtime.Error" {
		t.Errorf("ExceptionType = %q, want runtime.Error", ctx.ExceptionType)
	}
	if !strings.Contains(ctx.ExceptionMessage, "divide by zero") {
		t.Errorf("ExceptionMessage = %q, want divide-by-zero text", ctx.ExceptionMessage)
	}
	if ctx.TargetFQN == "unknown" {
		t.Error("TargetFQN should resolve to the raising frame")
	}
	if ctx.LineNumber == 0 {
		t.Error("LineNumber should point at the failing line")
	}
	if !strings.Contains(ctx.TracebackStr, "at ") {
		t.Errorf("TracebackStr missing frames:\n%s", ctx.TracebackStr)
	}
}

func TestFromPanic_StringValue(t *testing.T) {
	ctx := capturePanic(t, func() { panic("boom") })

	if ctx.ExceptionType != "string" {
		t.Errorf("ExceptionType = %q, want string", ctx.ExceptionType)
	}
	if ctx.ExceptionMessage != "boom" {
		t.Errorf("ExceptionMessage = %q, want boom", ctx.ExceptionMessage)
	}
}

func TestFromPanic_NilStack(t *testing.T) {
	ctx := FromPanic(errors.New("standalone"), nil)

	if ctx.TargetFQN != "unknown" {
		t.Errorf("TargetFQN = %q, want unknown sentinel", ctx.TargetFQN)
	}
	if ctx.FilePath != "unknown" {
		t.Errorf("FilePath = %q, want unknown sentinel", ctx.FilePath)
	}
	if ctx.LineNumber != 0 {
		t.Errorf("LineNumber = %d, want 0", ctx.LineNumber)
	}
	if ctx.TracebackStr == "" {
		t.Error("TracebackStr should still carry type and message")
	}
}

func TestFromPanic_TargetOverride(t *testing.T) {
	ctx := FromPanic("boom", nil, WithTargetFQN("main.divide"))
	if ctx.TargetFQN != "main.divide" {
		t.Errorf("TargetFQN = %q, want override", ctx.TargetFQN)
	}
}

func TestFromPanic_NeverRaises(t *testing.T) {
	// Capture of pathological inputs must degrade, not panic.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("capture panicked: %v", r)
		}
	}()

	FromPanic(nil, nil)
	FromPanic(struct{ X chan int }{make(chan int)}, Callers(0))
	FromPanic("x", []uintptr{0, 0, 0})
}

func TestFromError_Location(t *testing.T) {
	ctx := FromError(errors.New("bad state"))

	if ctx.ExceptionType == "runtime.Error" {
		t.Errorf("plain error misclassified as runtime error")
	}
	if !strings.HasSuffix(ctx.FilePath, "capture_test.go") {
		t.Errorf("FilePath = %q, want this test file", ctx.FilePath)
	}
}

func TestSourceSnippet_MarksFailingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.go")
	src := "line one\nline two\nline three\nline four\nline five\nline six\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	snippet := sourceSnippet(path, 3)
	if !strings.Contains(snippet, ">>> 3: line three") {
		t.Errorf("failing line not marked:\n%s", snippet)
	}
	if !strings.Contains(snippet, "    1: line one") || !strings.Contains(snippet, "    5: line five") {
		t.Errorf("context window wrong:\n%s", snippet)
	}
	if strings.Contains(snippet, "6: line six") {
		t.Errorf("window exceeded two lines of context:\n%s", snippet)
	}
}

func TestSourceSnippet_UnreadableFile(t *testing.T) {
	snippet := sourceSnippet("/nonexistent/source.go", 10)
	want := "Could not retrieve source code for /nonexistent/source.go:10"
	if snippet != want {
		t.Errorf("snippet = %q, want placeholder %q", snippet, want)
	}
}

func TestSanitizeLocals_ExoticValues(t *testing.T) {
	locals := map[string]any{
		"count": 3,
		"name":  "divide",
		"ch":    make(chan int),
		"fn":    func() {},
	}

	out := sanitizeLocals(locals)

	if out["count"] != 3 {
		t.Errorf("serializable value altered: %v", out["count"])
	}
	if _, ok := out["ch"].(string); !ok {
		t.Errorf("channel should degrade to string, got %T", out["ch"])
	}
	if _, ok := out["fn"].(string); !ok {
		t.Errorf("func should degrade to string, got %T", out["fn"])
	}
}

// capturePanic runs fn, recovers its panic, and captures at the recovery
// point the way the orchestrator does.
func capturePanic(t *testing.T, fn func()) types.ErrorContext {
	t.Helper()
	var ec types.ErrorContext
	done := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				ec = FromPanic(r, Callers(1))
				done = true
			}
		}()
		fn()
	}()
	if !done {
		t.Fatal("function did not panic")
	}
	return ec
}
