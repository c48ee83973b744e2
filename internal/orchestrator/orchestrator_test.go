package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/goleak"

	"reflexruntime/internal/capture"
	"reflexruntime/internal/config"
	"reflexruntime/internal/registry"
	"reflexruntime/internal/types"
)

func TestMain(m *testing.M) {
	// opencensus (pulled in by the genai client) starts a permanent
	// stats worker at init.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// mockGenerator implements PatchGenerator for testing
type mockGenerator struct {
	proposal *types.PatchProposal
	raw      string
	err      error
	calls    int
	panics   bool
}

func (m *mockGenerator) GenerateWithRaw(ctx context.Context, ec types.ErrorContext) (*types.PatchProposal, string, error) {
	m.calls++
	if m.panics {
		panic("generator blew up")
	}
	return m.proposal, m.raw, m.err
}

// recordingSessions implements SessionRecorder and counts records
type recordingSessions struct {
	records []bool
}

func (r *recordingSessions) Record(ec types.ErrorContext, proposal *types.PatchProposal, success bool, raw, errMsg string) string {
	r.records = append(r.records, success)
	return fmt.Sprintf("record-%d.md", len(r.records))
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Sessions.Dir = t.TempDir()
	return cfg
}

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *registry.Manager) {
	t.Helper()
	m, err := registry.NewManager()
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := testConfig(t)
	cfg.LLM.APIKey = "" // keep the factory from building a live client
	return New(cfg, m, opts...), m
}

// divideProposal is the canonical heal for an integer divide by zero.
func divideProposal() *types.PatchProposal {
	return types.NewPatchProposal(
		"func divide(a, b int) int {\n\tif b == 0 {\n\t\treturn 0\n\t}\n\treturn a / b\n}",
		"return zero for a zero divisor",
	)
}

// panicFrom runs fn and hands its recovered panic plus the counters at the
// recovery point to the orchestrator, the way Protect does.
func panicFrom(t *testing.T, o *Orchestrator, fn func(), opts ...capture.Option) bool {
	t.Helper()
	healed := false
	recovered := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				recovered = true
				healed = o.Handle(context.Background(), r, capture.Callers(1), opts...)
			}
		}()
		fn()
	}()
	if !recovered {
		t.Fatal("function did not panic")
	}
	return healed
}

func TestOrchestrator_HealsDivideByZero(t *testing.T) {
	gen := &mockGenerator{proposal: divideProposal(), raw: "{...}"}
	sessions := &recordingSessions{}
	o, m := newTestOrchestrator(t, WithGenerator(gen), WithSessions(sessions))

	ns := m.Main()
	if err := ns.Register("divide", func(a, b int) int { return a / b }); err != nil {
		t.Fatal(err)
	}

	healed := panicFrom(t, o, func() {
		out, err := ns.Call("divide", 4, 0)
		_ = out
		_ = err
	}, capture.WithTargetFQN("main.divide"))

	if !healed {
		t.Fatal("Handle should report a successful heal")
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	if len(sessions.records) != 1 || !sessions.records[0] {
		t.Fatalf("records = %v, want exactly one success", sessions.records)
	}

	// The rebound function now handles the failing input and still divides.
	out, err := ns.Call("divide", 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].(int) != 0 {
		t.Errorf("healed divide(4, 0) = %v, want 0", out[0])
	}
	out, err = ns.Call("divide", 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].(int) != 2 {
		t.Errorf("healed divide(4, 2) = %v, want 2", out[0])
	}
}

func TestOrchestrator_AnalysisFailure(t *testing.T) {
	gen := &mockGenerator{err: errors.New("model unavailable"), raw: "partial output"}
	sessions := &recordingSessions{}
	o, _ := newTestOrchestrator(t, WithGenerator(gen), WithSessions(sessions))

	healed := o.Handle(context.Background(), "boom", nil)
	if healed {
		t.Fatal("analysis failure must not report healed")
	}
	if len(sessions.records) != 1 || sessions.records[0] {
		t.Fatalf("records = %v, want exactly one failure", sessions.records)
	}
}

func TestOrchestrator_ApplicationFailure(t *testing.T) {
	// Proposal targets a function that was never registered.
	gen := &mockGenerator{proposal: divideProposal(), raw: "{...}"}
	sessions := &recordingSessions{}
	o, _ := newTestOrchestrator(t, WithGenerator(gen), WithSessions(sessions))

	healed := o.Handle(context.Background(), "boom", nil, capture.WithTargetFQN("main.divide"))
	if healed {
		t.Fatal("application failure must not report healed")
	}
	if len(sessions.records) != 1 || sessions.records[0] {
		t.Fatalf("records = %v, want exactly one failure", sessions.records)
	}
}

func TestOrchestrator_NoGenerator(t *testing.T) {
	sessions := &recordingSessions{}
	o, _ := newTestOrchestrator(t, WithGenerator(nil), WithSessions(sessions))

	if o.Handle(context.Background(), "boom", nil) {
		t.Fatal("Handle without a generator must not heal")
	}
	if len(sessions.records) != 1 {
		t.Fatalf("records = %d, want exactly one failure record", len(sessions.records))
	}
}

func TestOrchestrator_InternalFaultRecovered(t *testing.T) {
	gen := &mockGenerator{panics: true}
	sessions := &recordingSessions{}
	o, _ := newTestOrchestrator(t, WithGenerator(gen), WithSessions(sessions))

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("internal fault escaped Handle: %v", r)
		}
	}()
	if o.Handle(context.Background(), "boom", nil) {
		t.Fatal("internal fault must report unhealed")
	}
}

func TestOrchestrator_PatchBudget(t *testing.T) {
	gen := &mockGenerator{proposal: divideProposal(), raw: "{...}"}
	sessions := &recordingSessions{}
	o, m := newTestOrchestrator(t,
		WithGenerator(gen),
		WithSessions(sessions),
		WithMaxPatchesPerTarget(1),
	)

	ns := m.Main()
	_ = ns.Register("divide", func(a, b int) int { return a / b })

	if !o.Handle(context.Background(), "boom", nil, capture.WithTargetFQN("main.divide")) {
		t.Fatal("first heal should succeed")
	}
	if o.Handle(context.Background(), "boom", nil, capture.WithTargetFQN("main.divide")) {
		t.Fatal("second heal should be refused by the budget")
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1 (budget skips the model)", gen.calls)
	}
	if len(sessions.records) != 2 {
		t.Errorf("records = %d, want one per Handle", len(sessions.records))
	}
}

func TestProtect_RepanicsWhenUnhealed(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""
	if _, err := Activate(cfg, WithGenerator(&mockGenerator{err: errors.New("down")}), WithSessions(&recordingSessions{})); err != nil {
		t.Fatal(err)
	}
	defer Deactivate()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("unhealed panic must propagate out of Protect")
		}
	}()
	Protect(func() { panic("unrecoverable") })
}

func TestRecover_ManualEntry(t *testing.T) {
	Deactivate()
	if Recover("boom", nil) {
		t.Error("Recover without an active orchestrator must report unhealed")
	}
	if Recover(nil, nil) {
		t.Error("Recover of nil must be a no-op")
	}

	cfg := testConfig(t)
	if _, err := Activate(cfg, WithGenerator(&mockGenerator{err: errors.New("down")}), WithSessions(&recordingSessions{})); err != nil {
		t.Fatal(err)
	}
	defer Deactivate()

	if Recover("boom", capture.Callers(0)) {
		t.Error("failed analysis must report unhealed through Recover")
	}
}

func TestProtect_PassthroughWithoutActivation(t *testing.T) {
	Deactivate()

	ran := false
	Protect(func() { ran = true })
	if !ran {
		t.Fatal("Protect should run fn when no orchestrator is active")
	}
}
