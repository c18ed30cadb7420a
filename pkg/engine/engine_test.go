package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wilhg/scout/pkg/cache/memcache"
	"github.com/wilhg/scout/pkg/errmodel"
	"github.com/wilhg/scout/pkg/oracle"
	"github.com/wilhg/scout/pkg/runstore"
	"github.com/wilhg/scout/pkg/runstore/inmem"
	"github.com/wilhg/scout/pkg/tool"
)

var objectSchema = []byte(`{"type":"object"}`)

// stubTool is a configurable test tool.
type stubTool struct {
	name      string
	cacheable bool
	ttl       time.Duration
	calls     atomic.Int64
	invoke    func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (s *stubTool) Describe() tool.Descriptor {
	return tool.Descriptor{
		Name:         s.name,
		Description:  "stub " + s.name,
		InputSchema:  objectSchema,
		OutputSchema: objectSchema,
		Cacheable:    s.cacheable,
		TTL:          s.ttl,
	}
}

func (s *stubTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	s.calls.Add(1)
	if s.invoke != nil {
		return s.invoke(ctx, args)
	}
	return map[string]any{"tool": s.name, "ok": true}, nil
}

func staticTool(name string, out map[string]any) *stubTool {
	return &stubTool{name: name, invoke: func(context.Context, map[string]any) (map[string]any, error) {
		return out, nil
	}}
}

func reportTool() *stubTool {
	return &stubTool{name: ToolReport, invoke: func(_ context.Context, args map[string]any) (map[string]any, error) {
		name, _ := args["product_name"].(string)
		return map[string]any{"report": fmt.Sprintf("# Report: %s", name)}, nil
	}}
}

func newTestEngine(t *testing.T, o oracle.Oracle, tools []tool.Tool, opts ...Option) (*Engine, runstore.Store) {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		if err := reg.Register(tl); err != nil {
			t.Fatal(err)
		}
	}
	mc := memcache.New()
	t.Cleanup(mc.Close)
	st := inmem.New()
	e, err := New(reg, o, mc, st, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return e, st
}

func invokeStep(names ...string) oracle.Step {
	reqs := make([]oracle.ToolRequest, len(names))
	for i, n := range names {
		reqs[i] = oracle.ToolRequest{Name: n, Args: map[string]any{"product_name": "iPhone 17"}}
	}
	return oracle.Step{Decision: oracle.Invoke(reqs...)}
}

func TestFullRunFinishesInThreeCycles(t *testing.T) {
	o := oracle.NewScripted(
		invokeStep(ToolProduct),
		invokeStep(ToolCompetitor, ToolSentiment),
		oracle.Step{Decision: oracle.Finish("# Final Report")},
	)
	e, st := newTestEngine(t, o,
		[]tool.Tool{
			staticTool(ToolProduct, map[string]any{"price": 999.0}),
			staticTool(ToolCompetitor, map[string]any{"competitors": []any{"A", "B"}}),
			staticTool(ToolSentiment, map[string]any{"overall": "positive"}),
			reportTool(),
		})

	state, err := e.Run(context.Background(), RunRequest{Subject: "iPhone 17", Scope: ScopeFull})
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != StatusFinished {
		t.Fatalf("status=%s want finished", state.Status)
	}
	if state.FinalReport != "# Final Report" {
		t.Fatalf("report=%q", state.FinalReport)
	}
	if state.StepsExecuted != 2 {
		t.Fatalf("steps=%d want 2", state.StepsExecuted)
	}
	for _, name := range []string{ToolProduct, ToolCompetitor, ToolSentiment} {
		if _, ok := state.Collected[name]; !ok {
			t.Fatalf("missing collected[%s]", name)
		}
	}
	if o.Calls() != 3 {
		t.Fatalf("oracle calls=%d want 3", o.Calls())
	}

	snaps, err := st.List(context.Background(), state.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) < 2 {
		t.Fatalf("snapshots=%d want >=2", len(snaps))
	}
	last, err := DecodeState(snaps[len(snaps)-1].State)
	if err != nil {
		t.Fatal(err)
	}
	if last.Status != StatusFinished {
		t.Fatalf("final snapshot status=%s", last.Status)
	}
}

func TestStepBudgetForcesBestEffortFinish(t *testing.T) {
	// A script that never finishes on its own.
	var steps []oracle.Step
	for i := 0; i < 10; i++ {
		steps = append(steps, invokeStep(ToolProduct))
	}
	o := oracle.NewScripted(steps...)
	e, _ := newTestEngine(t, o,
		[]tool.Tool{
			staticTool(ToolProduct, map[string]any{"price": 1.0}),
			reportTool(),
		},
		WithMaxSteps(3))

	state, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeFull})
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != StatusFinished {
		t.Fatalf("status=%s want finished, never failed on budget", state.Status)
	}
	if state.StepsExecuted != 3 {
		t.Fatalf("steps=%d want 3", state.StepsExecuted)
	}
	if !strings.Contains(state.FinalReport, "widget") {
		t.Fatalf("report=%q want synthesized report", state.FinalReport)
	}
}

func TestBudgetFinishDegradesWithoutReportTool(t *testing.T) {
	o := oracle.NewScripted(invokeStep(ToolProduct), invokeStep(ToolProduct))
	e, _ := newTestEngine(t, o,
		[]tool.Tool{staticTool(ToolProduct, map[string]any{"price": 1.0})},
		WithMaxSteps(2))

	state, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeFull})
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != StatusFinished {
		t.Fatalf("status=%s want finished", state.Status)
	}
	if !strings.Contains(state.FinalReport, "Missing Sections") {
		t.Fatalf("report=%q want degraded report naming missing sections", state.FinalReport)
	}
}

func TestOracleExhaustionFailsRun(t *testing.T) {
	malformed := errmodel.MalformedDecision("not json", nil)
	o := oracle.NewScripted(
		oracle.Step{Err: malformed},
		oracle.Step{Err: malformed},
		oracle.Step{Err: malformed},
	)
	e, _ := newTestEngine(t, o, []tool.Tool{reportTool()}, WithDecisionRetries(2))

	state, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeFull})
	if err == nil {
		t.Fatal("want error")
	}
	if state.Status != StatusFailed {
		t.Fatalf("status=%s want failed", state.Status)
	}
	if state.Err == "" {
		t.Fatal("failed run must carry an error")
	}
	if !errmodel.IsCode(err, errmodel.CodeRunFailed) {
		t.Fatalf("err=%v want run_failed", err)
	}
	if o.Calls() != 3 {
		t.Fatalf("oracle calls=%d want 3 (initial + 2 retries)", o.Calls())
	}
}

func TestMalformedDecisionRetriedThenRecovers(t *testing.T) {
	o := oracle.NewScripted(
		oracle.Step{Err: errmodel.MalformedDecision("bad json", nil)},
		oracle.Step{Decision: oracle.Finish("done")},
	)
	e, _ := newTestEngine(t, o, []tool.Tool{reportTool()})

	state, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeFull})
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != StatusFinished || state.FinalReport != "done" {
		t.Fatalf("status=%s report=%q", state.Status, state.FinalReport)
	}
	// The retry fed a corrective observation back to the oracle.
	found := false
	for _, m := range state.History {
		if m.Role == oracle.RoleObservation && strings.Contains(m.Content, "could not be used") {
			found = true
		}
	}
	if !found {
		t.Fatal("missing corrective observation in history")
	}
}

func TestScopeViolationBecomesObservation(t *testing.T) {
	o := oracle.NewScripted(
		invokeStep(ToolProduct),
		oracle.Step{Decision: oracle.Finish("sentiment only")},
	)
	e, _ := newTestEngine(t, o,
		[]tool.Tool{
			staticTool(ToolProduct, map[string]any{"price": 1.0}),
			staticTool(ToolSentiment, map[string]any{"overall": "positive"}),
			reportTool(),
		})

	state, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeSentimentOnly})
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != StatusFinished {
		t.Fatalf("status=%s want finished", state.Status)
	}
	if _, ok := state.Collected[ToolProduct]; ok {
		t.Fatal("out-of-scope tool output must not be collected")
	}
	found := false
	for _, m := range state.History {
		if m.Role == oracle.RoleObservation && m.Meta["error_code"] == errmodel.CodeScopeViolation {
			found = true
		}
	}
	if !found {
		t.Fatal("missing scope violation observation")
	}
}

func TestBatchFailureIsolation(t *testing.T) {
	failing := &stubTool{name: ToolCompetitor, invoke: func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("upstream down")
	}}
	o := oracle.NewScripted(
		invokeStep(ToolCompetitor, ToolSentiment),
		oracle.Step{Decision: oracle.Finish("partial")},
	)
	e, _ := newTestEngine(t, o,
		[]tool.Tool{
			failing,
			staticTool(ToolSentiment, map[string]any{"overall": "positive"}),
			reportTool(),
		})

	state, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeFull})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := state.Collected[ToolSentiment]; !ok {
		t.Fatal("surviving tool output must be collected")
	}
	if _, ok := state.Collected[ToolCompetitor]; ok {
		t.Fatal("failed tool must not be collected")
	}
	failure := false
	for _, m := range state.History {
		if m.Role == oracle.RoleObservation && strings.Contains(m.Content, "failed") {
			failure = true
		}
	}
	if !failure {
		t.Fatal("missing failure observation")
	}
}

func TestRunToleratesPreSeededCycleZero(t *testing.T) {
	o := oracle.NewScripted(oracle.Step{Decision: oracle.Finish("# Done")})
	e, st := newTestEngine(t, o, []tool.Tool{reportTool()})

	// The HTTP gateway records cycle 0 when it accepts a run.
	seed, err := EncodeState(RunState{RunID: "seeded", Subject: "widget", Scope: ScopeFull, Status: StatusRunning})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Append(context.Background(), runstore.Snapshot{RunID: "seeded", Cycle: 0, State: seed}); err != nil {
		t.Fatal(err)
	}

	state, err := e.Run(context.Background(), RunRequest{RunID: "seeded", Subject: "widget", Scope: ScopeFull})
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != StatusFinished || state.FinalReport != "# Done" {
		t.Fatalf("status=%s report=%q", state.Status, state.FinalReport)
	}
}

// invokeOnceOracle requests one tool batch and finishes on the next turn.
// Unlike a shared script it is safe for concurrent runs.
type invokeOnceOracle struct {
	tool string
	args map[string]any
}

func (o invokeOnceOracle) Decide(_ context.Context, history []oracle.Message) (oracle.Decision, error) {
	for _, m := range history {
		if m.Role == oracle.RoleObservation {
			return oracle.Finish("done"), nil
		}
	}
	return oracle.Invoke(oracle.ToolRequest{Name: o.tool, Args: o.args}), nil
}

func TestConcurrentRunsKeepScopeIsolation(t *testing.T) {
	slow := &stubTool{name: ToolCompetitor, invoke: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		select {
		case <-time.After(150 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return map[string]any{"competitors": []any{"A"}}, nil
	}}
	args := map[string]any{"product_category": "widgets"}
	e, _ := newTestEngine(t, invokeOnceOracle{tool: ToolCompetitor, args: args},
		[]tool.Tool{slow, reportTool()})

	done := make(chan RunState, 1)
	go func() {
		state, _ := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeFull})
		done <- state
	}()
	// Let the full-scope run enter the slow competitor call first.
	time.Sleep(30 * time.Millisecond)

	restricted, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeSentimentOnly})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := restricted.Collected[ToolCompetitor]; ok {
		t.Fatalf("restricted run received another run's in-flight result: %v", restricted.Collected)
	}
	violation := false
	for _, m := range restricted.History {
		if m.Role == oracle.RoleObservation && m.Meta["error_code"] == errmodel.CodeScopeViolation {
			violation = true
		}
	}
	if !violation {
		t.Fatal("missing scope violation observation in restricted run")
	}

	full := <-done
	if _, ok := full.Collected[ToolCompetitor]; !ok {
		t.Fatalf("full-scope run lost its result: %v", full.Collected)
	}
}

func TestBatchRunsInParallel(t *testing.T) {
	sleepy := func(name string) *stubTool {
		return &stubTool{name: name, invoke: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return map[string]any{"ok": true}, nil
		}}
	}
	o := oracle.NewScripted(
		invokeStep(ToolCompetitor, ToolSentiment),
		oracle.Step{Decision: oracle.Finish("done")},
	)
	e, _ := newTestEngine(t, o,
		[]tool.Tool{sleepy(ToolCompetitor), sleepy(ToolSentiment), reportTool()})

	start := time.Now()
	if _, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeFull}); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 180*time.Millisecond {
		t.Fatalf("batch took %v, want parallel dispatch near 100ms", elapsed)
	}
}

func TestDuplicateRequestsCollapse(t *testing.T) {
	counted := &stubTool{name: ToolProduct}
	o := oracle.NewScripted(
		invokeStep(ToolProduct, ToolProduct),
		oracle.Step{Decision: oracle.Finish("done")},
	)
	e, _ := newTestEngine(t, o, []tool.Tool{counted, reportTool()})

	if _, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeFull}); err != nil {
		t.Fatal(err)
	}
	if got := counted.calls.Load(); got != 1 {
		t.Fatalf("calls=%d want 1 (duplicates collapse)", got)
	}
}

func TestCacheHitSkipsSecondInvocation(t *testing.T) {
	counted := &stubTool{name: ToolProduct, cacheable: true, ttl: time.Hour}
	script := func() *oracle.Scripted {
		return oracle.NewScripted(
			invokeStep(ToolProduct),
			oracle.Step{Decision: oracle.Finish("done")},
		)
	}

	reg := tool.NewRegistry()
	if err := reg.Register(counted); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(reportTool()); err != nil {
		t.Fatal(err)
	}
	mc := memcache.New()
	t.Cleanup(mc.Close)
	st := inmem.New()

	for i := 0; i < 2; i++ {
		e, err := New(reg, script(), mc, st)
		if err != nil {
			t.Fatal(err)
		}
		state, err := e.Run(context.Background(), RunRequest{Subject: "iPhone 17", Scope: ScopeFull})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := state.Collected[ToolProduct]; !ok {
			t.Fatal("cache hit must still populate collected")
		}
	}
	if got := counted.calls.Load(); got != 1 {
		t.Fatalf("calls=%d want 1 (second run served from cache)", got)
	}
}

func TestToolTimeoutIsToolFailure(t *testing.T) {
	hang := &stubTool{name: ToolProduct, invoke: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := oracle.NewScripted(
		invokeStep(ToolProduct),
		oracle.Step{Decision: oracle.Finish("done")},
	)
	e, _ := newTestEngine(t, o, []tool.Tool{hang, reportTool()},
		WithToolTimeout(30*time.Millisecond))

	state, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeFull})
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != StatusFinished {
		t.Fatalf("status=%s want finished, timeout is not a run failure", state.Status)
	}
	found := false
	for _, m := range state.History {
		if m.Role == oracle.RoleObservation && m.Meta["error_code"] == errmodel.CodeToolTimeout {
			found = true
		}
	}
	if !found {
		t.Fatal("missing tool timeout observation")
	}
}

func TestRunDeadlineFinishesBestEffort(t *testing.T) {
	base := time.Now()
	var ticks atomic.Int64
	// Every clock read advances ten minutes, so the deadline check at the
	// second cycle fires.
	clock := func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * 10 * time.Minute)
	}
	o := oracle.NewScripted(invokeStep(ToolProduct), invokeStep(ToolProduct))
	e, _ := newTestEngine(t, o,
		[]tool.Tool{staticTool(ToolProduct, map[string]any{"price": 1.0}), reportTool()},
		WithClock(clock), WithRunTimeout(5*time.Minute))

	state, err := e.Run(context.Background(), RunRequest{Subject: "widget", Scope: ScopeFull})
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != StatusFinished {
		t.Fatalf("status=%s want finished on deadline", state.Status)
	}
}

func TestCancelledRunFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := oracle.NewScripted(invokeStep(ToolProduct))
	e, _ := newTestEngine(t, o,
		[]tool.Tool{staticTool(ToolProduct, map[string]any{"price": 1.0}), reportTool()})

	state, err := e.Run(ctx, RunRequest{Subject: "widget", Scope: ScopeFull})
	if err == nil {
		t.Fatal("want error")
	}
	if state.Status != StatusFailed {
		t.Fatalf("status=%s want failed", state.Status)
	}
	if o.Calls() != 0 {
		t.Fatalf("oracle calls=%d want 0 after pre-cycle cancellation", o.Calls())
	}
}

func TestTerminalStateIsWriteOnce(t *testing.T) {
	now := time.Now()
	var s RunState
	s.finish("report", now)
	s.fail("late failure", now.Add(time.Second))
	if s.Status != StatusFinished || s.Err != "" {
		t.Fatalf("status=%s err=%q want finished and no error", s.Status, s.Err)
	}

	var f RunState
	f.fail("boom", now)
	f.finish("late report", now.Add(time.Second))
	if f.Status != StatusFailed || f.FinalReport != "" {
		t.Fatalf("status=%s report=%q want failed and no report", f.Status, f.FinalReport)
	}
}

func TestInvalidRequestRejected(t *testing.T) {
	o := oracle.NewScripted()
	e, _ := newTestEngine(t, o, []tool.Tool{reportTool()})

	if _, err := e.Run(context.Background(), RunRequest{Subject: "", Scope: ScopeFull}); err == nil {
		t.Fatal("want error for empty subject")
	}
	if _, err := e.Run(context.Background(), RunRequest{Subject: "x", Scope: "galaxy"}); err == nil {
		t.Fatal("want error for unknown scope")
	}
}
