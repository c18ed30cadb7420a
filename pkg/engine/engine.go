// Package engine runs the bounded decision loop at the core of a market
// analysis: ask the oracle what to do, fan out the requested tool calls,
// fold the observations back into the run state, and stop on a finish
// decision, the step budget, or the run deadline.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/wilhg/scout/pkg/cache"
	"github.com/wilhg/scout/pkg/errmodel"
	"github.com/wilhg/scout/pkg/oracle"
	"github.com/wilhg/scout/pkg/prompt"
	"github.com/wilhg/scout/pkg/runstore"
	"github.com/wilhg/scout/pkg/tool"
)

const (
	// DefaultMaxSteps caps decision cycles per run.
	DefaultMaxSteps = 8
	// DefaultDecisionRetries is how many times a failed Decide is retried.
	DefaultDecisionRetries = 2
	// DefaultToolTimeout bounds one tool call; expiry is a tool failure.
	DefaultToolTimeout = 30 * time.Second
	// DefaultRunTimeout bounds a whole run's wall clock.
	DefaultRunTimeout = 5 * time.Minute
	// DefaultReportTTL is the cache lifetime of synthesized reports.
	DefaultReportTTL = 24 * time.Hour
)

// PromptFunc renders the system framing handed to the oracle at run start.
type PromptFunc func(req RunRequest) (string, error)

// RunRequest starts one analysis run.
type RunRequest struct {
	RunID                  string
	Subject                string
	Scope                  Scope
	IncludeRecommendations bool
}

// Engine drives analysis runs. One goroutine owns each run; intra-run
// parallelism exists only at the tool fan-out. Registry, cache and store
// are shared across runs and must be safe for concurrent use.
type Engine struct {
	registry *tool.Registry
	oracle   oracle.Oracle
	cache    cache.Cache
	store    runstore.Store
	log      *slog.Logger

	maxSteps        int
	decisionRetries int
	toolTimeout     time.Duration
	runTimeout      time.Duration
	reportTTL       time.Duration
	systemPrompt    PromptFunc
	now             func() time.Time

	flight singleflight.Group

	tracer      trace.Tracer
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	toolCalls   metric.Int64Counter
}

// Option configures the Engine at construction time.
type Option func(*Engine)

// WithMaxSteps overrides the decision cycle budget.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithDecisionRetries overrides how many times Decide failures are retried.
func WithDecisionRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.decisionRetries = n
		}
	}
}

// WithToolTimeout overrides the per-call timeout.
func WithToolTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.toolTimeout = d
		}
	}
}

// WithRunTimeout overrides the run wall-clock timeout.
func WithRunTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.runTimeout = d
		}
	}
}

// WithReportTTL overrides the synthesized report cache lifetime.
func WithReportTTL(d time.Duration) Option {
	return func(e *Engine) { e.reportTTL = d }
}

// WithSystemPrompt replaces the default system framing builder.
func WithSystemPrompt(fn PromptFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.systemPrompt = fn
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New constructs an Engine. Registry, oracle, cache and store are required.
func New(reg *tool.Registry, o oracle.Oracle, c cache.Cache, st runstore.Store, opts ...Option) (*Engine, error) {
	if reg == nil || o == nil || c == nil || st == nil {
		return nil, errors.New("engine: registry, oracle, cache and store are required")
	}
	e := &Engine{
		registry:        reg,
		oracle:          o,
		cache:           c,
		store:           st,
		log:             slog.Default(),
		maxSteps:        DefaultMaxSteps,
		decisionRetries: DefaultDecisionRetries,
		toolTimeout:     DefaultToolTimeout,
		runTimeout:      DefaultRunTimeout,
		reportTTL:       DefaultReportTTL,
		now:             time.Now,
		tracer:          otel.Tracer("engine"),
	}
	e.systemPrompt = e.defaultPrompt
	for _, opt := range opts {
		opt(e)
	}
	meter := otel.Meter("scout/engine")
	e.cacheHits, _ = meter.Int64Counter("scout.cache.hits")
	e.cacheMisses, _ = meter.Int64Counter("scout.cache.misses")
	e.toolCalls, _ = meter.Int64Counter("scout.tool.calls")
	return e, nil
}

func (e *Engine) defaultPrompt(req RunRequest) (string, error) {
	var tools []prompt.ToolSummary
	e.registry.Range(func(name string, t tool.Tool) {
		tools = append(tools, prompt.ToolSummary{Name: name, Description: t.Describe().Description})
	})
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return prompt.Render(prompt.DefaultAnalysisPrompt, prompt.AnalysisVars{
		Subject:                req.Subject,
		Scope:                  string(req.Scope),
		Tools:                  tools,
		IncludeRecommendations: req.IncludeRecommendations,
	})
}

// Run executes one analysis to a terminal state. The returned RunState is
// always usable: budget or deadline exhaustion finishes with a best-effort
// report, and only oracle exhaustion, cancellation or infrastructure
// failure yields StatusFailed. The non-nil error mirrors StatusFailed.
func (e *Engine) Run(ctx context.Context, req RunRequest) (RunState, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.Subject == "" {
		return RunState{}, errmodel.Schema(errmodel.CodeInvalidInput, "subject is empty", nil)
	}
	if req.Scope == "" {
		req.Scope = ScopeFull
	}
	if !req.Scope.Valid() {
		return RunState{}, errmodel.Schema(errmodel.CodeInvalidInput, "unknown scope",
			map[string]any{"scope": string(req.Scope)})
	}

	ctx, span := e.tracer.Start(ctx, "Engine.Run", trace.WithAttributes(
		attribute.String("run.id", req.RunID),
		attribute.String("run.subject", req.Subject),
		attribute.String("run.scope", string(req.Scope)),
	))
	defer span.End()

	system, err := e.systemPrompt(req)
	if err != nil {
		return RunState{}, errmodel.System(errmodel.CodeInternal, "render system prompt", nil, err)
	}

	started := e.now()
	deadline := started.Add(e.runTimeout)
	state := RunState{
		RunID:                  req.RunID,
		Subject:                req.Subject,
		Scope:                  req.Scope,
		Status:                 StatusRunning,
		Collected:              make(map[string]map[string]any),
		IncludeRecommendations: req.IncludeRecommendations,
		StartedAt:              started,
		UpdatedAt:              started,
		History: []oracle.Message{
			oracle.System(system),
			oracle.User(fmt.Sprintf("Analyze the market position of %q.", req.Subject)),
		},
	}
	e.log.InfoContext(ctx, "run started",
		"run_id", state.RunID, "subject", state.Subject, "scope", state.Scope)

	cycle := 0
	if err := e.snapshot(ctx, &state, cycle); err != nil &&
		!errors.Is(err, runstore.ErrDuplicateCycle) {
		// The gateway may have seeded cycle 0 when it accepted the run.
		state.fail(err.Error(), e.now())
		return state, err
	}

	for {
		cycle++
		if err := ctx.Err(); err != nil {
			return e.failRun(ctx, &state, cycle,
				errmodel.System(errmodel.CodeRunFailed, "run cancelled", nil, err))
		}
		if e.now().After(deadline) {
			e.log.WarnContext(ctx, "run deadline reached", "run_id", state.RunID)
			return e.finishBestEffort(ctx, &state, cycle, req.IncludeRecommendations)
		}

		decision, err := e.decide(ctx, &state)
		if err != nil {
			return e.failRun(ctx, &state, cycle, err)
		}
		state.History = append(state.History, oracle.Assistant(decisionJSON(decision)))

		if decision.Kind() == oracle.KindFinish {
			state.finish(decision.Answer, e.now())
			e.log.InfoContext(ctx, "run finished",
				"run_id", state.RunID, "steps", state.StepsExecuted)
			if err := e.snapshot(ctx, &state, cycle); err != nil {
				return state, err
			}
			return state, nil
		}

		if err := e.act(ctx, &state, decision.Requests, cycle); err != nil {
			return e.failRun(ctx, &state, cycle, err)
		}
		state.StepsExecuted++
		state.UpdatedAt = e.now()

		if state.StepsExecuted >= e.maxSteps {
			e.log.WarnContext(ctx, "step budget exhausted",
				"run_id", state.RunID, "steps", state.StepsExecuted)
			return e.finishBestEffort(ctx, &state, cycle, req.IncludeRecommendations)
		}
		if err := e.snapshot(ctx, &state, cycle); err != nil {
			state.fail(err.Error(), e.now())
			return state, err
		}
	}
}

// decide asks the oracle for the next action, retrying recoverable
// decision failures with a synthetic error observation appended so the
// oracle can correct itself.
func (e *Engine) decide(ctx context.Context, state *RunState) (oracle.Decision, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Decide", trace.WithAttributes(
		attribute.String("run.id", state.RunID),
		attribute.Int("run.steps", state.StepsExecuted),
	))
	defer span.End()

	var lastErr error
	for attempt := 0; attempt <= e.decisionRetries; attempt++ {
		decision, err := e.oracle.Decide(ctx, state.History)
		if err == nil {
			return decision, nil
		}
		if !errmodel.IsCategory(err, errmodel.CategoryDecision) {
			span.RecordError(err)
			return oracle.Decision{}, err
		}
		lastErr = err
		e.log.WarnContext(ctx, "decision failed",
			"run_id", state.RunID, "attempt", attempt, "error", err)
		state.History = append(state.History, oracle.Observation(
			fmt.Sprintf("your previous reply could not be used: %v; reply with exactly one valid JSON decision", err),
			map[string]any{"error_code": errmodel.From(err).Code},
		))
	}
	span.RecordError(lastErr)
	return oracle.Decision{}, errmodel.System(errmodel.CodeRunFailed,
		"oracle retries exhausted", map[string]any{"retries": e.decisionRetries}, lastErr)
}

// act resolves a batch of tool requests: duplicate (tool,args) entries
// collapse to one call, cache hits are served directly, and all misses
// run concurrently with a shared fan-in before any result is applied.
func (e *Engine) act(ctx context.Context, state *RunState, reqs []oracle.ToolRequest, cycle int) error {
	ctx, span := e.tracer.Start(ctx, "Engine.Act", trace.WithAttributes(
		attribute.String("run.id", state.RunID),
		attribute.Int("run.cycle", cycle),
		attribute.Int("batch.size", len(reqs)),
	))
	defer span.End()

	allowed := state.Scope.Allowed()

	type call struct {
		key string
		req oracle.ToolRequest
		inv ToolInvocation
	}
	var (
		calls []*call
		seen  = make(map[string]bool)
	)
	for _, req := range reqs {
		key := cache.Key(req.Name, req.Args)
		if seen[key] {
			continue
		}
		seen[key] = true
		calls = append(calls, &call{key: key, req: req, inv: ToolInvocation{Tool: req.Name, Args: req.Args}})
	}

	var pending []*call
	for _, c := range calls {
		// Scope is a property of this run, so the allowlist is enforced
		// here rather than inside the shared flight: a restricted run must
		// never piggyback on another run's in-flight call.
		if allowed != nil && !allowed[c.req.Name] {
			c.inv.Err = errmodel.Scope(c.req.Name, string(state.Scope))
			continue
		}
		t, ok := e.registry.Resolve(c.req.Name)
		if ok && t.Describe().Cacheable {
			value, hit, err := e.cache.Get(ctx, c.key)
			if err != nil {
				return errmodel.System(errmodel.CodeInternal, "cache unavailable",
					map[string]any{"tool": c.req.Name}, err)
			}
			if hit {
				var out map[string]any
				if err := json.Unmarshal(value, &out); err == nil {
					c.inv.Output = out
					c.inv.CacheHit = true
					e.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", c.req.Name)))
					continue
				}
			}
			e.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", c.req.Name)))
		}
		pending = append(pending, c)
	}

	var wg sync.WaitGroup
	for _, c := range pending {
		wg.Add(1)
		go func(c *call) {
			defer wg.Done()
			started := e.now()
			out, err := e.invokeOne(ctx, c.key, c.req, allowed, string(state.Scope))
			c.inv.Latency = e.now().Sub(started)
			c.inv.Output = out
			c.inv.Err = err
		}(c)
	}
	wg.Wait()

	// A cancellation that arrived mid-batch discards the batch results.
	if err := ctx.Err(); err != nil {
		return errmodel.System(errmodel.CodeRunFailed, "run cancelled", nil, err)
	}

	now := e.now()
	for _, c := range calls {
		e.applyInvocation(ctx, state, c.key, c.inv, now)
	}
	return nil
}

// invokeOne performs a single guarded tool call. Identical in-flight
// calls across runs share one execution.
func (e *Engine) invokeOne(ctx context.Context, key string, req oracle.ToolRequest, allowed map[string]bool, scope string) (map[string]any, error) {
	e.toolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", req.Name)))
	v, err, _ := e.flight.Do(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
		defer cancel()
		out, err := e.registry.SafeInvoke(callCtx, req.Name, req.Args, allowed, scope, nil)
		if err != nil && callCtx.Err() == context.DeadlineExceeded {
			return nil, errmodel.Tool(errmodel.CodeToolTimeout, "tool call timed out",
				map[string]any{"tool": req.Name, "timeout": e.toolTimeout.String()}, err)
		}
		return out, err
	})
	if err != nil {
		return nil, err
	}
	out, _ := v.(map[string]any)
	return out, nil
}

// applyInvocation folds one call result into history, collected state and
// the cache. Failures become observations; they never abort the run.
func (e *Engine) applyInvocation(ctx context.Context, state *RunState, key string, inv ToolInvocation, now time.Time) {
	if inv.Err != nil {
		ce := errmodel.From(inv.Err)
		e.log.WarnContext(ctx, "tool failed",
			"run_id", state.RunID, "tool", inv.Tool, "code", ce.Code, "error", ce.Message)
		state.History = append(state.History, oracle.Observation(
			fmt.Sprintf("%s failed: %s", inv.Tool, ce.Message),
			map[string]any{"tool": inv.Tool, "error_category": ce.Category, "error_code": ce.Code},
		))
		return
	}
	state.Collected[inv.Tool] = inv.Output
	if t, ok := e.registry.Resolve(inv.Tool); ok && !inv.CacheHit {
		if d := t.Describe(); d.Cacheable && d.TTL > 0 {
			if value, err := json.Marshal(inv.Output); err == nil {
				if err := e.cache.Put(ctx, key, value, d.TTL); err != nil {
					e.log.WarnContext(ctx, "cache put failed",
						"run_id", state.RunID, "tool", inv.Tool, "error", err)
				}
			}
		}
	}
	e.log.InfoContext(ctx, "tool succeeded",
		"run_id", state.RunID, "tool", inv.Tool, "cache_hit", inv.CacheHit,
		"latency_ms", inv.Latency.Milliseconds())
	meta := map[string]any{"tool": inv.Tool, "output": inv.Output, "cache_hit": inv.CacheHit}
	state.History = append(state.History, oracle.Observation(
		fmt.Sprintf("%s succeeded", inv.Tool), meta))
}

// finishBestEffort closes a run whose budget or deadline ran out. The
// run always finishes: a synthesized report from whatever was collected,
// degraded to a plain summary when report synthesis itself fails.
func (e *Engine) finishBestEffort(ctx context.Context, state *RunState, cycle int, recommendations bool) (RunState, error) {
	report, err := e.synthesizeReport(ctx, state, recommendations)
	if err != nil {
		e.log.WarnContext(ctx, "report synthesis failed",
			"run_id", state.RunID, "error", err)
		report = degradedReport(state)
	}
	state.finish(report, e.now())
	e.log.InfoContext(ctx, "run finished best-effort",
		"run_id", state.RunID, "steps", state.StepsExecuted)
	if err := e.snapshot(ctx, state, cycle); err != nil {
		return *state, err
	}
	return *state, nil
}

// synthesizeReport builds the final report from collected data, consulting
// the content-keyed report cache first. Reports are keyed by a digest of
// the collected inputs, not the subject, so identical inputs share one
// cached report.
func (e *Engine) synthesizeReport(ctx context.Context, state *RunState, recommendations bool) (string, error) {
	key := cache.ContentKey(ToolReport, map[string]any{
		"subject":         state.Subject,
		"collected":       state.Collected,
		"recommendations": recommendations,
	})
	if value, hit, err := e.cache.Get(ctx, key); err == nil && hit {
		var report string
		if json.Unmarshal(value, &report) == nil && report != "" {
			e.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", ToolReport)))
			return report, nil
		}
	}

	args := map[string]any{
		"product_name":            state.Subject,
		"data":                    anyMap(state.Collected),
		"include_recommendations": recommendations,
	}
	callCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	defer cancel()
	out, err := e.registry.SafeInvoke(callCtx, ToolReport, args, state.Scope.Allowed(), string(state.Scope), nil)
	if err != nil {
		return "", err
	}
	report, _ := out["report"].(string)
	if report == "" {
		return "", errmodel.Tool(errmodel.CodeToolFailed, "report tool returned no report",
			map[string]any{"tool": ToolReport}, nil)
	}
	if value, err := json.Marshal(report); err == nil && e.reportTTL > 0 {
		if err := e.cache.Put(ctx, key, value, e.reportTTL); err != nil {
			e.log.WarnContext(ctx, "cache put failed",
				"run_id", state.RunID, "tool", ToolReport, "error", err)
		}
	}
	return report, nil
}

// degradedReport summarizes whatever was collected when report synthesis
// is unavailable, naming the sections that are missing.
func degradedReport(state *RunState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Market Analysis: %s\n\n", state.Subject)
	b.WriteString("Analysis ended before a full report could be synthesized.\n\n")

	sections := []struct {
		tool, title string
	}{
		{ToolProduct, "Product Data"},
		{ToolCompetitor, "Competitor Analysis"},
		{ToolSentiment, "Customer Sentiment"},
	}
	allowed := state.Scope.Allowed()
	var missing []string
	for _, s := range sections {
		if allowed != nil && !allowed[s.tool] {
			continue
		}
		data, ok := state.Collected[s.tool]
		if !ok {
			missing = append(missing, s.title)
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", s.title)
		if raw, err := json.MarshalIndent(data, "", "  "); err == nil {
			fmt.Fprintf(&b, "```json\n%s\n```\n\n", raw)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "## Missing Sections\n\nNo data was collected for: %s.\n",
			strings.Join(missing, ", "))
	}
	return b.String()
}

func (e *Engine) failRun(ctx context.Context, state *RunState, cycle int, cause error) (RunState, error) {
	ce := errmodel.From(cause)
	state.fail(ce.Error(), e.now())
	e.log.ErrorContext(ctx, "run failed",
		"run_id", state.RunID, "code", ce.Code, "error", ce.Message)
	if err := e.snapshot(ctx, state, cycle); err != nil {
		e.log.ErrorContext(ctx, "snapshot failed", "run_id", state.RunID, "error", err)
	}
	return *state, cause
}

func (e *Engine) snapshot(ctx context.Context, state *RunState, cycle int) error {
	data, err := EncodeState(*state)
	if err != nil {
		return errmodel.System(errmodel.CodeInternal, "encode snapshot", nil, err)
	}
	err = e.store.Append(ctx, runstore.Snapshot{
		RunID:     state.RunID,
		Cycle:     cycle,
		State:     data,
		CreatedAt: e.now(),
	})
	if err != nil {
		if errors.Is(err, runstore.ErrDuplicateCycle) {
			return err
		}
		return errmodel.System(errmodel.CodeInternal, "append snapshot",
			map[string]any{"run_id": state.RunID, "cycle": cycle}, err)
	}
	return nil
}

func decisionJSON(d oracle.Decision) string {
	var wire map[string]any
	if d.Kind() == oracle.KindFinish {
		wire = map[string]any{"action": "finish", "answer": d.Answer}
	} else {
		wire = map[string]any{"action": "invoke", "tools": d.Requests}
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return ""
	}
	return string(b)
}

func anyMap(m map[string]map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
