package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wilhg/scout/pkg/engine"
	"github.com/wilhg/scout/pkg/errmodel"
	"github.com/wilhg/scout/pkg/runstore"
	"github.com/wilhg/scout/pkg/runstore/inmem"
)

// stubRunner returns a canned terminal state and records it in a store.
type stubRunner struct {
	store runstore.Store
	err   error
}

func (s *stubRunner) Run(ctx context.Context, req engine.RunRequest) (engine.RunState, error) {
	state := engine.RunState{
		RunID:         req.RunID,
		Subject:       req.Subject,
		Scope:         req.Scope,
		Status:        engine.StatusFinished,
		StepsExecuted: 3,
		FinalReport:   "# Report",
		StartedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if s.err != nil {
		state.Status = engine.StatusFailed
		state.FinalReport = ""
		state.Err = s.err.Error()
	}
	if s.store != nil && req.RunID != "" {
		data, _ := engine.EncodeState(state)
		_ = s.store.Append(ctx, runstore.Snapshot{RunID: req.RunID, Cycle: 1, State: data})
	}
	if s.err != nil {
		return state, s.err
	}
	return state, nil
}

func newTestServer(t *testing.T, runner Runner, store runstore.Store) *Server {
	t.Helper()
	srv, err := New(Config{Runner: runner, Store: store, Version: "test"})
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, inmem.New())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.Version != "test" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, inmem.New())
	body := `{"product_name":"iPhone 17","analysis_type":"full"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var resp AnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Report != "# Report" || resp.StepsExecuted != 3 {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.ProductName != "iPhone 17" {
		t.Fatalf("product_name=%q", resp.ProductName)
	}
}

func TestAnalyzeRunFailure(t *testing.T) {
	runner := &stubRunner{err: errmodel.System(errmodel.CodeRunFailed, "oracle retries exhausted", nil, nil)}
	srv := newTestServer(t, runner, inmem.New())
	body := `{"product_name":"iPhone 17"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	var resp AnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Fatal("success must be false on run failure")
	}
	if resp.Error == "" {
		t.Fatal("failed response must carry an error")
	}
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, inmem.New())
	cases := []string{
		`{"product_name":""}`,
		`{"product_name":"x","analysis_type":"galaxy"}`,
		`{"product_name":"x","bogus":true}`,
		`not json`,
	}
	for _, body := range cases {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d want 400", body, rec.Code)
		}
	}
}

func TestAsyncRunLifecycle(t *testing.T) {
	store := inmem.New()
	srv := newTestServer(t, &stubRunner{store: store}, store)

	rec := httptest.NewRecorder()
	body := `{"product_name":"widget","analysis_type":"product_only"}`
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d", rec.Code)
	}
	var created RunCreatedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.RunID == "" || created.Status != "running" {
		t.Fatalf("created=%+v", created)
	}

	// The run executes in the background; poll until it reaches a
	// terminal state.
	deadline := time.Now().Add(2 * time.Second)
	var status RunStatusResponse
	for {
		rec = httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+created.RunID, nil))
		if rec.Code == http.StatusOK {
			if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
				t.Fatal(err)
			}
			if status.Status == "finished" {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s never finished, last status=%+v", created.RunID, status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.Status != "finished" || status.ProductName != "widget" || status.AnalysisType != "product_only" {
		t.Fatalf("status=%+v", status)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+created.RunID+"/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history status=%d", rec.Code)
	}
	var history HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if len(history.Entries) == 0 {
		t.Fatal("history must not be empty")
	}
}

// blockedRunner holds its run open until released, so the only state a
// client can observe is the snapshot written at accept time.
type blockedRunner struct {
	release chan struct{}
}

func (b *blockedRunner) Run(_ context.Context, req engine.RunRequest) (engine.RunState, error) {
	<-b.release
	return engine.RunState{RunID: req.RunID, Status: engine.StatusFailed}, nil
}

func TestRunVisibleImmediatelyAfterCreate(t *testing.T) {
	store := inmem.New()
	runner := &blockedRunner{release: make(chan struct{})}
	t.Cleanup(func() { close(runner.release) })
	srv := newTestServer(t, runner, store)

	rec := httptest.NewRecorder()
	body := `{"product_name":"widget","analysis_type":"sentiment_only"}`
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d", rec.Code)
	}
	var created RunCreatedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	// No polling: the run must be queryable as soon as the 202 lands.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+created.RunID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want 200 right after create", rec.Code)
	}
	var status RunStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "running" || status.ProductName != "widget" || status.AnalysisType != "sentiment_only" {
		t.Fatalf("status=%+v", status)
	}
}

func TestGetRunNotFound(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, inmem.New())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, inmem.New())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Fatalf("request id=%q want fixed-id", got)
	}
}
