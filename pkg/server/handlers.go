package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wilhg/scout/pkg/engine"
	"github.com/wilhg/scout/pkg/errmodel"
	"github.com/wilhg/scout/pkg/runstore"
)

// Runner executes analysis runs. Satisfied by *engine.Engine.
type Runner interface {
	Run(ctx context.Context, req engine.RunRequest) (engine.RunState, error)
}

// Handlers carries the HTTP handler dependencies.
type Handlers struct {
	runner  Runner
	store   runstore.Store
	logger  *slog.Logger
	version string
	maxBody int64
}

// HandleHealth reports service liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: h.version})
}

// HandleAnalyze runs a full analysis synchronously and returns the report.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, runReq, err := h.decodeAnalysisRequest(w, r)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}

	state, runErr := h.runner.Run(r.Context(), runReq)
	resp := AnalysisResponse{
		Success:       runErr == nil && state.Status == engine.StatusFinished,
		ProductName:   req.ProductName,
		Report:        state.FinalReport,
		StepsExecuted: state.StepsExecuted,
	}
	status := http.StatusOK
	if runErr != nil {
		resp.Error = errmodel.From(runErr).Error()
		status = errmodel.HTTPStatus(errmodel.From(runErr))
	}
	writeJSON(w, status, resp)
}

// HandleCreateRun starts an analysis in the background and returns its ID.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	_, runReq, err := h.decodeAnalysisRequest(w, r)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	runReq.RunID = uuid.NewString()

	// Seed cycle 0 before responding so a GET issued right after the 202
	// finds the run. The engine tolerates the pre-seeded cycle.
	now := time.Now().UTC()
	seed, err := engine.EncodeState(engine.RunState{
		RunID:                  runReq.RunID,
		Subject:                runReq.Subject,
		Scope:                  runReq.Scope,
		Status:                 engine.StatusRunning,
		IncludeRecommendations: runReq.IncludeRecommendations,
		StartedAt:              now,
		UpdatedAt:              now,
	})
	if err == nil {
		err = h.store.Append(r.Context(), runstore.Snapshot{
			RunID: runReq.RunID, Cycle: 0, State: seed, CreatedAt: now,
		})
	}
	if err != nil {
		errmodel.WriteHTTP(w, r, errmodel.System(errmodel.CodeInternal,
			"create run", map[string]any{"run_id": runReq.RunID}, err))
		return
	}

	// Detach from the request context so the run survives the response.
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := h.runner.Run(ctx, runReq); err != nil {
			h.logger.ErrorContext(ctx, "background run failed",
				"run_id", runReq.RunID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, RunCreatedResponse{
		RunID:  runReq.RunID,
		Status: string(engine.StatusRunning),
	})
}

// HandleGetRun returns the latest state of a run.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	snap, err := h.store.Latest(r.Context(), runID)
	if err != nil {
		errmodel.WriteHTTP(w, r, runError(runID, err))
		return
	}
	state, err := engine.DecodeState(snap.State)
	if err != nil {
		errmodel.WriteHTTP(w, r, errmodel.System(errmodel.CodeInternal,
			"decode run state", map[string]any{"run_id": runID}, err))
		return
	}
	writeJSON(w, http.StatusOK, RunStatusResponse{
		RunID:         state.RunID,
		Status:        string(state.Status),
		ProductName:   state.Subject,
		AnalysisType:  string(state.Scope),
		StepsExecuted: state.StepsExecuted,
		Report:        state.FinalReport,
		Error:         state.Err,
		StartedAt:     state.StartedAt,
		UpdatedAt:     state.UpdatedAt,
	})
}

// HandleRunHistory returns a run's snapshot audit trail.
func (h *Handlers) HandleRunHistory(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	snaps, err := h.store.List(r.Context(), runID)
	if err != nil {
		errmodel.WriteHTTP(w, r, runError(runID, err))
		return
	}
	entries := make([]HistoryEntry, 0, len(snaps))
	for _, snap := range snaps {
		state, err := engine.DecodeState(snap.State)
		if err != nil {
			continue
		}
		entries = append(entries, HistoryEntry{
			Cycle:         snap.Cycle,
			Status:        string(state.Status),
			StepsExecuted: state.StepsExecuted,
			CreatedAt:     snap.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, HistoryResponse{RunID: runID, Entries: entries})
}

func (h *Handlers) decodeAnalysisRequest(w http.ResponseWriter, r *http.Request) (AnalysisRequest, engine.RunRequest, error) {
	var req AnalysisRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, engine.RunRequest{}, errmodel.Schema(errmodel.CodeInvalidInput,
			"invalid request body", map[string]any{"error": err.Error()})
	}
	if req.ProductName == "" {
		return req, engine.RunRequest{}, errmodel.Schema(errmodel.CodeInvalidInput,
			"product_name is required", nil)
	}
	scope := engine.Scope(req.AnalysisType)
	if req.AnalysisType == "" {
		scope = engine.ScopeFull
	}
	if !scope.Valid() {
		return req, engine.RunRequest{}, errmodel.Schema(errmodel.CodeInvalidInput,
			"unknown analysis_type", map[string]any{"analysis_type": req.AnalysisType})
	}
	include := true
	if req.IncludeRecommendations != nil {
		include = *req.IncludeRecommendations
	}
	return req, engine.RunRequest{
		Subject:                req.ProductName,
		Scope:                  scope,
		IncludeRecommendations: include,
	}, nil
}

func runError(runID string, err error) error {
	if errors.Is(err, runstore.ErrNotFound) {
		return errmodel.New(errmodel.CategorySystem, errmodel.CodeRunNotFound,
			"run not found", map[string]any{"run_id": runID})
	}
	return errmodel.System(errmodel.CodeInternal, "load run",
		map[string]any{"run_id": runID}, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
