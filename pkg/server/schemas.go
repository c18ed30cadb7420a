package server

import "time"

// AnalysisRequest starts a market analysis.
type AnalysisRequest struct {
	ProductName            string `json:"product_name"`
	AnalysisType           string `json:"analysis_type,omitempty"`
	IncludeRecommendations *bool  `json:"include_recommendations,omitempty"`
}

// AnalysisResponse is the synchronous analysis result. Success reports
// whether a report was produced; partial data still counts as success.
// A false success always carries a non-empty error.
type AnalysisResponse struct {
	Success       bool   `json:"success"`
	ProductName   string `json:"product_name"`
	Report        string `json:"report"`
	StepsExecuted int    `json:"steps_executed"`
	Error         string `json:"error,omitempty"`
}

// RunCreatedResponse acknowledges an asynchronous run start.
type RunCreatedResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunStatusResponse is the polling view of a run.
type RunStatusResponse struct {
	RunID         string    `json:"run_id"`
	Status        string    `json:"status"`
	ProductName   string    `json:"product_name"`
	AnalysisType  string    `json:"analysis_type"`
	StepsExecuted int       `json:"steps_executed"`
	Report        string    `json:"report,omitempty"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HistoryEntry is one snapshot in a run's audit trail.
type HistoryEntry struct {
	Cycle         int       `json:"cycle"`
	Status        string    `json:"status"`
	StepsExecuted int       `json:"steps_executed"`
	CreatedAt     time.Time `json:"created_at"`
}

// HistoryResponse is a run's full audit trail.
type HistoryResponse struct {
	RunID   string         `json:"run_id"`
	Entries []HistoryEntry `json:"entries"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
