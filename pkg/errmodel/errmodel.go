// Package errmodel defines the compact error taxonomy shared by the engine,
// the tool registry and the HTTP gateway. Tool-level and scope errors are
// recoverable (they become observations in the run transcript); only
// decision exhaustion and infrastructure failures terminate a run.
package errmodel

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Category values for compact errors.
const (
	// CategorySchema covers tool argument/output schema violations.
	CategorySchema = "schema"
	// CategoryTool covers tool execution failures, including per-call timeouts.
	CategoryTool = "tool"
	// CategoryScope covers tool requests outside the run's requested scope.
	CategoryScope = "scope"
	// CategoryDecision covers unparsable or undeliverable oracle decisions.
	CategoryDecision = "decision"
	// CategorySystem covers infrastructure failures (store, cache, internal).
	CategorySystem = "system"
)

// Well-known codes.
const (
	CodeInvalidInput      = "invalid_input"
	CodeInvalidOutput     = "invalid_output"
	CodeUnknownTool       = "unknown_tool"
	CodeToolFailed        = "tool_failed"
	CodeToolTimeout       = "tool_timeout"
	CodeScopeViolation    = "scope_violation"
	CodeMalformedDecision = "malformed_decision"
	CodeOracleUnavailable = "oracle_unavailable"
	CodeRunFailed         = "run_failed"
	CodeRunNotFound       = "not_found"
	CodeInternal          = "internal"
)

// Error is the compact error payload returned by the API and used internally.
// It implements the error interface.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Causes   []Error        `json:"causes,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// New constructs a new compact error.
func New(category, code, message string, ctx map[string]any, causes ...error) *Error {
	ce := &Error{Category: category, Code: code, Message: truncate(message, 512)}
	if len(ctx) > 0 {
		ce.Context = truncateContext(ctx)
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		ce.Causes = append(ce.Causes, *From(c))
	}
	return ce
}

// From converts any error into a compact Error. If err is already *Error,
// it's returned as-is.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Category: CategorySystem, Code: CodeInternal, Message: truncate(err.Error(), 512)}
}

// Schema reports a tool argument or output schema violation.
func Schema(code, message string, ctx map[string]any) *Error {
	return New(CategorySchema, code, message, ctx)
}

// Tool reports a tool execution failure.
func Tool(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategoryTool, code, message, ctx, cause)
	}
	return New(CategoryTool, code, message, ctx)
}

// Scope reports a tool request outside the run's requested scope.
func Scope(tool, scope string) *Error {
	return New(CategoryScope, CodeScopeViolation, "tool not permitted for requested scope",
		map[string]any{"tool": tool, "scope": scope})
}

// MalformedDecision reports an oracle reply that could not be parsed into a
// valid decision.
func MalformedDecision(message string, ctx map[string]any) *Error {
	return New(CategoryDecision, CodeMalformedDecision, message, ctx)
}

// System reports an infrastructure failure.
func System(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategorySystem, code, message, ctx, cause)
	}
	return New(CategorySystem, code, message, ctx)
}

// HTTPStatus maps category/code to HTTP status.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Category {
	case CategorySchema:
		return http.StatusBadRequest
	case CategoryScope:
		return http.StatusForbidden
	case CategoryTool, CategoryDecision:
		return http.StatusBadGateway
	case CategorySystem:
		if e.Code == CodeRunNotFound {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes a compact error envelope to the response writer.
// It attempts to include the trace_id if present in ctx.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	ce := From(err)
	if ce == nil {
		ce = &Error{Category: CategorySystem, Code: CodeInternal, Message: "unknown error"}
	}
	status := HTTPStatus(ce)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	traceID := ""
	if r != nil {
		if span := trace.SpanFromContext(r.Context()); span != nil {
			sc := span.SpanContext()
			if sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":    ce,
		"trace_id": traceID,
	})
}

// IsCategory checks if err belongs to a specific category.
func IsCategory(err error, category string) bool {
	ce := From(err)
	return ce != nil && strings.EqualFold(ce.Category, category)
}

// IsCode checks if err carries a specific code.
func IsCode(err error, code string) bool {
	ce := From(err)
	return ce != nil && ce.Code == code
}

// Recoverable reports whether the error can be folded back into the run
// transcript as an observation rather than terminating the run.
func Recoverable(err error) bool {
	ce := From(err)
	if ce == nil {
		return true
	}
	switch ce.Category {
	case CategorySchema, CategoryTool, CategoryScope:
		return true
	default:
		return false
	}
}

// truncate trims a string to max characters.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// truncateContext trims long string values in the context map.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case string:
			out[k] = truncate(t, 256)
		default:
			b, err := json.Marshal(t)
			if err == nil && len(b) > 0 {
				s := string(b)
				if len(s) > 256 {
					s = truncate(s, 256)
				}
				out[k] = s
			} else {
				out[k] = t
			}
		}
	}
	return out
}
