package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/nudge/internal/dispatch"
)

// PassRunner runs one dispatch pass
type PassRunner interface {
	RunPass(ctx context.Context, now time.Time) (dispatch.Summary, error)
}

// HealthCheck tests one dependency. A failing required check makes
// /health report 503; an optional one only shows as degraded.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Required bool
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// PassResponse is returned after a pass completes
type PassResponse struct {
	Processed  int   `json:"processed"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Paused     int   `json:"paused"`
	Completed  int   `json:"completed"`
	DurationMS int64 `json:"duration_ms"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Config controls optional handler behaviour
type Config struct {
	// AllowClockOverride lets callers evaluate a pass at ?at=<RFC3339>.
	AllowClockOverride bool
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger *zap.Logger
	runner PassRunner
	checks []HealthCheck
	config Config
	clock  func() time.Time
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, runner PassRunner, checks []HealthCheck, cfg Config) *Handler {
	return &Handler{
		logger: logger,
		runner: runner,
		checks: checks,
		config: cfg,
		clock:  time.Now,
	}
}

// RunPass handles POST /v1/passes
func (h *Handler) RunPass(w http.ResponseWriter, r *http.Request) {
	now := h.clock()

	if at := r.URL.Query().Get("at"); at != "" {
		if !h.config.AllowClockOverride {
			h.writeError(w, http.StatusBadRequest, "clock_override_disabled", "Clock override disabled", "the at parameter is not enabled on this deployment")
			return
		}
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid at parameter", "at must be an RFC3339 timestamp")
			return
		}
		now = parsed
	}

	sum, err := h.runner.RunPass(r.Context(), now)
	if err != nil {
		h.logger.Error("dispatch pass failed",
			zap.Error(err),
			zap.Time("at", now),
		)
		detail := "the pass was aborted and will be retried on the next invocation"
		if errors.Is(err, dispatch.ErrLoad) {
			detail = "the data store could not be reached; " + detail
		}
		h.writeError(w, http.StatusInternalServerError, "pass_failed", "Dispatch pass failed", detail)
		return
	}

	resp := PassResponse{
		Processed:  sum.Processed,
		Skipped:    sum.Skipped,
		Failed:     sum.Failed,
		Paused:     sum.Paused,
		Completed:  sum.Completed,
		DurationMS: sum.Duration.Milliseconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}

	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", c.Name), zap.Error(err))
			resp.Checks[c.Name] = "unavailable"
			if c.Required {
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	writeProblem(w, ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeProblem(w http.ResponseWriter, p ErrorResponse) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
