package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/auth-gateway/models"
	"github.com/upb/auth-gateway/services/audit"
	"github.com/upb/auth-gateway/utils"
)

// auditSummaryWindow is how far back /status counts auth events
const auditSummaryWindow = 24 * time.Hour

// AuditReporter exposes the audit trail's runtime state
type AuditReporter interface {
	GetStats() audit.Stats
	Summary(ctx context.Context, window time.Duration) (map[models.AuthOutcome]int, error)
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Version     string                     `json:"version"`
	Environment string                     `json:"environment"`
	AuthService string                     `json:"auth_service"`
	Audit       *audit.Stats               `json:"audit,omitempty"`
	Last24h     map[models.AuthOutcome]int `json:"auth_events_24h,omitempty"`
}

// StatusHandler reports build and runtime information
type StatusHandler struct {
	version     string
	environment string
	authService string
	audit       AuditReporter
	logger      *zap.Logger
}

// NewStatusHandler creates a new StatusHandler. reporter may be nil when auditing is disabled.
func NewStatusHandler(version, environment, authService string, reporter AuditReporter, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		version:     version,
		environment: environment,
		authService: authService,
		audit:       reporter,
		logger:      logger,
	}
}

// HandleStatus handles GET /status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Version:     h.version,
		Environment: h.environment,
		AuthService: h.authService,
	}

	if h.audit != nil {
		stats := h.audit.GetStats()
		response.Audit = &stats

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		// Counts are best effort; status must answer even when the database is down.
		if counts, err := h.audit.Summary(ctx, auditSummaryWindow); err != nil {
			h.logger.Warn("failed to summarize auth events", zap.Error(err))
		} else {
			response.Last24h = counts
		}
	}

	_ = utils.WriteJSON(w, http.StatusOK, response)
}

// HandleNotFound answers unknown routes
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteNotFound(w, "")
}

// HandleMethodNotAllowed answers known routes called with the wrong method
func HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}
