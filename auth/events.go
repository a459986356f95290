package auth

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/upb/auth-gateway/models"
	"github.com/upb/auth-gateway/services"
)

// EventRecorder receives audit events for gateway operations.
// Record must not block the request path.
type EventRecorder interface {
	Record(ctx context.Context, event *models.AuthEvent)
}

// NopRecorder discards every event. Used when no audit store is configured.
type NopRecorder struct{}

// Record implements EventRecorder
func (NopRecorder) Record(context.Context, *models.AuthEvent) {}

// NewEvent builds an audit event for r. The outcome is derived from err:
// nil is a success, upstream faults are unavailable, anything else is rejected.
func NewEvent(r *http.Request, action models.AuthAction, backend string, err error, started time.Time) *models.AuthEvent {
	outcome := models.AuthOutcomeSuccess
	switch {
	case err == nil:
	case services.IsExternalError(err):
		outcome = models.AuthOutcomeUnavailable
	default:
		outcome = models.AuthOutcomeRejected
	}

	event := models.NewAuthEvent(action, outcome, backend).
		WithRequest(chimw.GetReqID(r.Context()), r.RemoteAddr, r.UserAgent())

	if err != nil {
		errorType := string(services.GetErrorType(err))
		if errorType == "" {
			errorType = string(services.ErrorTypeInternal)
		}
		event.WithErrorType(errorType)

		// Machine-readable codes only, never the message.
		details := services.GetErrorDetails(err)
		if code, ok := details["provider_code"].(string); ok {
			event.WithDetails(map[string]string{"provider_code": code})
		} else if reason, ok := details["reason"].(string); ok {
			event.WithDetails(map[string]string{"reason": reason})
		}
	}

	if !started.IsZero() {
		event.WithLatency(time.Since(started))
	}

	return event
}
