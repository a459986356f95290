package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuthAction represents the gateway operation being audited
type AuthAction string

const (
	AuthActionSignIn         AuthAction = "sign_in"
	AuthActionSignUp         AuthAction = "sign_up"
	AuthActionForgotPassword AuthAction = "forgot_password"
	AuthActionDeleteUser     AuthAction = "delete_user"
	AuthActionAccessDenied   AuthAction = "access_denied"
)

// AuthOutcome is the coarse result of an audited operation
type AuthOutcome string

const (
	AuthOutcomeSuccess     AuthOutcome = "success"
	AuthOutcomeRejected    AuthOutcome = "rejected"
	AuthOutcomeUnavailable AuthOutcome = "unavailable"
)

// AuthEvent is one entry of the authentication audit trail.
// It never carries an email address, uid, password or token.
type AuthEvent struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Action    AuthAction      `json:"action" db:"action"`
	Outcome   AuthOutcome     `json:"outcome" db:"outcome"`
	Backend   string          `json:"backend" db:"backend"`
	ErrorType string          `json:"error_type,omitempty" db:"error_type"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"` // JSONB for flexible metadata
	IPAddress string          `json:"ip_address" db:"ip_address"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	RequestID string          `json:"request_id" db:"request_id"`
	LatencyMs *int            `json:"latency_ms,omitempty" db:"latency_ms"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// NewAuthEvent creates a new AuthEvent instance
func NewAuthEvent(action AuthAction, outcome AuthOutcome, backend string) *AuthEvent {
	return &AuthEvent{
		ID:        uuid.New(),
		Action:    action,
		Outcome:   outcome,
		Backend:   backend,
		Timestamp: time.Now().UTC(),
	}
}

// WithRequest sets request metadata
func (e *AuthEvent) WithRequest(requestID, ipAddress, userAgent string) *AuthEvent {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// WithErrorType records the error category behind a non-success outcome
func (e *AuthEvent) WithErrorType(errorType string) *AuthEvent {
	e.ErrorType = errorType
	return e
}

// WithDetails sets the details
func (e *AuthEvent) WithDetails(details interface{}) *AuthEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

// WithLatency sets how long the backend call took
func (e *AuthEvent) WithLatency(d time.Duration) *AuthEvent {
	ms := int(d.Milliseconds())
	e.LatencyMs = &ms
	return e
}
