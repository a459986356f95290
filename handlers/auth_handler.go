package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/auth-gateway/auth"
	"github.com/upb/auth-gateway/middleware"
	"github.com/upb/auth-gateway/models"
	"github.com/upb/auth-gateway/services"
	"github.com/upb/auth-gateway/utils"
)

// Fixed response details. They never vary with the underlying cause so a
// caller cannot tell a wrong password from an unknown account.
const (
	detailInvalidCredentials = "Invalid credentials"
	detailSignUpFailed       = "Failed to create user"
	detailResetFailed        = "Failed to initiate password reset"
	detailDeleteFailed       = "Failed to delete user"
	detailUnavailable        = "Authentication service unavailable"

	messageServerRunning = "Server running"
	messageUserCreated   = "User created successfully"
	messageResetSent     = "Password reset initiated. Check your email for further instructions."
	messageUserDeleted   = "User deleted successfully"
)

// AuthHandler serves the public access endpoints and the protected user routes
type AuthHandler struct {
	module   auth.Module
	recorder auth.EventRecorder
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(module auth.Module, recorder auth.EventRecorder, logger *zap.Logger) *AuthHandler {
	if recorder == nil {
		recorder = auth.NopRecorder{}
	}
	return &AuthHandler{
		module:   module,
		recorder: recorder,
		logger:   logger,
	}
}

// HandleRoot handles GET /
func (h *AuthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, messageServerRunning)
}

// HandleGetToken handles POST /get_token.
// Takes an OAuth2 password-grant form (username, password).
func (h *AuthHandler) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if err := r.ParseForm(); err != nil {
		HandleValidationError(w, fmt.Errorf("request body must be a form"), h.logger)
		return
	}

	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")

	fields := make(map[string]string)
	if username == "" {
		fields["username"] = "username is required"
	}
	if password == "" {
		fields["password"] = "password is required"
	}
	if len(fields) > 0 {
		_ = utils.WriteUnprocessable(w, "", fields)
		return
	}

	token, err := h.module.SignIn(r.Context(), auth.UserCreate{Email: username, Password: password})
	h.record(r, models.AuthActionSignIn, err, started)
	if err != nil {
		switch {
		case services.IsExternalError(err):
			_ = utils.WriteServiceUnavailable(w, detailUnavailable)
		case services.IsUnauthorizedError(err), services.IsValidationError(err), services.IsNotFoundError(err):
			_ = utils.WriteBadRequest(w, detailInvalidCredentials)
		default:
			HandleServiceError(w, err, h.logger)
		}
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, token)
}

// HandleSignUp handles POST /access/signup
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req auth.UserCreate
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	err := h.module.SignUp(r.Context(), req)
	h.record(r, models.AuthActionSignUp, err, started)
	if err != nil {
		h.writeFailure(w, err, detailSignUpFailed)
		return
	}

	_ = utils.WriteMessage(w, messageUserCreated)
}

// HandleForgotPassword handles POST /access/forgot-password.
// Unknown addresses get the same reply as known ones.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req auth.ForgotPassword
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	err := h.module.ForgotPassword(r.Context(), req.Email)
	h.record(r, models.AuthActionForgotPassword, err, started)
	if err != nil {
		h.writeFailure(w, err, detailResetFailed)
		return
	}

	_ = utils.WriteMessage(w, messageResetSent)
}

// HandleUserSettings handles GET /user/settings. Requires RequireAuth.
func (h *AuthHandler) HandleUserSettings(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	h.logger.Info("protected route accessed",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("backend", h.module.Name()))

	_ = utils.WriteMessage(w, fmt.Sprintf("Hello, %s! This is a protected route.", user.Greeting()))
}

// HandleDeleteAccount handles DELETE /user/account for the caller's own identity.
// Requires RequireAuth.
func (h *AuthHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	user := auth.UserFromContext(r.Context())
	if user == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	err := h.module.DeleteUser(r.Context(), user.UID)
	h.record(r, models.AuthActionDeleteUser, err, started)
	if err != nil {
		h.writeFailure(w, err, detailDeleteFailed)
		return
	}

	_ = utils.WriteMessage(w, messageUserDeleted)
}

// writeFailure answers 503 for provider outages, 500 for faults of our own
// and 400 with the fixed detail for everything the caller caused.
func (h *AuthHandler) writeFailure(w http.ResponseWriter, err error, detail string) {
	switch {
	case services.IsExternalError(err):
		_ = utils.WriteServiceUnavailable(w, detailUnavailable)
	case services.IsConfigurationError(err), services.IsInternalError(err), services.GetErrorType(err) == "":
		HandleServiceError(w, err, h.logger)
	default:
		_ = utils.WriteBadRequest(w, detail)
	}
}

func (h *AuthHandler) record(r *http.Request, action models.AuthAction, err error, started time.Time) {
	h.recorder.Record(r.Context(), auth.NewEvent(r, action, h.module.Name(), err, started))
}
