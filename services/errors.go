package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeRegistration  ErrorType = "registration"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeExternal      ErrorType = "external"
)

// DomainError represents a structured error with additional context.
// Message is safe to show to a caller; Err is for logs only.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of e that carries err as its cause. Sentinels stay
// untouched, so errors.Is against them still matches the copy.
func (e *DomainError) Wrap(err error) *DomainError {
	return &DomainError{
		Type:    e.Type,
		Message: e.Message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Authentication failures
	ErrInvalidToken       = NewDomainError(ErrorTypeUnauthorized, "invalid authentication credentials", nil)
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, "invalid credentials", nil)

	// Request validation
	ErrMalformedCredential = NewDomainError(ErrorTypeValidation, "unsupported credential format", nil)
	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	// Registration failures (duplicate account, weak password, rejected by provider)
	ErrRegistrationFailed = NewDomainError(ErrorTypeRegistration, "failed to create user", nil)

	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, "user not found", nil)

	// Upstream faults
	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "identity provider unavailable", nil)

	ErrConfiguration = NewDomainError(ErrorTypeConfiguration, "authentication backend misconfigured", nil)
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsRegistrationError checks if an error is a registration failure
func IsRegistrationError(err error) bool {
	return hasType(err, ErrorTypeRegistration)
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return hasType(err, ErrorTypeConfiguration)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsExternalError checks if an error is an upstream provider error
func IsExternalError(err error) bool {
	return hasType(err, ErrorTypeExternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// PublicMessage returns the caller-safe message of a domain error.
// Non-domain errors yield a generic message so causes never leak.
func PublicMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ErrInternal.Message
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapConfiguration wraps an error as a configuration error
func WrapConfiguration(message string, err error) error {
	return NewDomainError(ErrorTypeConfiguration, message, err)
}
