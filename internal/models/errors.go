package models

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError is the error value every service returns across its boundary.
type AppError struct {
	Type     ErrorType              `json:"type"`
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Cause    error                  `json:"-"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (appError *AppError) Error() string {
	if appError.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", appError.Code, appError.Message, appError.Cause)
	}
	return fmt.Sprintf("%s: %s", appError.Code, appError.Message)
}

func (appError *AppError) Unwrap() error {
	return appError.Cause
}

func (appError *AppError) WithCause(cause error) *AppError {
	appError.Cause = cause
	return appError
}

func (appError *AppError) WithMetadata(key string, value interface{}) *AppError {
	if appError.Metadata == nil {
		appError.Metadata = make(map[string]interface{})
	}
	appError.Metadata[key] = value
	return appError
}

// HTTPStatus maps the error type onto the response code the handlers use.
func (appError *AppError) HTTPStatus() int {
	switch appError.Type {
	case ErrorTypeValidation:
		return 400
	case ErrorTypeNotFound:
		return 404
	case ErrorTypeTimeout:
		return 504
	case ErrorTypeExternal:
		return 502
	default:
		return 500
	}
}

func newAppError(errorType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

func NewValidationError(code, message string) *AppError {
	return newAppError(ErrorTypeValidation, code, message)
}

func NewNotFoundError(code, message string) *AppError {
	return newAppError(ErrorTypeNotFound, code, message)
}

func NewTimeoutError(code, message string) *AppError {
	return newAppError(ErrorTypeTimeout, code, message)
}

func NewExternalError(code, message string) *AppError {
	return newAppError(ErrorTypeExternal, code, message)
}

func NewInternalError(code, message string) *AppError {
	return newAppError(ErrorTypeInternal, code, message)
}

// WrapExternalError normalizes a collaborator failure under a service prefix.
func WrapExternalError(service string, err error) *AppError {
	return NewExternalError(service+"_FAILED", "external service call failed").WithCause(err)
}

// AsAppError extracts an AppError from an error chain, wrapping unknown
// errors as internal so handlers always have a typed value to render.
func AsAppError(err error) *AppError {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError
	}
	return NewInternalError("INTERNAL", "unexpected error").WithCause(err)
}
