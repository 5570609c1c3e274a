package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a sitesmith error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrBusy           ErrorCode = "BUSY"            // 409 (generation already in flight)
	ErrNoMarkup       ErrorCode = "NO_MARKUP"       // 409
	ErrNotConfigured  ErrorCode = "NOT_CONFIGURED"  // 500
	ErrUpstream       ErrorCode = "UPSTREAM"        // 502
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// AppError represents a structured error with code, status, and details.
type AppError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing project or frame.
func NewNotFound(kind, identifier string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for import files that do not exist.
func NewFileNotFound(path string) *AppError {
	return &AppError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewBusy creates a 409 error when a generation is already running for a frame.
func NewBusy(frameID string) *AppError {
	return &AppError{
		Code:    ErrBusy,
		Status:  409,
		Message: "a generation is already in progress for this frame",
		Details: map[string]any{"frame_id": frameID},
	}
}

// NewNoMarkup creates a 409 error for actions that need generated markup.
func NewNoMarkup(frameID string) *AppError {
	return &AppError{
		Code:    ErrNoMarkup,
		Status:  409,
		Message: "no website to deploy; generate a website first",
		Details: map[string]any{"frame_id": frameID},
	}
}

// NewNotConfigured creates a 500 error for a missing credential or endpoint.
func NewNotConfigured(setting string) *AppError {
	return &AppError{
		Code:    ErrNotConfigured,
		Status:  500,
		Message: fmt.Sprintf("%s is not configured", setting),
		Details: map[string]any{"setting": setting},
	}
}

// NewUpstream creates a 502 error for failures of an external service.
// The message is shown to the user as-is.
func NewUpstream(service, msg string) *AppError {
	return &AppError{
		Code:    ErrUpstream,
		Status:  502,
		Message: fmt.Sprintf("%s: %s", service, msg),
		Details: map[string]any{"service": service},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *AppError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &AppError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// UserMessage returns the human-readable text for a notification.
// Internal errors are reduced to a generic message.
func UserMessage(err error) string {
	var appErr *AppError
	if !stderrors.As(err, &appErr) || appErr.Code == ErrInternal {
		return "Something went wrong. Please try again."
	}
	return appErr.Message
}

// As returns err as an AppError when it is one.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
