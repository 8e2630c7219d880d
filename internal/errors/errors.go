// Package errors provides structured error types for logspam.
//
// This package defines custom error types that provide better error handling,
// error categorization, and consistent error reporting across the spam
// runner, process runner and rotation engine.
package errors

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeProcess    ErrorType = "process"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeFile       ErrorType = "file"
	ErrorTypeRotate     ErrorType = "rotate"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeInternal   ErrorType = "internal"
)

// LogspamError is the base error type for all logspam errors
type LogspamError struct {
	Type       ErrorType
	Code       string
	Message    string
	Underlying error
	Details    map[string]interface{}
	Timestamp  time.Time
}

// Error implements the error interface
func (e *LogspamError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Type, e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *LogspamError) Unwrap() error {
	return e.Underlying
}

// Is checks if the error matches another error
func (e *LogspamError) Is(target error) bool {
	if t, ok := target.(*LogspamError); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithDetails returns a copy of the error with the detail added. The
// receiver is left untouched so shared error values stay safe to annotate.
func (e *LogspamError) WithDetails(key string, value interface{}) *LogspamError {
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

func newError(errorType ErrorType, code, message string, underlying error) *LogspamError {
	return &LogspamError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Underlying: underlying,
		Timestamp:  time.Now(),
	}
}

// Common error constructors

// ProcessError creates a process-related error
func ProcessError(code, message string, underlying error) *LogspamError {
	return newError(ErrorTypeProcess, code, message, underlying)
}

// ValidationError creates a validation error
func ValidationError(code, message string, underlying error) *LogspamError {
	return newError(ErrorTypeValidation, code, message, underlying)
}

// FileError creates a file-related error
func FileError(code, message string, underlying error) *LogspamError {
	return newError(ErrorTypeFile, code, message, underlying)
}

// RotateError creates a rotation-related error
func RotateError(code, message string, underlying error) *LogspamError {
	return newError(ErrorTypeRotate, code, message, underlying)
}

// TimeoutError creates a timeout error
func TimeoutError(code, message string, underlying error) *LogspamError {
	return newError(ErrorTypeTimeout, code, message, underlying)
}

// PermissionError creates a permission error
func PermissionError(code, message string, underlying error) *LogspamError {
	return newError(ErrorTypePermission, code, message, underlying)
}

// InternalError creates an internal error
func InternalError(code, message string, underlying error) *LogspamError {
	return newError(ErrorTypeInternal, code, message, underlying)
}

// Predefined error instances

var (
	ErrProcessRunning   = ProcessError("PROCESS_RUNNING", "Process already running", nil)
	ErrRotateTargetBusy = RotateError("ROTATE_TARGET_EXISTS", "Rotate target file exists", nil)
)

// Helper functions to classify standard Go errors

// ClassifyError attempts to classify a standard Go error into a logspam error
func ClassifyError(err error) *LogspamError {
	if err == nil {
		return nil
	}

	// Check if it's already classified
	if lsErr, ok := err.(*LogspamError); ok {
		return lsErr
	}

	switch {
	case os.IsNotExist(err):
		return FileError("FILE_NOT_FOUND", "File not found", err)
	case os.IsPermission(err):
		return PermissionError("PERMISSION_DENIED", "Permission denied", err)
	case os.IsTimeout(err):
		return TimeoutError("TIMEOUT", "Operation timeout", err)
	case isProcessError(err):
		return ProcessError("PROCESS_ERROR", "Process error", err)
	default:
		return InternalError("UNKNOWN_ERROR", "Unknown error", err)
	}
}

// isProcessError checks if the error is process-related
func isProcessError(err error) bool {
	if errno, ok := err.(syscall.Errno); ok {
		switch errno {
		case syscall.ESRCH, syscall.ECHILD, syscall.EPERM:
			return true
		}
	}
	return false
}

// WrapError wraps an existing error with additional context
func WrapError(err error, message string) *LogspamError {
	if err == nil {
		return nil
	}

	classified := ClassifyError(err)
	classified.Message = message + ": " + classified.Message
	return classified
}

// NewErrorf creates a new logspam error with formatted message
func NewErrorf(errorType ErrorType, code, format string, args ...interface{}) *LogspamError {
	return &LogspamError{
		Type:      errorType,
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if lsErr, ok := err.(*LogspamError); ok {
		return lsErr.Type == errorType
	}
	return false
}

// IsCode checks if an error has a specific code
func IsCode(err error, code string) bool {
	if lsErr, ok := err.(*LogspamError); ok {
		return lsErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) string {
	if lsErr, ok := err.(*LogspamError); ok {
		return lsErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetType extracts the error type from an error
func GetType(err error) ErrorType {
	if lsErr, ok := err.(*LogspamError); ok {
		return lsErr.Type
	}
	return ErrorTypeInternal
}

// Logging integration

// LogAttrs returns slog attributes for the error
func (e *LogspamError) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("error_type", string(e.Type)),
		slog.String("error_code", e.Code),
		slog.String("error_message", e.Message),
	}

	if e.Underlying != nil {
		attrs = append(attrs, slog.String("underlying_error", e.Underlying.Error()))
	}

	for key, value := range e.Details {
		attrs = append(attrs, slog.Any(fmt.Sprintf("error_detail_%s", key), value))
	}

	return attrs
}
