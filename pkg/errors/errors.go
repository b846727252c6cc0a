package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Configuration errors (1xxx)
	ErrCodeConfigNotFound     ErrorCode = "VFLW1001"
	ErrCodeConfigInvalid      ErrorCode = "VFLW1002"
	ErrCodeUnknownEnvironment ErrorCode = "VFLW1003"
	ErrCodeRequiredField      ErrorCode = "VFLW1004"

	// Template errors (2xxx)
	ErrCodeTemplateRender ErrorCode = "VFLW2001"
	ErrCodeTemplateIO     ErrorCode = "VFLW2002"

	// Validation errors (3xxx)
	ErrCodeValidationFailed ErrorCode = "VFLW3001"
	ErrCodeInvalidInput     ErrorCode = "VFLW3002"
	ErrCodeParseFailed      ErrorCode = "VFLW3003"

	// Statement execution errors (4xxx)
	ErrCodeStatementFailed   ErrorCode = "VFLW4001"
	ErrCodeStatementCanceled ErrorCode = "VFLW4002"
	ErrCodeExecutorProtocol  ErrorCode = "VFLW4003"
	ErrCodeNoResults         ErrorCode = "VFLW4004"

	// Test errors (5xxx)
	ErrCodeTestSetup  ErrorCode = "VFLW5001"
	ErrCodeTestFailed ErrorCode = "VFLW5002"

	// File system errors (6xxx)
	ErrCodeFileNotFound  ErrorCode = "VFLW6001"
	ErrCodeFileOperation ErrorCode = "VFLW6002"

	// Security errors (7xxx)
	ErrCodeCredentialStore ErrorCode = "VFLW7001"

	// System errors (9xxx)
	ErrCodeInternal ErrorCode = "VFLW9001"
	ErrCodeTimeout  ErrorCode = "VFLW9002"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // System failure, requires immediate attention
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but system continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// If wrapping another AppError, inherit its context
	if ae, ok := err.(*AppError); ok {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'viewflow env validate' to inspect environment configuration",
		)
}

// UnknownEnvironmentError reports a request for an environment the
// configuration document does not define.
func UnknownEnvironmentError(name string, available []string) *AppError {
	return New(ErrCodeUnknownEnvironment,
		fmt.Sprintf("environment %q not found. Available: %s", name, strings.Join(available, ", "))).
		WithContext("environment", name).
		WithContext("available", available).
		WithSuggestions("Run 'viewflow env list' to see configured environments")
}

// TemplateError creates a template rendering error
func TemplateError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeTemplateRender, message).
		WithSuggestions(
			"Verify every referenced variable exists in the environment configuration",
			"Run 'viewflow env show <environment>' to inspect available variables",
		)
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning)
}

// StatementError creates a statement execution error. The remote failure
// message is carried verbatim; failed statements are never retried here.
func StatementError(message string, statement string, cause error) *AppError {
	appErr := New(ErrCodeStatementFailed, message)
	appErr.Cause = cause
	return appErr.WithContext("statement", truncateString(statement, 200))
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
