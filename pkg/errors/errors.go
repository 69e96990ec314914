package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents specific error types in the embedmongo system
type ErrorCode string

const (
	// Validation errors
	ErrInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// Startup errors
	ErrStartupFailure      ErrorCode = "STARTUP_FAILURE"
	ErrPortResolution      ErrorCode = "PORT_RESOLUTION_FAILED"
	ErrDownload            ErrorCode = "DOWNLOAD_FAILED"
	ErrUnsupportedPlatform ErrorCode = "UNSUPPORTED_PLATFORM"

	// Teardown errors
	ErrTeardown ErrorCode = "TEARDOWN_FAILED"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	InvalidArgument     = &ProvisionError{Code: ErrInvalidArgument}
	StartupFailure      = &ProvisionError{Code: ErrStartupFailure}
	PortResolution      = &ProvisionError{Code: ErrPortResolution}
	Download            = &ProvisionError{Code: ErrDownload}
	UnsupportedPlatform = &ProvisionError{Code: ErrUnsupportedPlatform}
	Teardown            = &ProvisionError{Code: ErrTeardown}
)

// ProvisionError represents a structured error raised while configuring,
// starting or stopping an embedded MongoDB instance.
type ProvisionError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Op        string                 `json:"op,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (pe *ProvisionError) Error() string {
	msg := fmt.Sprintf("[%s]: %s", pe.Code, pe.Message)
	if pe.Op != "" {
		msg = fmt.Sprintf("[%s] %s: %s", pe.Code, pe.Op, pe.Message)
	}
	if pe.Cause != nil {
		msg += ": " + pe.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error
func (pe *ProvisionError) Unwrap() error {
	return pe.Cause
}

// Is reports whether target is a ProvisionError with the same code.
func (pe *ProvisionError) Is(target error) bool {
	t, ok := target.(*ProvisionError)
	if !ok {
		return false
	}
	return t.Code == pe.Code
}

// NewProvisionError creates a new structured error
func NewProvisionError(code ErrorCode, message string) *ProvisionError {
	return &ProvisionError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
	}
}

// WithOp records the operation that failed
func (pe *ProvisionError) WithOp(op string) *ProvisionError {
	pe.Op = op
	return pe
}

// WithCause adds the underlying cause error
func (pe *ProvisionError) WithCause(err error) *ProvisionError {
	pe.Cause = err
	return pe
}

// WithContext adds arbitrary context to the error
func (pe *ProvisionError) WithContext(key string, value interface{}) *ProvisionError {
	if pe.Context == nil {
		pe.Context = make(map[string]interface{})
	}
	pe.Context[key] = value
	return pe
}

// AsProvisionError extracts a ProvisionError from err's chain.
func AsProvisionError(err error) (*ProvisionError, bool) {
	var pe *ProvisionError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// HasErrorCode checks if an error has a specific error code
func HasErrorCode(err error, code ErrorCode) bool {
	if pe, ok := AsProvisionError(err); ok {
		return pe.Code == code
	}
	return false
}

// WrapError wraps a regular error as a ProvisionError
func WrapError(err error, code ErrorCode, message string) *ProvisionError {
	return NewProvisionError(code, message).WithCause(err)
}

func NewInvalidArgumentError(op, message string) *ProvisionError {
	return NewProvisionError(ErrInvalidArgument, message).WithOp(op)
}

func NewStartupError(op string, cause error) *ProvisionError {
	return NewProvisionError(ErrStartupFailure, "failed to start embedded MongoDB").
		WithOp(op).
		WithCause(cause)
}

func NewPortResolutionError(cause error) *ProvisionError {
	return NewProvisionError(ErrPortResolution, "could not get free server port").
		WithOp("resolve port").
		WithCause(cause)
}

func NewDownloadError(url string, cause error) *ProvisionError {
	return NewProvisionError(ErrDownload, "failed to download MongoDB distribution").
		WithOp("download").
		WithContext("url", url).
		WithCause(cause)
}

func NewUnsupportedPlatformError(goos, goarch string) *ProvisionError {
	return NewProvisionError(ErrUnsupportedPlatform, fmt.Sprintf("no MongoDB distribution for %s/%s", goos, goarch)).
		WithContext("os", goos).
		WithContext("arch", goarch)
}
