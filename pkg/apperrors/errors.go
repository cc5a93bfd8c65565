// Package apperrors implements the error taxonomy from the ranking
// pipeline's design: components return typed results, and only the
// outermost HTTP boundary maps them to status codes.
package apperrors

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ErrorType classifies an error per the propagation policy.
type ErrorType string

const (
	// TransientRemote covers ML 5xx, network errors, and timeouts —
	// retried, then falls back; the caller still sees a 200. No
	// degraded marker is set on the response or the logged impression.
	TransientRemote ErrorType = "transient_remote"
	// PermanentRemote covers ML 4xx — not retried, falls back, logged
	// at warn.
	PermanentRemote ErrorType = "permanent_remote"
	// Ingest covers feed parse/timeout failures. Per-source, counted,
	// never propagated to the caller.
	Ingest ErrorType = "ingest"
	// Validation covers bad query parameters.
	Validation ErrorType = "validation"
	// NotFound covers missing resources.
	NotFound ErrorType = "not_found"
	// StorageFailure covers DB errors on the critical path.
	StorageFailure ErrorType = "storage_failure"
	// ExperimentDisabled signals a silent downgrade to baseline
	// ranking because the named experiment is inactive or missing.
	ExperimentDisabled ErrorType = "experiment_disabled"
	// BanditUnavailable signals a silent downgrade to baseline
	// ranking because the bandit state could not be loaded.
	BanditUnavailable ErrorType = "bandit_unavailable"
)

// AppError is an enriched application error carrying the information
// the HTTP boundary needs to render a response, and the information a
// log line needs for triage.
type AppError struct {
	Err        error                  `json:"-"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Type       ErrorType              `json:"type"`
	StatusCode int                    `json:"status_code,omitempty"`
	Stack      string                 `json:"stack,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *AppError) Unwrap() error { return e.Err }

// Is compares by type and code, matching Go 1.13+ error semantics.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext attaches a key/value pair of diagnostic context.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode sets a machine-readable error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithStatusCode sets the HTTP status the transport layer should use.
func (e *AppError) WithStatusCode(statusCode int) *AppError {
	e.StatusCode = statusCode
	return e
}

// ToJSON serializes the error, omitting the wrapped cause.
func (e *AppError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// New creates a bare AppError of the given type.
func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:      t,
		Message:   message,
		Stack:     stack(),
		Timestamp: time.Now().UTC(),
	}
}

// Wrap attaches type and message to an existing error, preserving an
// inner AppError's stack and context if present.
func Wrap(t ErrorType, err error, message string) *AppError {
	if err == nil {
		return nil
	}
	if inner, ok := err.(*AppError); ok {
		return &AppError{
			Err:       inner.Err,
			Type:      t,
			Message:   fmt.Sprintf("%s: %s", message, inner.Message),
			Code:      inner.Code,
			Stack:     inner.Stack,
			Context:   inner.Context,
			Timestamp: time.Now().UTC(),
		}
	}
	return &AppError{
		Err:       err,
		Type:      t,
		Message:   message,
		Stack:     stack(),
		Timestamp: time.Now().UTC(),
	}
}

func stack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "apperrors/errors.go") {
			fmt.Fprintf(&b, "%s:%d %s\n", filepath.Base(frame.File), frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return b.String()
}

// IsTimeout reports whether err represents a timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if t, ok := err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// IsRetryable reports whether err is a TransientRemote-class failure
// worth retrying: timeouts and temporary network errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	if t, ok := err.(interface{ Temporary() bool }); ok {
		return t.Temporary()
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type == TransientRemote
	}
	return false
}

// Type returns the ErrorType of err, or "" if err is not an AppError.
func Type(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ""
}
