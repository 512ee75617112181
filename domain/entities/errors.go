package entities

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the failure taxonomy surfaced in every failed envelope
type ErrorKind string

const (
	KindAuthMissing ErrorKind = "AuthMissing"
	KindAuthExpired ErrorKind = "AuthExpired"
	KindValidation  ErrorKind = "ValidationError"
	KindNotFound    ErrorKind = "NotFoundError"
	KindTransient   ErrorKind = "TransientError"
	KindBlocked     ErrorKind = "ActionBlocked"
	KindUnknownUI   ErrorKind = "UnknownUIStateError"
)

// Retryable - only transient failures are retried
func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}

// OperationError carries a failure kind plus the diagnostics needed to tell
// a UI change from a missing target from a stale credential.
type OperationError struct {
	Kind    ErrorKind
	Message string
	Stage   Stage
	Tried   []string
	Err     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Stage != "" {
		fmt.Fprintf(&b, " (stage %s)", e.Stage)
	}
	if len(e.Tried) > 0 {
		fmt.Fprintf(&b, " tried [%s]", strings.Join(e.Tried, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// WithStage - returns a copy attributed to the given stage unless one is set
func (e *OperationError) WithStage(stage Stage) *OperationError {
	if e.Stage != "" {
		return e
	}
	cp := *e
	cp.Stage = stage
	return &cp
}

func newOpError(kind ErrorKind, err error, format string, args ...any) *OperationError {
	return &OperationError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation - bad caller input, raised before a browser session exists
func Validation(format string, args ...any) *OperationError {
	return newOpError(KindValidation, nil, format, args...)
}

// NotFound - target user or content does not exist
func NotFound(format string, args ...any) *OperationError {
	return newOpError(KindNotFound, nil, format, args...)
}

// Transient - timeout or not-yet-rendered state
func Transient(err error, format string, args ...any) *OperationError {
	return newOpError(KindTransient, err, format, args...)
}

// AuthMissing - no credential record for the platform
func AuthMissing(format string, args ...any) *OperationError {
	return newOpError(KindAuthMissing, nil, format, args...)
}

// AuthExpired - credential proven invalid by an anonymous render
func AuthExpired(format string, args ...any) *OperationError {
	return newOpError(KindAuthExpired, nil, format, args...)
}

// Blocked - platform explicitly rejected or silently ignored the action
func Blocked(format string, args ...any) *OperationError {
	return newOpError(KindBlocked, nil, format, args...)
}

// UnknownUI - every selector strategy for a target was exhausted
func UnknownUI(target string, tried []string) *OperationError {
	return &OperationError{
		Kind:    KindUnknownUI,
		Message: fmt.Sprintf("no selector strategy matched %q", target),
		Tried:   tried,
	}
}

// ErrTimeout is the message reported when an operation hits its ceiling
const ErrTimeout = "timeout"

// TimeoutError - hard operation ceiling reached
func TimeoutError(stage Stage) *OperationError {
	return &OperationError{Kind: KindTransient, Message: ErrTimeout, Stage: stage}
}

// AsOperationError - classifies any error into an OperationError
func AsOperationError(err error) *OperationError {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &OperationError{Kind: KindTransient, Message: ErrTimeout, Err: err}
	}
	return &OperationError{Kind: KindUnknownUI, Message: err.Error(), Err: err}
}

// KindOf - returns the taxonomy kind of err
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsOperationError(err).Kind
}
