package mutation

import (
	"errors"
	"fmt"

	"dispatch-dashboard/internal/model"
)

// ErrNotFound is returned when a mutation targets an id the store does not
// hold. No request is issued.
var ErrNotFound = errors.New("not found")

func notFound(kind model.Kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// ValidationError is a missing or malformed required field. It is raised
// before any backend call.
type ValidationError struct {
	Kind   model.Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Field, e.Reason)
}

func required(kind model.Kind, field string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Reason: "is required"}
}

// RequestFailure is a backend call that failed, either in transport or by
// answering with an explicit failure shape.
type RequestFailure struct {
	Op      string
	Message string
	Code    string
	Err     error
}

func (e *RequestFailure) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RequestFailure) Unwrap() error { return e.Err }

// messager is implemented by transport errors that carry an operator-facing
// message, such as backend.StatusError.
type messager interface {
	Message() string
}

func failureFromErr(op string, err error) *RequestFailure {
	msg := err.Error()
	var m messager
	if errors.As(err, &m) && m.Message() != "" {
		msg = m.Message()
	}
	return &RequestFailure{Op: op, Message: msg, Err: err}
}
