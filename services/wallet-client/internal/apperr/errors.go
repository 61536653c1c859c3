package apperr

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrValidation marks malformed local input rejected before any network call.
	ErrValidation = errors.New("validation failed")
	// ErrAuthRejected means the backend did not accept the identity assertion.
	ErrAuthRejected = errors.New("identity assertion expired or rejected")
	// ErrBusinessRejection means the backend or processor explicitly declined the operation.
	ErrBusinessRejection = errors.New("operation rejected")
	// ErrTransport means no interpretable response was received; the outcome is unknown.
	ErrTransport = errors.New("transport failure")
	// ErrProtocolViolation marks an internal invariant breach.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrBusy is returned when a control is already running its own call.
	ErrBusy = errors.New("operation already in progress")
)

// ValidationError describes which input was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Rejection carries a human-readable reason that is shown verbatim.
type Rejection struct {
	Reason string
}

func (e *Rejection) Error() string { return e.Reason }

func (e *Rejection) Is(target error) bool { return target == ErrBusinessRejection }

// Reject builds a Rejection.
func Reject(reason string) error {
	return &Rejection{Reason: reason}
}

// TransportError wraps a failed exchange with the party that failed to answer.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Transport builds a TransportError.
func Transport(op string, status int, err error) error {
	return &TransportError{Op: op, Status: status, Err: err}
}

// Violation reports an invariant breach. In strict mode it panics so the defect surfaces during
// development; otherwise it logs and returns an error the caller treats as a no-op.
func Violation(logger *zap.Logger, strict bool, msg string, fields ...zap.Field) error {
	if strict {
		panic(fmt.Sprintf("protocol violation: %s", msg))
	}
	if logger != nil {
		logger.Error("protocol violation", append(fields, zap.String("detail", msg))...)
	}
	return fmt.Errorf("%w: %s", ErrProtocolViolation, msg)
}

// UserMessage renders an error for display. Validation and business errors are shown as-is;
// everything else collapses into the supplied generic text.
func UserMessage(err error, generic string) string {
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		return invalid.Message
	}
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection.Reason
	}
	if errors.Is(err, ErrAuthRejected) {
		return "Your session has expired. Please sign in again."
	}
	if errors.Is(err, ErrBusy) {
		return "Please wait for the current request to finish."
	}
	return generic
}
