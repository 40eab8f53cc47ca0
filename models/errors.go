package models

import "fmt"

// ErrorKind is a closed enumeration classifying a failed operation.
// Kinds are transport-agnostic; controllers map them to HTTP codes at
// the boundary.
type ErrorKind int

const (
	// ErrValidation covers missing or malformed input. Never retried.
	ErrValidation ErrorKind = iota
	// ErrConflict covers actions illegal for the commission's current
	// status, including a second renegotiation while one is pending.
	ErrConflict
	// ErrNotFound covers references to absent commissions.
	ErrNotFound
	// ErrForbidden covers ownership mismatches: the actor is not the
	// client/artist the action requires.
	ErrForbidden
	// ErrInfrastructure covers store or broker failures.
	ErrInfrastructure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrValidation:
		return "validation"
	case ErrConflict:
		return "conflict"
	case ErrNotFound:
		return "not_found"
	case ErrForbidden:
		return "forbidden"
	case ErrInfrastructure:
		return "infrastructure"
	}
	return "unknown"
}

// ServiceError carries an error kind and a human-readable message.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error // optional underlying cause, infrastructure only
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewValidationError reports malformed input.
func NewValidationError(msg string) *ServiceError {
	return &ServiceError{Kind: ErrValidation, Message: msg}
}

// NewConflictError reports an action illegal for the current state.
func NewConflictError(msg string) *ServiceError {
	return &ServiceError{Kind: ErrConflict, Message: msg}
}

// NewNotFoundError reports an absent entity.
func NewNotFoundError(msg string) *ServiceError {
	return &ServiceError{Kind: ErrNotFound, Message: msg}
}

// NewForbiddenError reports an ownership mismatch.
func NewForbiddenError(msg string) *ServiceError {
	return &ServiceError{Kind: ErrForbidden, Message: msg}
}

// NewInfrastructureError wraps a store or broker failure.
func NewInfrastructureError(msg string, err error) *ServiceError {
	return &ServiceError{Kind: ErrInfrastructure, Message: msg, Err: err}
}
