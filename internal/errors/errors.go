package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports a user input or precondition failure. It is
// surfaced synchronously, never retried, and implies no state changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
	}
	return "validation failed: " + e.Reason
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a missing campaign/recipient/contact/template.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

func NewNotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// TransientDeliveryError wraps a delivery failure that might succeed on
// retry (network error, timeout, provider throttling).
type TransientDeliveryError struct {
	Err error
}

func (e *TransientDeliveryError) Error() string {
	return "transient delivery error: " + e.Err.Error()
}

func (e *TransientDeliveryError) Unwrap() error { return e.Err }

func NewTransientDelivery(err error) error {
	return &TransientDeliveryError{Err: err}
}

// PermanentDeliveryError wraps a delivery failure that cannot succeed on
// retry (malformed address, hard bounce).
type PermanentDeliveryError struct {
	Err error
}

func (e *PermanentDeliveryError) Error() string {
	return "permanent delivery error: " + e.Err.Error()
}

func (e *PermanentDeliveryError) Unwrap() error { return e.Err }

func NewPermanentDelivery(err error) error {
	return &PermanentDeliveryError{Err: err}
}

// ConflictError reports that another worker already claimed the same
// unit of work. The loser backs off silently.
type ConflictError struct {
	Resource string
	ID       any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %v already claimed", e.Resource, e.ID)
}

func NewConflict(resource string, id any) error {
	return &ConflictError{Resource: resource, ID: id}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsTransient(err error) bool {
	var te *TransientDeliveryError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentDeliveryError
	return errors.As(err, &pe)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// HTTPStatus maps an error to the status code the API layer should
// respond with.
func HTTPStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
