package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// FieldError names one offending input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is a locally detected problem with user input. The
// operation that produced it made no change.
type ValidationError struct {
	Fields []FieldError
	Err    error
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Err != nil {
			return e.Err.Error()
		}
		return "validation error"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return strings.Join(parts, "; ")
}

func (e ValidationError) Unwrap() error { return e.Err }

// Validation builds a ValidationError for the given sentinel and fields.
func Validation(err error, fields ...FieldError) error {
	return ValidationError{Fields: fields, Err: err}
}

// Field is shorthand for a single FieldError.
func Field(name, format string, args ...any) FieldError {
	return FieldError{Field: name, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e NotFoundError) Error() string {
	switch {
	case e.Resource != "" && e.ID != "":
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	case e.Resource != "":
		return fmt.Sprintf("%s not found", e.Resource)
	default:
		return "not found"
	}
}

func (e NotFoundError) Unwrap() error { return e.Err }

// TransportError is a remote failure. Local booking state is untouched and
// the operation can be retried.
type TransportError struct {
	Op  string
	Err error
}

func (e TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Op)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// ConflictError reports seats taken by another booking.
type ConflictError struct {
	Resource string
	Seats    []models.SeatLabel
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "conflict"
	}
	if e.Resource != "" {
		msg = fmt.Sprintf("%s %s", e.Resource, msg)
	}
	if len(e.Seats) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(models.SeatStrings(e.Seats), ", "))
	}
	return msg
}

func (e ConflictError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsTransport(err error) bool {
	var target TransportError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

// Fields returns the offending fields carried by a ValidationError, if any.
func Fields(err error) []FieldError {
	var target ValidationError
	if errors.As(err, &target) {
		return target.Fields
	}
	return nil
}

// ConflictingSeats returns the seats carried by a ConflictError, if any.
func ConflictingSeats(err error) []models.SeatLabel {
	var target ConflictError
	if errors.As(err, &target) {
		return target.Seats
	}
	return nil
}
