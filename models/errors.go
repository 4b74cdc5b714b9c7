package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the booking saga can surface to a client.
type ErrorKind string

const (
	ErrSlotUnavailable     ErrorKind = "SlotUnavailable"
	ErrValidation          ErrorKind = "ValidationError"
	ErrPaymentSetup        ErrorKind = "PaymentSetupError"
	ErrPaymentDeclined     ErrorKind = "PaymentDeclined"
	ErrPaymentProcessing   ErrorKind = "PaymentProcessingError"
	ErrNetwork             ErrorKind = "NetworkError"
	ErrInvalidTransition   ErrorKind = "InvalidTransition"
	ErrInFlight            ErrorKind = "InFlight"
	ErrDuplicateSubmission ErrorKind = "DuplicateSubmission"
	ErrSessionNotFound     ErrorKind = "SessionNotFound"
	ErrBookingNotFound     ErrorKind = "BookingNotFound"
	ErrServiceNotFound     ErrorKind = "ServiceNotFound"
)

// SagaError carries an ErrorKind plus a user-facing message.
type SagaError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SagaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SagaError) Unwrap() error {
	return e.Err
}

// Is matches any SagaError of the same kind, so errors.Is(err, &SagaError{Kind: k}) works.
func (e *SagaError) Is(target error) bool {
	t, ok := target.(*SagaError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewSagaError(kind ErrorKind, msg string) error {
	return &SagaError{Kind: kind, Message: msg}
}

func WrapSagaError(kind ErrorKind, msg string, err error) error {
	return &SagaError{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the ErrorKind carried by err. Anything unclassified,
// including context deadlines, is a NetworkError: the outcome is unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *SagaError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrNetwork
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var se *SagaError
	if errors.As(err, &se) {
		return se.Message
	}
	return "the request could not be completed, please try again"
}
