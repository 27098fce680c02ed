package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuth         = errors.New("authentication failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrNetwork      = errors.New("network error")
	ErrValidation   = errors.New("validation failed")
	ErrBackend      = errors.New("backend rejected request")
)

// Error carries the failing operation and a user-facing message on top of
// one of the sentinel kinds above. errors.Is matches the kind.
type Error struct {
	Kind    error
	Op      string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%v: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, msg)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind error, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func WrapError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, message string) *Error {
	return NewError(ErrValidation, op, message)
}

// KindOf reports which sentinel an error belongs to, or nil when it is
// none of them.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrAuth, ErrUnauthorized, ErrNotFound, ErrNetwork, ErrBackend} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// UserMessage is the text a caller shows next to a failed action.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
