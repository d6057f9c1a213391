// Package apperr defines the failure kinds surfaced to users.
// Every failure is reported inline next to the action that caused it;
// none of them are retried and none are fatal to the process.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindAuth         Kind = "AuthFailure"
	KindRegistration Kind = "RegistrationFailure"
	KindValidation   Kind = "ValidationFailure"
	KindRemote       Kind = "RemoteFailure"
	KindIO           Kind = "IOFailure"
)

// Error is a classified failure. StatusCode is only set for KindRemote.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Kind == KindRemote && e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status code %d)", msg, e.StatusCode)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindIO}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

func Auth(op, message string) error {
	return &Error{Kind: KindAuth, Op: op, Message: message}
}

func Registration(op, message string) error {
	return &Error{Kind: KindRegistration, Op: op, Message: message}
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Remote(op string, statusCode int, message string) error {
	return &Error{Kind: KindRemote, Op: op, StatusCode: statusCode, Message: message}
}

// RemoteWrap classifies a transport-level failure (no HTTP status available).
func RemoteWrap(op string, err error) error {
	return &Error{Kind: KindRemote, Op: op, Err: err}
}

func IO(op string, err error) error {
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusCodeOf returns the remote status code carried by err, or 0.
func StatusCodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// HTTPStatus maps a failure onto the status the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindRegistration:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
