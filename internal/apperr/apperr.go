package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Invalid          Kind = "invalid"
	InvalidSignature Kind = "invalid_signature"
	NotFound         Kind = "not_found"
	Forbidden        Kind = "forbidden"
	InvalidState     Kind = "invalid_state"
	Conflict         Kind = "conflict"
	Internal         Kind = "internal"
)

// Error carries a classification, a message safe to return to callers,
// and the underlying error for logs.
type Error struct {
	Kind      Kind
	PublicMsg string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.PublicMsg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.PublicMsg)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func InvalidErr(msg string) *Error {
	return &Error{Kind: Invalid, PublicMsg: msg}
}

func InvalidSignatureErr(msg string) *Error {
	return &Error{Kind: InvalidSignature, PublicMsg: msg}
}

func NotFoundErr(msg string) *Error {
	return &Error{Kind: NotFound, PublicMsg: msg}
}

func ForbiddenErr(msg string) *Error {
	return &Error{Kind: Forbidden, PublicMsg: msg}
}

func InvalidStateErr(msg string) *Error {
	return &Error{Kind: InvalidState, PublicMsg: msg}
}

func ConflictErr(msg string) *Error {
	return &Error{Kind: Conflict, PublicMsg: msg}
}

// Wrap classifies an unexpected internal error without a public message.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: Internal, PublicMsg: "unexpected error", Err: err}
}

func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	if ae, ok := As(err); ok {
		return ae.Kind == kind
	}
	return false
}

func HTTPStatus(err error) int {
	if ae, ok := As(err); ok {
		switch ae.Kind {
		case Invalid, InvalidSignature, InvalidState:
			return http.StatusBadRequest
		case NotFound:
			return http.StatusNotFound
		case Forbidden:
			return http.StatusForbidden
		case Conflict:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.PublicMsg != "" {
		return ae.PublicMsg
	}
	return "unexpected error"
}
