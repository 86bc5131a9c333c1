// Package apperror defines the closed set of outcomes the booking service
// reports to its callers.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. The set is closed; the HTTP layer matches it
// exhaustively.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindNotEligible
	KindRoomFull
	KindValidation
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindNotEligible:
		return "NOT_ELIGIBLE"
	case KindRoomFull:
		return "ROOM_FULL"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is a typed domain outcome.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetails attaches structured context for the response body.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Kind sentinels for errors.Is.
var (
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	ErrNotEligible  = &Error{Kind: KindNotEligible, Message: "cannot create booking"}
	ErrRoomFull     = &Error{Kind: KindRoomFull, Message: "room is full"}
	ErrValidation   = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrInternal     = &Error{Kind: KindInternal, Message: "internal error"}
)

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func NotEligible(reason string) *Error {
	return &Error{Kind: KindNotEligible, Message: "cannot create booking", Details: map[string]any{"reason": reason}}
}

func RoomFull(roomID int) *Error {
	return &Error{Kind: KindRoomFull, Message: "room is full", Details: map[string]any{"roomId": roomID}}
}

func Validation(message string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// As returns err as an *Error, wrapping unknown errors as internal.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("an unexpected error occurred", err)
}
