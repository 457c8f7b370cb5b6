// Package apperrors is the error taxonomy the service exposes to callers.
// Repositories translate driver errors into these kinds at the boundary;
// handlers map kinds to HTTP status codes. Backend-native errors never
// escape past this package.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindSlotUnavailable
	KindSessionAlreadyActive
	KindInvalidSessionState
	KindContention
	KindUnauthorized
	KindBackendUnavailable
	KindInvalidArgument
	KindConflict
)

type Error struct {
	Kind   Kind
	Entity string // which entity was missing, for KindNotFound
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Msg: entity + " not found"}
}

func SlotUnavailable(locationID string, category string) *Error {
	return &Error{
		Kind: KindSlotUnavailable,
		Msg:  fmt.Sprintf("no %s slot available at location %s", category, locationID),
	}
}

func SessionAlreadyActive(sessionID string) *Error {
	return &Error{
		Kind: KindSessionAlreadyActive,
		Msg:  fmt.Sprintf("user already has an active parking session %s", sessionID),
	}
}

func InvalidSessionState(sessionID, detail string) *Error {
	return &Error{
		Kind: KindInvalidSessionState,
		Msg:  fmt.Sprintf("session %s: %s", sessionID, detail),
	}
}

func Contention(err error) *Error {
	return &Error{Kind: KindContention, Msg: "reservation conflict, retries exhausted", Err: err}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

func BackendUnavailable(err error) *Error {
	return &Error{Kind: KindBackendUnavailable, Msg: "storage backend unavailable", Err: err}
}

func InvalidArgument(msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Msg: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Msg: msg}
}

// KindOf unwraps err looking for a tagged error. Untagged errors report
// KindUnknown and are treated as internal failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code handlers should write.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindSlotUnavailable, KindSessionAlreadyActive, KindInvalidSessionState, KindConflict:
		return http.StatusConflict
	case KindContention:
		return http.StatusServiceUnavailable
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBackendUnavailable:
		return http.StatusBadGateway
	case KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
