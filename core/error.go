package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an Error so that transports can map it to a response.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindInvalidOperation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindCreationFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindCreationFailed:
		return "creation_failed"
	default:
		return "internal"
	}
}

// Error is a client facing error. The message is safe to return to the caller.
type Error struct {
	Kind ErrorKind
	msg  string
	// err is the underlying cause. It is never exposed to the client.
	err error
}

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func NewErrorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause to a client facing error.
func WrapError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, err: cause}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

// Message returns the client safe message without the cause.
func (e *Error) Message() string {
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports a match against a sentinel with the same kind and message, so
// that an error built with WrapError still matches the sentinel it was derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.msg == t.msg
}

// KindOf returns the kind of the first Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrRoomNotFound       = NewError(KindNotFound, "room not found")
	ErrUserNotFound       = NewError(KindNotFound, "user not found")
	ErrDirectRoomNotFound = NewError(KindNotFound, "direct room not found")
	// ErrDirectRoomImmutable is returned when join or leave targets a direct room.
	ErrDirectRoomImmutable = NewError(KindInvalidOperation, "members of a direct room cannot change")
	ErrAlreadyMember       = NewError(KindConflict, "user is already a member of the room")
	ErrNotMember           = NewError(KindForbidden, "user is not a member of the room")
	ErrSelfDirectRoom      = NewError(KindValidation, "cannot create a direct room with yourself")
	ErrInvalidMessageType  = NewError(KindValidation, "invalid message type")
	ErrRoomCreationFailed  = NewError(KindCreationFailed, "room creation failed")
	ErrConflictedUser      = NewError(KindConflict, "user already exists")
	ErrBadCredentials      = NewError(KindUnauthorized, "invalid credentials")
	ErrUnauthenticated     = NewError(KindUnauthorized, "unauthenticated")
)

// ValidationError returns a KindValidation error for a missing or malformed field.
func ValidationError(format string, args ...interface{}) *Error {
	return NewErrorf(KindValidation, format, args...)
}
