package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes shared by the stores, the sequencer and the definition loader.
const (
	EInternal  = "internal error"
	ENotFound  = "not found"
	EConflict  = "conflict" // database state does not allow the operation
	EInvalid   = "invalid"  // input failed validation
	EForbidden = "forbidden"
)

// Error carries a code for callers that branch on the kind of failure, a
// message for the operator, and the op ("package/Func") where it happened.
// Err chains the cause, so a chain of *Error reads as a logical stack
// from the CLI down to the storage engine.
//
//	&Error{
//	    Code: ENotFound,
//	    Op:   "bolt/Get",
//	    Msg:  `User "42" not found`,
//	}
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// Wrap returns err as the cause of a new *Error with code and op. It
// returns nil if err is nil.
func Wrap(err error, code, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// Error writes the message followed by the message of the cause.
func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code and message, so that
// errors.Is finds sentinel errors such as a closed handle.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code && e.Msg == t.Msg && t.Op == "" && t.Err == nil
}

// ErrorCode returns the first code found in the chain of err. Errors that
// carry no code are internal errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) || e == nil {
		return EInternal
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return ErrorCode(e.Err)
	}
	return EInternal
}

// ErrorOp returns the first op found in the chain of err, or "".
func ErrorOp(err error) string {
	var e *Error
	if err == nil || !errors.As(err, &e) || e == nil {
		return ""
	}
	if e.Op != "" {
		return e.Op
	}
	if e.Err != nil {
		return ErrorOp(e.Err)
	}
	return ""
}

// ErrorMessage returns the first operator message found in the chain of
// err, or a generic one.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) || e == nil {
		return "An internal error has occurred."
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return ErrorMessage(e.Err)
	}
	return "An internal error has occurred."
}
