package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMsg(t *testing.T) {
	cases := []struct {
		name string
		err  error
		msg  string
	}{
		{
			name: "simple error",
			err:  &Error{Code: ENotFound},
			msg:  "<not found>",
		},
		{
			name: "with message",
			err: &Error{
				Code: ENotFound,
				Op:   "bolt/Get",
				Msg:  fmt.Sprintf("User %q not found", "u1"),
			},
			msg: `User "u1" not found`,
		},
		{
			name: "with a third party error",
			err: &Error{
				Code: EInternal,
				Op:   "bolt/Open",
				Err:  errors.New("timeout"),
			},
			msg: "timeout",
		},
		{
			name: "with message and error",
			err: &Error{
				Code: EInternal,
				Msg:  "unable to open boltdb file",
				Err:  errors.New("timeout"),
			},
			msg: "unable to open boltdb file: timeout",
		},
	}
	for _, c := range cases {
		if c.msg != c.err.Error() {
			t.Fatalf("%s failed, want %s, got %s", c.name, c.msg, c.err.Error())
		}
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{name: "nil", err: nil, code: ""},
		{name: "plain error", err: errors.New("boom"), code: EInternal},
		{name: "coded", err: &Error{Code: EConflict}, code: EConflict},
		{
			name: "code of wrapped error",
			err:  &Error{Op: "sqlite/Open", Err: &Error{Code: EForbidden}},
			code: EForbidden,
		},
		{
			name: "fmt wrapped",
			err:  fmt.Errorf("run: %w", &Error{Code: EInvalid}),
			code: EInvalid,
		},
		{
			name: "uncoded without cause",
			err:  &Error{Msg: "oops"},
			code: EInternal,
		},
	}
	for _, c := range cases {
		if got := ErrorCode(c.err); got != c.code {
			t.Errorf("%s failed, want %q, got %q", c.name, c.code, got)
		}
	}
}

func TestErrorOpAndMessage(t *testing.T) {
	err := fmt.Errorf("migration 2: %w", &Error{
		Code: EInternal,
		Err:  &Error{Op: "bolt/Open", Msg: "unable to open boltdb file"},
	})

	if got := ErrorOp(err); got != "bolt/Open" {
		t.Errorf("unexpected op %q", got)
	}
	if got := ErrorMessage(err); got != "unable to open boltdb file" {
		t.Errorf("unexpected message %q", got)
	}
	if got := ErrorMessage(errors.New("boom")); got != "An internal error has occurred." {
		t.Errorf("unexpected message %q", got)
	}
	if got := ErrorOp(errors.New("boom")); got != "" {
		t.Errorf("unexpected op %q", got)
	}
}

func TestErrorsIs(t *testing.T) {
	cause := errors.New("disk full")
	err := &Error{Code: EInternal, Op: "bolt/Put", Msg: "writing", Err: cause}

	if !errors.Is(err, cause) {
		t.Fatal("expected the cause to be found in the chain")
	}

	closed := &Error{Code: EConflict, Msg: "database handle is closed"}
	wrapped := fmt.Errorf("close: %w", &Error{Code: EConflict, Msg: "database handle is closed"})
	if !errors.Is(wrapped, closed) {
		t.Fatal("expected errors with the same code and message to match")
	}
	if errors.Is(&Error{Code: EConflict, Msg: "other"}, closed) {
		t.Fatal("expected errors with different messages not to match")
	}
}

func TestWrap(t *testing.T) {
	if err := Wrap(nil, EInternal, "sqlite/Put"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	err := Wrap(errors.New("locked"), EInternal, "sqlite/Put")
	if got := ErrorCode(err); got != EInternal {
		t.Errorf("unexpected code %q", got)
	}
	if got := ErrorOp(err); got != "sqlite/Put" {
		t.Errorf("unexpected op %q", got)
	}
	if got := err.Error(); got != "locked" {
		t.Errorf("unexpected error string %q", got)
	}
}
