package hey

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Error wraps an error together with the frame of the call that created it,
// so that "%+v" prints where a storage or network failure surfaced.
type Error struct {
	err   error
	msg   string
	frame xerrors.Frame
}

// ErrorOrNil returns nil if err is nil, otherwise err wrapped with msg and
// the stack frame of the caller.
func ErrorOrNil(err error, msg string) error {
	return errorOrNilSkip(err, msg, 2)
}

// errorOrNilSkip records the frame skip calls above itself.
func errorOrNilSkip(err error, msg string, skip int) error {
	if err == nil {
		return nil
	}
	return &Error{
		err:   err,
		msg:   msg,
		frame: xerrors.Caller(skip),
	}
}

// WrapError records the caller's frame without changing the message. The
// result still matches the wrapped error with xerrors.Is.
func WrapError(err error) error {
	return errorOrNilSkip(err, "", 2)
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg + ": " + fmt.Sprintf("%v", e.err)
	}
	return fmt.Sprintf("%v", e.err)
}

// Unwrap returns the next error in the chain.
func (e *Error) Unwrap() error {
	return e.err
}

// Format prints the error to the formatter.
func (e *Error) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// FormatError prints the error to the printer, with the recorded frame when
// the detail flag ("%+v") is set.
func (e *Error) FormatError(p xerrors.Printer) error {
	if e.msg != "" {
		p.Printf("%s: %v", e.msg, e.err)
	} else {
		p.Printf("%v", e.err)
	}

	if p.Detail() {
		e.frame.Format(p)
		p.Printf("%+v", e.err)
	}
	return nil
}
