package errorsx

import (
	"errors"
	"fmt"
)

type reasonedError struct {
	err    error
	reason ReasonCode
}

func (e *reasonedError) Error() string {
	return fmt.Sprintf("%s: %s", e.reason, e.err)
}

func (e *reasonedError) Unwrap() error { return e.err }

// Wrap attaches a reason code to err. A nil err stays nil, and an error that
// already carries a reason keeps its innermost one, so the first failure site
// wins over later re-wrapping.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re *reasonedError
	if errors.As(err, &re) {
		return err
	}
	return &reasonedError{err: err, reason: reason}
}

// Reason returns the reason code carried by err, or ReasonUnknown when none
// is attached.
func Reason(err error) ReasonCode {
	var re *reasonedError
	if errors.As(err, &re) {
		return re.reason
	}
	return ReasonUnknown
}

// HasReason reports whether err carries the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}
