// Package contract reports programmer-contract violations: calls that can only
// happen when the calling code is wrong, as opposed to runtime conditions a
// caller is expected to handle.
//
// The default Handler panics. A host that prefers to keep running may install
// LogOnly; the reporting method then returns the *Violation as its error.
package contract

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Violation wraps the sentinel error describing which contract was broken.
type Violation struct {
	Err    error
	Detail string
}

func (v *Violation) Error() string {
	if v.Detail == "" {
		return "contract violation: " + v.Err.Error()
	}
	return fmt.Sprintf("contract violation: %s (%s)", v.Err, v.Detail)
}

func (v *Violation) Unwrap() error { return v.Err }

// Handler receives every violation. If it returns, the caller continues with
// the violation as an ordinary error.
type Handler func(v *Violation)

// Panic is the default Handler.
func Panic(v *Violation) { panic(v) }

// LogOnly logs the violation at error level and lets the caller continue.
func LogOnly(logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(v *Violation) {
		logger.Error("contract_violation", zap.Error(v.Err), zap.String("detail", v.Detail), zap.Stack("stack"))
	}
}

// Report builds a Violation for err, passes it to h (Panic when h is nil) and
// returns it.
func Report(h Handler, err error, format string, args ...any) error {
	v := &Violation{Err: err}
	if format != "" {
		v.Detail = fmt.Sprintf(format, args...)
	}
	if h == nil {
		h = Panic
	}
	h(v)
	return v
}

// IsViolation reports whether err is or wraps a *Violation.
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}
