package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError carries a recovered panic value and the stack at recovery.
type PanicError struct {
	Op    string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.Op, e.Value)
}

// Is lets errors.Is(err, &Error{Type: TypeUnexpected}) match recovered panics.
func (e *PanicError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == TypeUnexpected && t.Op == "" && t.Message == "" && t.Cause == nil && t.Path == ""
}

// SafeCall runs fn and converts a panic into a *PanicError.
func SafeCall(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Op: op, Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn()
}
