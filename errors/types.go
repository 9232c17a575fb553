package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorType classifies failures so callers can pick a degradation policy.
type ErrorType string

const (
	// TypeParse marks a malformed log line or config document.
	TypeParse ErrorType = "parse"
	// TypeIO marks an unreadable file or directory.
	TypeIO ErrorType = "io"
	// TypeStateCorrupt marks a persisted state file that could not be decoded.
	TypeStateCorrupt ErrorType = "state_corrupt"
	// TypeValidation marks user input that was rejected.
	TypeValidation ErrorType = "validation"
	// TypeUnexpected marks a recovered panic or an invariant violation.
	TypeUnexpected ErrorType = "unexpected"
)

// Sentinels matched with errors.Is.
var (
	ErrLogDirNotFound = stderrors.New("Log directory not found")
	ErrInvalidPercent = stderrors.New("reported percent must be in (0, 100]")
)

// Error is the typed error returned by the engine packages.
type Error struct {
	Type    ErrorType
	Op      string
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "" && e.Cause != nil:
		fmt.Fprintf(&b, "%s: %v", e.Message, e.Cause)
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Cause != nil:
		b.WriteString(e.Cause.Error())
	default:
		b.WriteString(string(e.Type))
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports a match against another *Error of the same type with no
// further detail, so errors.Is(err, &Error{Type: TypeValidation}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Op == "" && t.Path == "" && t.Message == "" && t.Cause == nil
}

// New builds an Error of the given type.
func New(typ ErrorType, op, message string) *Error {
	return &Error{Type: typ, Op: op, Message: message}
}

// Wrap attaches a type and operation to cause. A nil cause returns nil.
func Wrap(typ ErrorType, op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Type: typ, Op: op, Path: path, Cause: cause}
}

// TypeOf returns the type of the first *Error in err's chain, or
// TypeUnexpected when there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return TypeUnexpected
}

// IsType reports whether err's chain carries the given type.
func IsType(err error, typ ErrorType) bool {
	return err != nil && stderrors.Is(err, &Error{Type: typ})
}
