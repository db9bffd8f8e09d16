package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Code classifies adaptation and binding failures.
type Code string

const (
	CodeMemberNotFound            Code = "MEMBER_NOT_FOUND"
	CodeAmbiguousMember           Code = "AMBIGUOUS_MEMBER"
	CodeInvalidShape              Code = "INVALID_SHAPE"
	CodeGeneration                Code = "GENERATION_FAILED"
	CodeParameterCountMismatch    Code = "PARAMETER_COUNT_MISMATCH"
	CodeTypeConstraintUnsatisfied Code = "TYPE_CONSTRAINT_UNSATISFIED"
	CodeBindingFailed             Code = "BINDING_FAILED"
)

// Error is the structured error returned by the resolver, the adapter
// synthesizer and the invocation binder.
type Error struct {
	Code    Code
	Message string
	Member  string
	Type    reflect.Type
	Shape   reflect.Type
	Cause   error
}

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrMemberNotFound            = &Error{Code: CodeMemberNotFound}
	ErrAmbiguousMember           = &Error{Code: CodeAmbiguousMember}
	ErrInvalidShape              = &Error{Code: CodeInvalidShape}
	ErrGeneration                = &Error{Code: CodeGeneration}
	ErrParameterCountMismatch    = &Error{Code: CodeParameterCountMismatch}
	ErrTypeConstraintUnsatisfied = &Error{Code: CodeTypeConstraintUnsatisfied}
	ErrBindingFailed             = &Error{Code: CodeBindingFailed}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Member != "" {
		fmt.Fprintf(&b, " (member %q", e.Member)
		if e.Type != nil {
			fmt.Fprintf(&b, " on %s", e.Type)
		}
		b.WriteByte(')')
	} else if e.Type != nil {
		fmt.Fprintf(&b, " (type %s)", e.Type)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// NewError creates an error with the given code and formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error with the given code around cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf returns the code of the outermost *Error in err's chain, or "" if
// there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// RootCode returns the code of the innermost *Error in err's chain. A
// GENERATION_FAILED caused by a missing member reports MEMBER_NOT_FOUND.
func RootCode(err error) Code {
	var code Code
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		code = e.Code
		err = e.Cause
	}
	return code
}
