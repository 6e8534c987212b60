package handlebars

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by CompileError and RuntimeError through errors.Is.
var (
	ErrMissingHelper    = errors.New("missing helper")
	ErrMissingPartial   = errors.New("missing partial")
	ErrArity            = errors.New("wrong number of arguments")
	ErrUnknownDecorator = errors.New("unknown decorator")
	ErrSubExpression    = errors.New("invalid sub-expression")
	ErrUnsupported      = errors.New("unsupported node")
	ErrMissingValue     = errors.New("missing value")
	ErrHelper           = errors.New("helper failed")
	ErrPartialDepth     = errors.New("partial recursion too deep")
)

// CompileError reports a template that cannot be turned into a program.
type CompileError struct {
	Kind    error
	Name    string
	Message string
}

func (e *CompileError) Error() string { return e.Message }
func (e *CompileError) Unwrap() error { return e.Kind }

func compileErrorf(kind error, name, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Name: name, Message: fmt.Sprintf(format, args...)}
}

func missingHelper(name string) *CompileError {
	return compileErrorf(ErrMissingHelper, name, "Missing helper: %q", name)
}

// RuntimeError aborts a render. Err holds the failure raised by a helper or
// lambda, if any.
type RuntimeError struct {
	Kind    error
	Message string
	Err     error
}

func (e *RuntimeError) Error() string { return e.Message }

func (e *RuntimeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func runtimeErrorf(kind error, cause error, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Err: cause, Message: fmt.Sprintf(format, args...)}
}
