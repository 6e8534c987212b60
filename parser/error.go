package parser

import (
	"fmt"

	"github.com/oarkflow/handlebars/ast"
)

// Error is a syntax error with the position it was detected at.
type Error struct {
	Loc     ast.Loc
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error on line %d, column %d: %s", e.Loc.Line, e.Loc.Column, e.Message)
}

func newError(loc ast.Loc, format string, args ...any) *Error {
	return &Error{Loc: loc, Message: fmt.Sprintf(format, args...)}
}
