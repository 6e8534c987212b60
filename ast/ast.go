// Package ast defines the syntax tree produced by the parser and consumed by
// the compiler.
package ast

import (
	"regexp"
	"strconv"
)

// Loc is the position of a node in the template source.
type Loc struct {
	Line   int
	Column int
}

type Node interface {
	Location() Loc
}

// Statement is a node that may appear in a Program body.
type Statement interface {
	Node
	statement()
}

// Expression is a node that evaluates to a value.
type Expression interface {
	Node
	expression()
}

// Literal is an expression with a fixed value.
type Literal interface {
	Expression
	// Key is the canonical string form used when the literal is in head position.
	Key() string
}

// Program is a list of statements. BlockParams is set when the owning block
// declared `as |a b|`; Chained marks the inverse of an `{{else if}}`.
type Program struct {
	Body        []Statement
	BlockParams []string
	Chained     bool
	Loc         Loc
}

func (p *Program) Location() Loc { return p.Loc }

type ContentStatement struct {
	Value    string
	Original string
	Loc      Loc
}

type CommentStatement struct {
	Value string
	Loc   Loc
}

type MustacheStatement struct {
	Path    Expression
	Params  []Expression
	Hash    *Hash
	Escaped bool
	Loc     Loc
}

type BlockType int

const (
	Block BlockType = iota
	DecoratorBlock
)

type BlockStatement struct {
	Type    BlockType
	Path    Expression
	Params  []Expression
	Hash    *Hash
	Program *Program
	Inverse *Program
	Loc     Loc
}

type PartialStatement struct {
	Name   Expression
	Params []Expression
	Hash   *Hash
	Indent string
	Loc    Loc
}

type PartialBlockStatement struct {
	Name    Expression
	Params  []Expression
	Hash    *Hash
	Program *Program
	Loc     Loc
}

type Decorator struct {
	Path   Expression
	Params []Expression
	Hash   *Hash
	Loc    Loc
}

func (s *ContentStatement) Location() Loc      { return s.Loc }
func (s *CommentStatement) Location() Loc      { return s.Loc }
func (s *MustacheStatement) Location() Loc     { return s.Loc }
func (s *BlockStatement) Location() Loc        { return s.Loc }
func (s *PartialStatement) Location() Loc      { return s.Loc }
func (s *PartialBlockStatement) Location() Loc { return s.Loc }
func (s *Decorator) Location() Loc             { return s.Loc }

func (*ContentStatement) statement()      {}
func (*CommentStatement) statement()      {}
func (*MustacheStatement) statement()     {}
func (*BlockStatement) statement()        {}
func (*PartialStatement) statement()      {}
func (*PartialBlockStatement) statement() {}
func (*Decorator) statement()             {}

// PathExpression is a (possibly `@`-data, possibly `../`-depthed) lookup.
// Parts excludes `this`, `.` and `..` segments.
type PathExpression struct {
	Data     bool
	Depth    int
	Parts    []string
	This     bool
	Original string
	Loc      Loc
}

type SubExpression struct {
	Path   Expression
	Params []Expression
	Hash   *Hash
	Loc    Loc
}

type StringLiteral struct {
	Value string
	Loc   Loc
}

type NumberLiteral struct {
	Value float64
	Loc   Loc
}

type BooleanLiteral struct {
	Value bool
	Loc   Loc
}

type NullLiteral struct{ Loc Loc }

type UndefinedLiteral struct{ Loc Loc }

func (e *PathExpression) Location() Loc   { return e.Loc }
func (e *SubExpression) Location() Loc    { return e.Loc }
func (e *StringLiteral) Location() Loc    { return e.Loc }
func (e *NumberLiteral) Location() Loc    { return e.Loc }
func (e *BooleanLiteral) Location() Loc   { return e.Loc }
func (e *NullLiteral) Location() Loc      { return e.Loc }
func (e *UndefinedLiteral) Location() Loc { return e.Loc }

func (*PathExpression) expression()   {}
func (*SubExpression) expression()    {}
func (*StringLiteral) expression()    {}
func (*NumberLiteral) expression()    {}
func (*BooleanLiteral) expression()   {}
func (*NullLiteral) expression()      {}
func (*UndefinedLiteral) expression() {}

func (e *StringLiteral) Key() string { return e.Value }
func (e *NumberLiteral) Key() string { return strconv.FormatFloat(e.Value, 'f', -1, 64) }
func (e *BooleanLiteral) Key() string {
	if e.Value {
		return "true"
	}
	return "false"
}
func (e *NullLiteral) Key() string      { return "null" }
func (e *UndefinedLiteral) Key() string { return "undefined" }

// Hash holds `key=value` arguments in source order.
type Hash struct {
	Pairs []HashPair
	Loc   Loc
}

type HashPair struct {
	Key   string
	Value Expression
}

// Get returns the value of the first pair named key.
func (h *Hash) Get(key string) (Expression, bool) {
	if h == nil {
		return nil, false
	}
	for _, p := range h.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

var scopedRe = regexp.MustCompile(`^\.|this\b`)

// Scoped reports whether the path is an explicit context lookup (starts with
// `.` or uses `this`), which bypasses helper and block-param resolution.
func (e *PathExpression) Scoped() bool {
	return scopedRe.MatchString(e.Original)
}

// SimpleName returns the helper-candidate name of a single-segment, non-data,
// depth-0, unscoped path.
func SimpleName(e Expression) (string, bool) {
	p, ok := e.(*PathExpression)
	if !ok || p.Data || p.Depth > 0 || p.Scoped() || len(p.Parts) != 1 {
		return "", false
	}
	return p.Parts[0], true
}
