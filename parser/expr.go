package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/oarkflow/handlebars/ast"
)

// call is the parsed content of a tag: a head expression followed by
// positional params, hash pairs and optional block params.
type call struct {
	head        ast.Expression
	headText    string
	params      []ast.Expression
	hash        *ast.Hash
	blockParams []string
}

type exprParser struct {
	src string
	i   int
	loc ast.Loc
}

var (
	numberRe      = regexp.MustCompile(`^-?[0-9]+(?:\.[0-9]+)?`)
	blockParamsRe = regexp.MustCompile(`^as\s+\|`)
)

func parseCall(src string, loc ast.Loc) (*call, error) {
	p := &exprParser{src: src, loc: loc}
	c, err := p.call(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.src[p.i:])
	}
	return c, nil
}

func (p *exprParser) eof() bool { return p.i >= len(p.src) }

func (p *exprParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.i]
}

func (p *exprParser) errorf(format string, args ...any) error {
	return newError(p.loc, format, args...)
}

func (p *exprParser) skipSpace() {
	for !p.eof() {
		switch p.src[p.i] {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			p.i++
		default:
			return
		}
	}
}

// call parses `head params... key=value... as |a b|`, stopping at closer
// (consumed) or at the end of input when closer is 0.
func (p *exprParser) call(closer byte) (*call, error) {
	c := &call{}
	p.skipSpace()
	if p.eof() || p.peek() == closer {
		return nil, p.errorf("expected expression")
	}
	start := p.i
	head, err := p.operand()
	if err != nil {
		return nil, err
	}
	c.head = head
	c.headText = p.src[start:p.i]
	for {
		p.skipSpace()
		if p.eof() {
			if closer != 0 {
				return nil, p.errorf("unterminated sub-expression")
			}
			return c, nil
		}
		if closer != 0 && p.peek() == closer {
			p.i++
			return c, nil
		}
		if blockParamsRe.MatchString(p.src[p.i:]) {
			if closer != 0 {
				return nil, p.errorf("block params are not allowed in a sub-expression")
			}
			bps, err := p.blockParams()
			if err != nil {
				return nil, err
			}
			c.blockParams = bps
			continue
		}
		if key, ok := p.hashKey(); ok {
			value, err := p.operand()
			if err != nil {
				return nil, err
			}
			if c.hash == nil {
				c.hash = &ast.Hash{Loc: p.loc}
			}
			c.hash.Pairs = append(c.hash.Pairs, ast.HashPair{Key: key, Value: value})
			continue
		}
		if c.hash != nil || c.blockParams != nil {
			return nil, p.errorf("unexpected positional argument %q", p.src[p.i:])
		}
		param, err := p.operand()
		if err != nil {
			return nil, err
		}
		c.params = append(c.params, param)
	}
}

func (p *exprParser) hashKey() (string, bool) {
	save := p.i
	n := p.idLen(p.i)
	if n == 0 {
		return "", false
	}
	key := p.src[p.i : p.i+n]
	p.i += n
	p.skipSpace()
	if p.peek() != '=' {
		p.i = save
		return "", false
	}
	p.i++
	p.skipSpace()
	return key, true
}

func (p *exprParser) blockParams() ([]string, error) {
	loc := blockParamsRe.FindStringIndex(p.src[p.i:])
	p.i += loc[1]
	var names []string
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated block params")
		}
		if p.peek() == '|' {
			p.i++
			break
		}
		n := p.idLen(p.i)
		if n == 0 {
			return nil, p.errorf("invalid block param %q", p.src[p.i:])
		}
		names = append(names, p.src[p.i:p.i+n])
		p.i += n
	}
	if len(names) == 0 {
		return nil, p.errorf("empty block params")
	}
	return names, nil
}

func (p *exprParser) operand() (ast.Expression, error) {
	p.skipSpace()
	switch c := p.peek(); c {
	case 0:
		return nil, p.errorf("expected expression")
	case '(':
		p.i++
		sub, err := p.call(')')
		if err != nil {
			return nil, err
		}
		if sub.blockParams != nil {
			return nil, p.errorf("block params are not allowed in a sub-expression")
		}
		return &ast.SubExpression{Path: sub.head, Params: sub.params, Hash: sub.hash, Loc: p.loc}, nil
	case '"', '\'':
		return p.stringLiteral(c)
	}
	rest := p.src[p.i:]
	if m := numberRe.FindString(rest); m != "" && p.literalEnds(p.i+len(m)) {
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", m)
		}
		p.i += len(m)
		return &ast.NumberLiteral{Value: f, Loc: p.loc}, nil
	}
	for _, kw := range []string{"true", "false", "null", "undefined"} {
		if strings.HasPrefix(rest, kw) && p.literalEnds(p.i+len(kw)) {
			p.i += len(kw)
			switch kw {
			case "true":
				return &ast.BooleanLiteral{Value: true, Loc: p.loc}, nil
			case "false":
				return &ast.BooleanLiteral{Value: false, Loc: p.loc}, nil
			case "null":
				return &ast.NullLiteral{Loc: p.loc}, nil
			default:
				return &ast.UndefinedLiteral{Loc: p.loc}, nil
			}
		}
	}
	return p.path()
}

// literalEnds reports whether a literal ending at i is followed by a
// delimiter rather than more identifier characters.
func (p *exprParser) literalEnds(i int) bool {
	if i >= len(p.src) {
		return true
	}
	switch p.src[i] {
	case '~', '}', ')', ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func (p *exprParser) stringLiteral(quote byte) (ast.Expression, error) {
	p.i++
	var sb strings.Builder
	for !p.eof() {
		c := p.src[p.i]
		if c == '\\' && p.i+1 < len(p.src) && p.src[p.i+1] == quote {
			sb.WriteByte(quote)
			p.i += 2
			continue
		}
		if c == quote {
			p.i++
			return &ast.StringLiteral{Value: sb.String(), Loc: p.loc}, nil
		}
		sb.WriteByte(c)
		p.i++
	}
	return nil, p.errorf("unterminated string literal")
}

type segment struct {
	part    string
	sep     string
	literal bool
}

func (p *exprParser) path() (ast.Expression, error) {
	data := false
	if p.peek() == '@' {
		data = true
		p.i++
	}
	var segs []segment
	sep := ""
	for {
		seg, err := p.segment()
		if err != nil {
			return nil, err
		}
		seg.sep = sep
		segs = append(segs, seg)
		c := p.peek()
		if (c == '/' || c == '.') && p.i+1 < len(p.src) && p.segmentStarts(p.i+1) {
			sep = string(c)
			p.i++
			continue
		}
		break
	}
	return preparePath(data, segs, p.loc)
}

func (p *exprParser) segmentStarts(i int) bool {
	c := p.src[i]
	return c == '[' || c == '.' || p.idLen(i) > 0
}

func (p *exprParser) segment() (segment, error) {
	rest := p.src[p.i:]
	switch {
	case strings.HasPrefix(rest, ".."):
		p.i += 2
		return segment{part: ".."}, nil
	case strings.HasPrefix(rest, "."):
		p.i++
		return segment{part: "."}, nil
	case strings.HasPrefix(rest, "["):
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			return segment{}, p.errorf("unterminated path segment %q", rest)
		}
		p.i += end + 1
		return segment{part: rest[1:end], literal: true}, nil
	}
	n := p.idLen(p.i)
	if n == 0 {
		return segment{}, p.errorf("unexpected %q", rest)
	}
	p.i += n
	return segment{part: rest[:n]}, nil
}

// idLen returns the length of the identifier starting at i.
func (p *exprParser) idLen(i int) int {
	n := 0
	for i+n < len(p.src) && isIDChar(p.src[i+n]) {
		n++
	}
	return n
}

func isIDChar(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f',
		'!', '"', '#', '%', '&', '\'', '(', ')', '*', '+', ',', '.', '/',
		';', '<', '=', '>', '@', '[', '\\', ']', '^', '`', '{', '|', '}', '~':
		return false
	}
	return true
}

func preparePath(data bool, segs []segment, loc ast.Loc) (*ast.PathExpression, error) {
	pe := &ast.PathExpression{Data: data, Loc: loc}
	var original strings.Builder
	if data {
		original.WriteByte('@')
	}
	parts := make([]string, 0, len(segs))
	for i, s := range segs {
		original.WriteString(s.sep)
		original.WriteString(s.part)
		if !s.literal && (s.part == ".." || s.part == "." || s.part == "this") {
			if len(parts) > 0 {
				return nil, newError(loc, "Invalid path: %s", original.String())
			}
			if s.part == ".." {
				pe.Depth++
			} else if i == 0 {
				pe.This = true
			}
			continue
		}
		parts = append(parts, s.part)
	}
	pe.Parts = parts
	pe.Original = original.String()
	return pe, nil
}
