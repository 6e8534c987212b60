// Package parser turns Handlebars template source into an ast.Program.
//
// Parsing happens in two passes. The scanner splits the source into content
// runs and tags, whitespace control is applied to that flat list, and a
// recursive descent over the list builds the block structure.
package parser

import (
	"github.com/oarkflow/handlebars/ast"
)

// Options controls parsing.
type Options struct {
	// IgnoreStandalone keeps the whitespace around tags that sit alone on a line.
	IgnoreStandalone bool
}

// Parse parses src with default options.
func Parse(src string) (*ast.Program, error) {
	return ParseWithOptions(src, Options{})
}

// ParseWithOptions parses src into a Program.
func ParseWithOptions(src string, opts Options) (*ast.Program, error) {
	items, err := newScanner(src).scan()
	if err != nil {
		return nil, err
	}
	stripWhitespace(items, opts.IgnoreStandalone)
	p := &parser{items: items}
	prog, end, err := p.program()
	if err != nil {
		return nil, err
	}
	if end != nil {
		if end.kind == tagElse {
			return nil, newError(end.loc, "unexpected {{else}}")
		}
		return nil, newError(end.loc, "unexpected closing tag {{/%s}}", end.body)
	}
	return prog, nil
}

type parser struct {
	items []item
	pos   int
}

func (p *parser) eof() bool { return p.pos >= len(p.items) }

// program collects statements until an else or close tag, which is returned
// without being consumed.
func (p *parser) program() (*ast.Program, *tag, error) {
	prog := &ast.Program{Loc: p.loc()}
	for !p.eof() {
		it := p.items[p.pos]
		if it.content != nil {
			p.pos++
			if it.content.value != "" {
				prog.Body = append(prog.Body, &ast.ContentStatement{
					Value:    it.content.value,
					Original: it.content.original,
					Loc:      it.content.loc,
				})
			}
			continue
		}
		t := it.tag
		if t.kind == tagElse || t.kind == tagClose {
			return prog, t, nil
		}
		p.pos++
		stmt, err := p.statement(t)
		if err != nil {
			return nil, nil, err
		}
		prog.Body = append(prog.Body, stmt)
	}
	return prog, nil, nil
}

func (p *parser) loc() ast.Loc {
	if p.eof() {
		return ast.Loc{}
	}
	if c := p.items[p.pos].content; c != nil {
		return c.loc
	}
	return p.items[p.pos].tag.loc
}

func (p *parser) statement(t *tag) (ast.Statement, error) {
	switch t.kind {
	case tagComment:
		return &ast.CommentStatement{Value: t.body, Loc: t.loc}, nil
	case tagBlock, tagInverse, tagPartialBlock, tagDecoratorBlock:
		return p.block(t)
	case tagRaw:
		c, err := parseCall(t.body, t.loc)
		if err != nil {
			return nil, err
		}
		prog := &ast.Program{Loc: t.loc}
		if t.raw != "" {
			prog.Body = []ast.Statement{&ast.ContentStatement{Value: t.raw, Original: t.raw, Loc: t.loc}}
		}
		return &ast.BlockStatement{Path: c.head, Params: c.params, Hash: c.hash, Program: prog, Loc: t.loc}, nil
	}

	c, err := parseCall(t.body, t.loc)
	if err != nil {
		return nil, err
	}
	if c.blockParams != nil {
		return nil, newError(t.loc, "block params are only allowed on blocks")
	}
	switch t.kind {
	case tagPartial:
		if len(c.params) > 1 {
			return nil, newError(t.loc, "Unsupported number of partial arguments: %d", len(c.params))
		}
		return &ast.PartialStatement{Name: c.head, Params: c.params, Hash: c.hash, Indent: t.indent, Loc: t.loc}, nil
	case tagDecorator:
		return &ast.Decorator{Path: c.head, Params: c.params, Hash: c.hash, Loc: t.loc}, nil
	default:
		return &ast.MustacheStatement{
			Path:    c.head,
			Params:  c.params,
			Hash:    c.hash,
			Escaped: t.kind == tagMustache,
			Loc:     t.loc,
		}, nil
	}
}

func (p *parser) block(open *tag) (ast.Statement, error) {
	c, err := parseCall(open.body, open.loc)
	if err != nil {
		return nil, err
	}
	program, end, err := p.program()
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, newError(open.loc, "unclosed block {{%s}}", c.headText)
	}
	program.BlockParams = c.blockParams

	var inverse *ast.Program
	if end.kind == tagElse {
		if open.kind == tagPartialBlock || open.kind == tagDecoratorBlock {
			return nil, newError(end.loc, "unexpected {{else}} in %s", open.kind)
		}
		p.pos++
		inverse, end, err = p.inverse(end)
		if err != nil {
			return nil, err
		}
	}
	p.pos++
	if !closeMatches(c, end.body) {
		return nil, newError(end.loc, "%s doesn't match %s", c.headText, end.body)
	}

	switch open.kind {
	case tagPartialBlock:
		if len(c.params) > 1 {
			return nil, newError(open.loc, "Unsupported number of partial arguments: %d", len(c.params))
		}
		return &ast.PartialBlockStatement{Name: c.head, Params: c.params, Hash: c.hash, Program: program, Loc: open.loc}, nil
	case tagDecoratorBlock:
		return &ast.BlockStatement{Type: ast.DecoratorBlock, Path: c.head, Params: c.params, Hash: c.hash, Program: program, Loc: open.loc}, nil
	case tagInverse:
		// `{{^x}}A{{else}}B{{/x}}` renders A when x is falsy
		program, inverse = inverse, program
	}
	return &ast.BlockStatement{Path: c.head, Params: c.params, Hash: c.hash, Program: program, Inverse: inverse, Loc: open.loc}, nil
}

// inverse parses what follows an else tag up to the block's close tag, which
// is returned unconsumed. `{{else if x}}` becomes a chained block.
func (p *parser) inverse(elseTag *tag) (*ast.Program, *tag, error) {
	if elseTag.body == "" {
		prog, end, err := p.program()
		if err != nil {
			return nil, nil, err
		}
		if end == nil {
			return nil, nil, newError(elseTag.loc, "unclosed block after {{else}}")
		}
		if end.kind == tagElse {
			return nil, nil, newError(end.loc, "unexpected {{else}}")
		}
		return prog, end, nil
	}

	c, err := parseCall(elseTag.body, elseTag.loc)
	if err != nil {
		return nil, nil, err
	}
	prog, end, err := p.program()
	if err != nil {
		return nil, nil, err
	}
	if end == nil {
		return nil, nil, newError(elseTag.loc, "unclosed block after {{else %s}}", c.headText)
	}
	prog.BlockParams = c.blockParams
	chained := &ast.BlockStatement{Path: c.head, Params: c.params, Hash: c.hash, Program: prog, Loc: elseTag.loc}
	if end.kind == tagElse {
		p.pos++
		chained.Inverse, end, err = p.inverse(end)
		if err != nil {
			return nil, nil, err
		}
	}
	return &ast.Program{Body: []ast.Statement{chained}, Chained: true, Loc: elseTag.loc}, end, nil
}

func closeMatches(open *call, closeBody string) bool {
	if closeBody == open.headText {
		return true
	}
	c, err := parseCall(closeBody, ast.Loc{})
	if err != nil {
		return false
	}
	op, ok1 := open.head.(*ast.PathExpression)
	cp, ok2 := c.head.(*ast.PathExpression)
	return ok1 && ok2 && op.Original == cp.Original
}
