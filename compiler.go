package handlebars

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oarkflow/handlebars/ast"
	"github.com/oarkflow/handlebars/parser"
)

// compiler lowers an ast.Program into a render tree.
type compiler struct {
	cc *compileCtx

	// bps is the stack of block param names in scope, innermost first. Only
	// constructs that bind params at render time push onto it.
	bps [][]string
}

func compileRoot(prog *ast.Program, cc *compileCtx) (node, error) {
	c := &compiler{cc: cc}
	root, err := c.program(prog)
	if err != nil {
		return nil, err
	}
	if err := c.compileDynamicPartials(); err != nil {
		return nil, err
	}
	return root, nil
}

func (c *compiler) program(prog *ast.Program) (node, error) {
	if prog == nil {
		return emptyNode{}, nil
	}
	seq := make(seqNode, 0, len(prog.Body))
	scoped := false
	for _, stmt := range prog.Body {
		switch s := stmt.(type) {
		case *ast.PartialBlockStatement:
			scoped = true
		case *ast.BlockStatement:
			scoped = scoped || s.Type == ast.DecoratorBlock
		}
		n, err := c.statement(stmt)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		// merge adjacent text so standalone stripping leaves no tiny nodes
		if t, ok := n.(textNode); ok && len(seq) > 0 {
			if prev, ok := seq[len(seq)-1].(textNode); ok {
				seq[len(seq)-1] = textNode{prev.text + t.text}
				continue
			}
		}
		seq = append(seq, n)
	}

	var n node
	switch len(seq) {
	case 0:
		n = emptyNode{}
	case 1:
		n = seq[0]
	default:
		n = seq
	}
	if scoped {
		return scopedNode{n}, nil
	}
	return n, nil
}

// programWithParams compiles prog with bp bound for the body's lookups.
func (c *compiler) programWithParams(prog *ast.Program, bp []string) (node, error) {
	if len(bp) > 0 {
		c.bps = append([][]string{bp}, c.bps...)
		defer func() { c.bps = c.bps[1:] }()
	}
	return c.program(prog)
}

// optional compiles prog, returning nil for an absent program.
func (c *compiler) optional(prog *ast.Program) (node, error) {
	if prog == nil {
		return nil, nil
	}
	return c.program(prog)
}

func (c *compiler) statement(stmt ast.Statement) (node, error) {
	switch s := stmt.(type) {
	case *ast.ContentStatement:
		if s.Value == "" {
			return nil, nil
		}
		return textNode{s.Value}, nil
	case *ast.CommentStatement:
		return nil, nil
	case *ast.MustacheStatement:
		return c.mustache(s)
	case *ast.BlockStatement:
		if s.Type == ast.DecoratorBlock {
			return c.decoratorBlock(s)
		}
		return c.block(s)
	case *ast.PartialStatement:
		return c.partial(s)
	case *ast.PartialBlockStatement:
		return c.partialBlock(s)
	case *ast.Decorator:
		return nil, compileErrorf(ErrUnknownDecorator, headName(s.Path), "Unknown decorator: %q", headName(s.Path))
	}
	return nil, compileErrorf(ErrUnsupported, "", "Unknown type: %T", stmt)
}

// ----------------------------- Mustaches ------------------------------------

func (c *compiler) mustache(m *ast.MustacheStatement) (node, error) {
	escape := m.Escaped && !c.cc.opts.noEscape

	switch path := m.Path.(type) {
	case *ast.PathExpression:
		name, simple := ast.SimpleName(path)
		if simple && c.cc.resolveHelper(name) {
			call, err := c.helperCall(name, m.Params, m.Hash)
			if err != nil {
				return nil, err
			}
			return outputNode{call, escape}, nil
		}
		if simple && name == "lookup" {
			if len(m.Params) != 2 {
				return nil, compileErrorf(ErrArity, "lookup", "{{lookup}} requires 2 arguments")
			}
			e, err := c.lookup(m.Params)
			if err != nil {
				return nil, err
			}
			return outputNode{e, escape}, nil
		}
		if simple && name == "log" {
			args, hash, err := c.args(m.Params, m.Hash)
			if err != nil {
				return nil, err
			}
			return logNode{args: args, hash: hash}, nil
		}
		if len(m.Params) > 0 {
			if simple || c.cc.opts.knownHelpersOnly {
				return nil, missingHelper(path.Original)
			}
			args, _, err := c.args(m.Params, nil)
			if err != nil {
				return nil, err
			}
			return outputNode{forceExpr{target: c.path(path), args: args}, escape}, nil
		}
		return outputNode{forceExpr{target: c.path(path)}, escape}, nil

	case ast.Literal:
		key := path.Key()
		if c.cc.resolveHelper(key) {
			call, err := c.helperCall(key, m.Params, m.Hash)
			if err != nil {
				return nil, err
			}
			return outputNode{call, escape}, nil
		}
		if len(m.Params) > 0 {
			return nil, missingHelper(key)
		}
		return outputNode{keyExpr{key: key, strict: c.cc.opts.strict}, escape}, nil
	}
	return nil, compileErrorf(ErrUnsupported, "", "Unknown expression type: %T", m.Path)
}

// ----------------------------- Blocks ---------------------------------------

func (c *compiler) block(b *ast.BlockStatement) (node, error) {
	if name, ok := ast.SimpleName(b.Path); ok {
		if c.cc.resolveHelper(name) {
			return c.blockHelper(b, name)
		}
		switch name {
		case "if":
			return c.ifBlock(b, false)
		case "unless":
			return c.ifBlock(b, true)
		case "each":
			return c.each(b)
		case "with":
			return c.with(b)
		}
		if len(b.Params) > 0 {
			return nil, missingHelper(name)
		}
	}

	if lit, ok := b.Path.(ast.Literal); ok {
		key := lit.Key()
		if c.cc.resolveHelper(key) {
			return c.blockHelper(b, key)
		}
		return c.section(b, keyExpr{key: key, strict: c.cc.opts.strict})
	}

	path, ok := b.Path.(*ast.PathExpression)
	if !ok {
		return nil, compileErrorf(ErrUnsupported, "", "Unknown expression type: %T", b.Path)
	}
	if b.Program != nil && len(b.Params) > 0 {
		if c.cc.opts.knownHelpersOnly {
			return nil, missingHelper(path.Original)
		}
		return c.dynamicBlock(b, path)
	}
	return c.section(b, forceExpr{target: c.path(path), passInput: true})
}

// section compiles {{#subject}} and {{^subject}} on a plain value.
func (c *compiler) section(b *ast.BlockStatement, subject expr) (node, error) {
	if b.Program == nil {
		body, err := c.program(b.Inverse)
		if err != nil {
			return nil, err
		}
		return invertedNode{subject: subject, body: body}, nil
	}
	body, err := c.program(b.Program)
	if err != nil {
		return nil, err
	}
	inverse, err := c.optional(b.Inverse)
	if err != nil {
		return nil, err
	}
	return sectionNode{subject: subject, body: body, inverse: inverse}, nil
}

func (c *compiler) ifBlock(b *ast.BlockStatement, unless bool) (node, error) {
	if len(b.Params) != 1 {
		tag := "#if"
		if unless {
			tag = "#unless"
		}
		return nil, compileErrorf(ErrArity, tag[1:], "%s requires exactly one argument", tag)
	}
	cond, err := c.expr(b.Params[0])
	if err != nil {
		return nil, err
	}
	n := ifNode{cond: forceExpr{target: cond, passInput: true}, negate: unless}
	if z, ok := b.Hash.Get("includeZero"); ok {
		if n.includeZero, err = c.expr(z); err != nil {
			return nil, err
		}
	}
	if n.then, err = c.program(b.Program); err != nil {
		return nil, err
	}
	// an {{else if}} chain compiles to the nested block itself
	if n.els, err = c.optional(b.Inverse); err != nil {
		return nil, err
	}
	return n, nil
}

func (c *compiler) each(b *ast.BlockStatement) (node, error) {
	if len(b.Params) != 1 {
		return nil, compileErrorf(ErrArity, "each", "Must pass iterator to #each")
	}
	subject, err := c.expr(b.Params[0])
	if err != nil {
		return nil, err
	}
	n := sectionNode{subject: forceExpr{target: subject, passInput: true}, each: true}
	if b.Program != nil {
		n.bp = b.Program.BlockParams
	}
	if n.body, err = c.programWithParams(b.Program, n.bp); err != nil {
		return nil, err
	}
	if n.inverse, err = c.optional(b.Inverse); err != nil {
		return nil, err
	}
	return n, nil
}

// with binds its block param through the context rather than a param slot,
// so the body is compiled without pushing it.
func (c *compiler) with(b *ast.BlockStatement) (node, error) {
	if len(b.Params) != 1 {
		return nil, compileErrorf(ErrArity, "with", "#with requires exactly one argument")
	}
	subject, err := c.expr(b.Params[0])
	if err != nil {
		return nil, err
	}
	n := withNode{subject: forceExpr{target: subject, passInput: true}}
	if b.Program != nil {
		n.bp = b.Program.BlockParams
	}
	if n.body, err = c.program(b.Program); err != nil {
		return nil, err
	}
	if n.inverse, err = c.optional(b.Inverse); err != nil {
		return nil, err
	}
	return n, nil
}

func (c *compiler) blockHelper(b *ast.BlockStatement, name string) (node, error) {
	n := blockHelperNode{name: name, inverted: b.Program == nil}
	switch {
	case b.Program != nil:
		n.bp = b.Program.BlockParams
	case b.Inverse != nil:
		n.bp = b.Inverse.BlockParams
	}
	var err error
	if n.args, n.hash, err = c.args(b.Params, b.Hash); err != nil {
		return nil, err
	}
	if n.inverted {
		if n.body, err = c.program(b.Inverse); err != nil {
			return nil, err
		}
		return n, nil
	}
	if n.body, err = c.programWithParams(b.Program, n.bp); err != nil {
		return nil, err
	}
	if n.inverse, err = c.optional(b.Inverse); err != nil {
		return nil, err
	}
	return n, nil
}

func (c *compiler) dynamicBlock(b *ast.BlockStatement, path *ast.PathExpression) (node, error) {
	n := dynBlockNode{target: c.path(path), bp: b.Program.BlockParams}
	var err error
	if n.args, n.hash, err = c.args(b.Params, b.Hash); err != nil {
		return nil, err
	}
	if n.body, err = c.programWithParams(b.Program, n.bp); err != nil {
		return nil, err
	}
	if n.inverse, err = c.optional(b.Inverse); err != nil {
		return nil, err
	}
	return n, nil
}

// decoratorBlock compiles {{#*inline "name"}}. The partial is registered
// when the block runs, so it is visible only inside the enclosing program.
func (c *compiler) decoratorBlock(b *ast.BlockStatement) (node, error) {
	name, _ := ast.SimpleName(b.Path)
	if name != "inline" {
		if name == "" {
			name = headName(b.Path)
		}
		return nil, compileErrorf(ErrUnknownDecorator, name, "Unknown decorator: %q", name)
	}
	partialName := "undefined"
	if len(b.Params) > 0 {
		lit, ok := b.Params[0].(ast.Literal)
		if !ok {
			return nil, compileErrorf(ErrUnsupported, "", "Unexpected inline partial argument type: %s", exprType(b.Params[0]))
		}
		partialName = lit.Key()
	}
	body, err := c.program(b.Program)
	if err != nil {
		return nil, err
	}
	c.cc.res.usedPartials[partialName] = ""
	return inlinePartialNode{name: partialName, body: body}, nil
}

// ----------------------------- Partials -------------------------------------

func (c *compiler) partial(s *ast.PartialStatement) (node, error) {
	n := partialNode{}
	switch name := s.Name.(type) {
	case *ast.PathExpression:
		n.name = name.Original
		if err := c.resolveAndCompilePartial(n.name); err != nil {
			return nil, err
		}
	case *ast.SubExpression:
		e, err := c.subExpression(name)
		if err != nil {
			return nil, err
		}
		n.nameExpr = e
		c.cc.res.usedDynPartial++
	case *ast.StringLiteral, *ast.NumberLiteral:
		n.name = name.(ast.Literal).Key()
		if err := c.resolveAndCompilePartial(n.name); err != nil {
			return nil, err
		}
	default:
		e, err := c.expr(s.Name)
		if err != nil {
			return nil, err
		}
		n.nameExpr = e
	}

	var err error
	if n.ctx, n.hash, err = c.partialArgs(s.Params, s.Hash); err != nil {
		return nil, err
	}
	if s.Indent == "" {
		return n, nil
	}
	if c.cc.opts.preventIndent {
		return seqNode{textNode{s.Indent}, n}, nil
	}
	n.indent = s.Indent
	return n, nil
}

// partialBlock compiles {{#> name}}body{{/name}}. The body is registered as
// @partial-block<id> for the partial to call, and becomes the partial itself
// when name cannot be resolved.
func (c *compiler) partialBlock(s *ast.PartialBlockStatement) (node, error) {
	c.cc.res.partialBlockID++
	pid := c.cc.res.partialBlockID

	// inline partials in the body are registered before the partial runs
	var seq seqNode
	for _, stmt := range s.Program.Body {
		if b, ok := stmt.(*ast.BlockStatement); ok && b.Type == ast.DecoratorBlock {
			n, err := c.decoratorBlock(b)
			if err != nil {
				return nil, err
			}
			seq = append(seq, n)
		}
	}

	body, err := c.program(s.Program)
	if err != nil {
		return nil, err
	}

	call := partialNode{pid: pid}
	switch name := s.Name.(type) {
	case *ast.PathExpression:
		call.name = name.Original
	case *ast.StringLiteral, *ast.NumberLiteral:
		call.name = name.(ast.Literal).Key()
	default:
		e, err := c.expr(s.Name)
		if err != nil {
			return nil, err
		}
		call.nameExpr = e
	}

	if call.nameExpr == nil {
		found := false
		_, used := c.cc.res.usedPartials[call.name]
		if !used && !strings.HasPrefix(call.name, partialBlockPrefix) {
			resolved, src, ok := c.cc.resolvePartial(call.name)
			if ok {
				c.cc.res.usedPartials[resolved] = src
				if err := c.compilePartial(resolved, src); err != nil {
					return nil, err
				}
				found = true
			}
		} else {
			found = used
		}
		if !found {
			c.cc.res.usedPartials[call.name] = ""
			c.cc.res.partialCode[call.name] = body
		}
	}

	if call.ctx, call.hash, err = c.partialArgs(s.Params, s.Hash); err != nil {
		return nil, err
	}
	seq = append(seq,
		inlinePartialNode{name: fmt.Sprintf("%s%d", partialBlockPrefix, pid), body: body},
		call,
	)
	return seq, nil
}

// partialArgs builds the context and hash of a partial call. A nil context
// expression means the current context.
func (c *compiler) partialArgs(params []ast.Expression, hash *ast.Hash) (expr, hashExpr, error) {
	var ctx expr
	switch {
	case len(params) > 0:
		e, err := c.expr(params[0])
		if err != nil {
			return nil, nil, err
		}
		ctx = e
	case c.cc.opts.explicitPartialContext:
		ctx = literalExpr{Null}
	}
	h, err := c.hash(hash)
	if err != nil {
		return nil, nil, err
	}
	return ctx, h, nil
}

func (c *compiler) resolveAndCompilePartial(name string) error {
	if _, ok := c.cc.res.usedPartials[name]; ok {
		// an inline declaration marks the name without code; a registered
		// partial of that name still serves calls outside the declaring block
		if _, compiled := c.cc.res.partialCode[name]; !compiled {
			if resolved, src, found := c.cc.resolvePartial(name); found {
				c.cc.res.usedPartials[resolved] = src
				return c.compilePartial(resolved, src)
			}
		}
		return nil
	}
	// partial blocks are bound at render time
	if strings.HasPrefix(name, partialBlockPrefix) {
		return nil
	}
	resolved, src, ok := c.cc.resolvePartial(name)
	if !ok {
		return compileErrorf(ErrMissingPartial, name, "The partial %s could not be found", name)
	}
	c.cc.res.usedPartials[resolved] = src
	return c.compilePartial(resolved, src)
}

// compilePartial compiles src on a child pass with its own block param
// scope and registers the result under name.
func (c *compiler) compilePartial(name, src string) error {
	if _, ok := c.cc.res.partialCode[name]; ok {
		return nil
	}
	if c.cc.inPartialBlock(name) {
		return nil
	}
	prog, err := parser.ParseWithOptions(src, parser.Options{IgnoreStandalone: c.cc.opts.ignoreStandalone})
	if err != nil {
		return fmt.Errorf("partial %s: %w", name, err)
	}
	child := c.cc.child(name)
	body, err := (&compiler{cc: child}).program(prog)
	if err != nil {
		return err
	}
	c.cc.absorb(child)
	c.cc.res.partialCode[name] = body
	c.cc.opts.logger.Debug("compiled partial", "name", name)
	return nil
}

// compileDynamicPartials compiles every registered partial when a partial
// name is only known at render time.
func (c *compiler) compileDynamicPartials() error {
	if c.cc.res.usedDynPartial == 0 {
		return nil
	}
	names := make([]string, 0, len(c.cc.opts.partials))
	for name := range c.cc.opts.partials {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.resolveAndCompilePartial(name); err != nil {
			return err
		}
	}
	return nil
}

// ----------------------------- Expressions ----------------------------------

func (c *compiler) expr(e ast.Expression) (expr, error) {
	switch x := e.(type) {
	case *ast.SubExpression:
		return c.subExpression(x)
	case *ast.PathExpression:
		return c.path(x), nil
	case *ast.StringLiteral:
		return literalExpr{StringValue(x.Value)}, nil
	case *ast.NumberLiteral:
		return literalExpr{NumberValue(x.Value)}, nil
	case *ast.BooleanLiteral:
		return literalExpr{BoolValue(x.Value)}, nil
	case *ast.NullLiteral, *ast.UndefinedLiteral:
		return literalExpr{Null}, nil
	}
	return nil, compileErrorf(ErrUnsupported, "", "Unknown expression type: %T", e)
}

func (c *compiler) subExpression(s *ast.SubExpression) (expr, error) {
	name, ok := "", false
	switch p := s.Path.(type) {
	case *ast.PathExpression:
		name, ok = ast.SimpleName(p)
	case ast.Literal:
		name, ok = p.Key(), true
	}
	if ok && c.cc.resolveHelper(name) {
		return c.helperCall(name, s.Params, s.Hash)
	}
	if ok && name == "lookup" {
		if len(s.Params) != 2 {
			return nil, compileErrorf(ErrArity, "lookup", "{{lookup}} requires 2 arguments")
		}
		return c.lookup(s.Params)
	}
	if ok {
		return nil, missingHelper(name)
	}
	return nil, compileErrorf(ErrSubExpression, "", "Sub-expression must be a helper call")
}

func (c *compiler) helperCall(name string, params []ast.Expression, hash *ast.Hash) (expr, error) {
	args, h, err := c.args(params, hash)
	if err != nil {
		return nil, err
	}
	return helperCallExpr{name: name, args: args, hash: h}, nil
}

func (c *compiler) lookup(params []ast.Expression) (expr, error) {
	items, err := c.expr(params[0])
	if err != nil {
		return nil, err
	}
	missName := "lookup"
	if p, ok := items.(*pathExpr); ok {
		// a missing item reports the collection's path
		relaxed := *p
		relaxed.strict = false
		items, missName = &relaxed, p.original
	}
	idx, err := c.expr(params[1])
	if err != nil {
		return nil, err
	}
	return lookupExpr{items: items, idx: idx, missName: missName, strict: c.cc.opts.strict}, nil
}

// path lowers a path expression, binding its head to a block param slot
// when an enclosing block declared that name.
func (c *compiler) path(p *ast.PathExpression) expr {
	if p.Data && p.Depth == 0 && len(p.Parts) == 1 && p.Parts[0] == partialBlockDataKey {
		return partialBlockExpr{}
	}
	e := &pathExpr{
		data:     p.Data,
		depth:    p.Depth,
		parts:    p.Parts,
		original: p.Original,
		bpSlot:   -1,
		strict:   c.cc.opts.strict,
	}
	if len(p.Parts) == 0 {
		return e
	}
	if !p.Data && p.Depth == 0 && !p.Scoped() {
		e.bpSlot = c.blockParamSlot(p.Parts[0])
	}
	e.length = p.Parts[len(p.Parts)-1] == "length"
	return e
}

// blockParamSlot returns the runtime slot of name, counting only the
// enclosing levels that bind params, or -1.
func (c *compiler) blockParamSlot(name string) int {
	slot := 0
	for _, level := range c.bps {
		for _, bp := range level {
			if bp == name {
				return slot
			}
		}
		if len(level) > 0 {
			slot++
		}
	}
	return -1
}

func (c *compiler) args(params []ast.Expression, hash *ast.Hash) ([]expr, hashExpr, error) {
	var args []expr
	for _, p := range params {
		e, err := c.expr(p)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, e)
	}
	h, err := c.hash(hash)
	if err != nil {
		return nil, nil, err
	}
	return args, h, nil
}

func (c *compiler) hash(h *ast.Hash) (hashExpr, error) {
	if h == nil {
		return nil, nil
	}
	out := make(hashExpr, 0, len(h.Pairs))
	for _, p := range h.Pairs {
		e, err := c.expr(p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, hashPair{key: p.Key, value: e})
	}
	return out, nil
}

// headName is the display name of a tag's head expression.
func headName(e ast.Expression) string {
	switch x := e.(type) {
	case *ast.PathExpression:
		return x.Original
	case ast.Literal:
		return x.Key()
	}
	return exprType(e)
}

func exprType(e ast.Expression) string {
	switch e.(type) {
	case *ast.PathExpression:
		return "PathExpression"
	case *ast.SubExpression:
		return "SubExpression"
	case *ast.StringLiteral:
		return "StringLiteral"
	case *ast.NumberLiteral:
		return "NumberLiteral"
	case *ast.BooleanLiteral:
		return "BooleanLiteral"
	case *ast.NullLiteral:
		return "NullLiteral"
	case *ast.UndefinedLiteral:
		return "UndefinedLiteral"
	}
	return fmt.Sprintf("%T", e)
}
