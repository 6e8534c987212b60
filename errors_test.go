package handlebars

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/handlebars/parser"
)

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		opts []Option
		kind error
		msg  string
	}{
		{"missing helper", `{{shout name}}`, nil, ErrMissingHelper, `Missing helper: "shout"`},
		{"missing block helper", `{{#shout name}}x{{/shout}}`, nil, ErrMissingHelper, `Missing helper: "shout"`},
		{"missing sub-expression helper", `{{#if (nope)}}x{{/if}}`, nil, ErrMissingHelper, `Missing helper: "nope"`},
		{"if arity", `{{#if}}x{{/if}}`, nil, ErrArity, "#if requires exactly one argument"},
		{"unless arity", `{{#unless a b}}x{{/unless}}`, nil, ErrArity, "#unless requires exactly one argument"},
		{"each arity", `{{#each}}x{{/each}}`, nil, ErrArity, "Must pass iterator to #each"},
		{"with arity", `{{#with a b}}x{{/with}}`, nil, ErrArity, "#with requires exactly one argument"},
		{"lookup arity", `{{lookup a}}`, nil, ErrArity, "{{lookup}} requires 2 arguments"},
		{"unknown decorator", `{{* foo}}`, nil, ErrUnknownDecorator, `Unknown decorator: "foo"`},
		{"unknown decorator block", `{{#*foo}}x{{/foo}}`, nil, ErrUnknownDecorator, `Unknown decorator: "foo"`},
		{"path sub-expression", `{{#if (a.b)}}x{{/if}}`, nil, ErrSubExpression, "Sub-expression must be a helper call"},
		{"missing partial", `{{> nope}}`, nil, ErrMissingPartial, "The partial nope could not be found"},
		{"known helpers only", `{{a.b 1}}`, []Option{WithKnownHelpersOnly()}, ErrMissingHelper, `Missing helper: "a.b"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.src, tc.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.EqualError(t, err, tc.msg)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		src string
		msg string
	}{
		{`{{#if a}}x`, "parse error on line 1, column 1: unclosed block {{if}}"},
		{`{{#a}}x{{/b}}`, "parse error on line 1, column 8: a doesn't match b"},
	}
	for _, tc := range cases {
		_, err := Compile(tc.src)
		var pe *parser.Error
		require.ErrorAs(t, err, &pe, tc.src)
		assert.Equal(t, tc.msg, err.Error())
	}
}

func TestRuntimeErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("helper error", func(t *testing.T) {
		tmpl := MustCompile(`{{fail}}`, WithHelper("fail", func([]Value, *HelperOptions) (any, error) {
			return nil, boom
		}))
		_, err := tmpl.RenderString(nil)
		require.Error(t, err)
		assert.EqualError(t, err, "Runtime: call custom helper 'fail' error: boom")
		assert.ErrorIs(t, err, ErrHelper)
		assert.ErrorIs(t, err, boom)

		var re *RuntimeError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, boom, re.Err)
	})

	t.Run("helper panic", func(t *testing.T) {
		tmpl := MustCompile(`{{fail}}`, WithHelper("fail", func([]Value, *HelperOptions) (any, error) {
			panic("oops")
		}))
		_, err := tmpl.RenderString(nil)
		assert.EqualError(t, err, "Runtime: call custom helper 'fail' error: oops")
	})

	t.Run("lambda error", func(t *testing.T) {
		tmpl := MustCompile(`{{fn}}`)
		_, err := tmpl.RenderString(map[string]any{
			"fn": func(...Value) (any, error) { return nil, boom },
		})
		assert.EqualError(t, err, "Runtime: lambda error: boom")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("lambda panic", func(t *testing.T) {
		data := map[string]any{
			"fn": Lambda(func(...Value) (any, error) { panic("lambda boom") }),
		}

		_, err := MustCompile(`{{fn}}`).RenderString(data)
		assert.EqualError(t, err, "Runtime: lambda error: lambda boom")
		assert.ErrorIs(t, err, ErrHelper)

		_, err = MustCompile(`{{#./fn 1}}x{{/./fn}}`).RenderString(data)
		assert.EqualError(t, err, "Runtime: dynamic block helper error: lambda boom")
		assert.ErrorIs(t, err, ErrHelper)
	})

	t.Run("error in block body", func(t *testing.T) {
		wrap := func(_ []Value, opts *HelperOptions) (any, error) { return opts.Fn(), nil }
		tmpl := MustCompile(`{{#wrap}}{{missing}}{{/wrap}}`, WithStrict(), WithHelper("wrap", wrap))
		_, err := tmpl.RenderString(nil)
		assert.ErrorIs(t, err, ErrMissingValue)
	})

	t.Run("recursive partial", func(t *testing.T) {
		tmpl := MustCompile(`{{> self}}`, WithPartial("self", "x{{> self}}"))
		_, err := tmpl.RenderString(nil)
		assert.ErrorIs(t, err, ErrPartialDepth)
		assert.EqualError(t, err, "Runtime: the partial self could not be found")
	})

	t.Run("dynamic partial not found", func(t *testing.T) {
		tmpl := MustCompile(`{{> (which)}}`, WithHelper("which", func([]Value, *HelperOptions) (any, error) {
			return "ghost", nil
		}))
		_, err := tmpl.RenderString(nil)
		assert.ErrorIs(t, err, ErrMissingPartial)
		assert.EqualError(t, err, "Runtime: the partial ghost could not be found")
	})
}
