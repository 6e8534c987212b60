package handlebars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartials(t *testing.T) {
	t.Run("current context", func(t *testing.T) {
		out := render(t, `{{> card}}`, map[string]any{"title": "Hi"}, WithPartial("card", "<{{title}}>"))
		assert.Equal(t, "<Hi>", out)
	})

	t.Run("explicit context and hash", func(t *testing.T) {
		out := render(t, `{{> card person extra="!"}}`,
			map[string]any{"person": map[string]any{"name": "Al"}},
			WithPartial("card", "{{name}}{{extra}}"))
		assert.Equal(t, "Al!", out)
	})

	t.Run("string name", func(t *testing.T) {
		out := render(t, `{{> "my-card"}}`, map[string]any{"x": 1}, WithPartial("my-card", "[{{x}}]"))
		assert.Equal(t, "[1]", out)
	})

	t.Run("partials calling partials", func(t *testing.T) {
		out := render(t, `{{> outer}}`, map[string]any{"v": "z"},
			WithPartials(map[string]string{"outer": "({{> inner}})", "inner": "{{v}}"}))
		assert.Equal(t, "(z)", out)
	})

	t.Run("explicit partial context", func(t *testing.T) {
		data := map[string]any{"title": "x"}
		assert.Equal(t, "[]", render(t, `{{> card}}`, data,
			WithPartial("card", "[{{title}}]"), WithExplicitPartialContext()))
		assert.Equal(t, "[x]", render(t, `{{> card this}}`, data,
			WithPartial("card", "[{{title}}]"), WithExplicitPartialContext()))
	})

	t.Run("parent scope from partial", func(t *testing.T) {
		out := render(t, `{{#each items}}{{> item}}{{/each}}`,
			map[string]any{"sep": ";", "items": []string{"a", "b"}},
			WithPartial("item", "{{this}}{{../sep}}"))
		assert.Equal(t, "a;b;", out)
	})
}

func TestPartialIndent(t *testing.T) {
	src := "<ul>\n  {{> item}}\n</ul>"
	partial := WithPartial("item", "<li>a</li>\n<li>b</li>\n")

	assert.Equal(t, "<ul>\n  <li>a</li>\n  <li>b</li>\n</ul>", render(t, src, nil, partial))
	assert.Equal(t, "<ul>\n  <li>a</li>\n<li>b</li>\n</ul>", render(t, src, nil, partial, WithPreventIndent()))
}

func TestPartialBlocks(t *testing.T) {
	t.Run("body passed to partial", func(t *testing.T) {
		out := render(t, `{{#> layout}}content{{/layout}}`, nil,
			WithPartial("layout", "<div>{{> @partial-block}}</div>"))
		assert.Equal(t, "<div>content</div>", out)
	})

	t.Run("fallback when missing", func(t *testing.T) {
		assert.Equal(t, "fallback", render(t, `{{#> missing}}fallback{{/missing}}`, nil))
	})

	t.Run("body sees caller context", func(t *testing.T) {
		out := render(t, `{{#> layout}}{{name}}{{/layout}}`, map[string]any{"name": "N"},
			WithPartial("layout", "<{{> @partial-block}}>"))
		assert.Equal(t, "<N>", out)
	})

	t.Run("partial-block as value", func(t *testing.T) {
		layout := WithPartial("layout", "{{#if @partial-block}}[{{> @partial-block}}]{{else}}none{{/if}}")
		assert.Equal(t, "[x]", render(t, `{{#> layout}}x{{/layout}}`, nil, layout))
		assert.Equal(t, "none", render(t, `{{> layout}}`, nil, layout))
	})

	t.Run("inline partials in the body", func(t *testing.T) {
		out := render(t, `{{#> layout}}{{#*inline "main"}}M{{/inline}}{{/layout}}`, nil,
			WithPartial("layout", "<{{> main}}>"))
		assert.Equal(t, "<M>", out)
	})

	t.Run("nested partial blocks", func(t *testing.T) {
		out := render(t, `{{#> outer}}{{#> inner}}core{{/inner}}{{/outer}}`, nil,
			WithPartials(map[string]string{
				"outer": "O({{> @partial-block}})",
				"inner": "I({{> @partial-block}})",
			}))
		assert.Equal(t, "O(I(core))", out)
	})
}

func TestInlinePartials(t *testing.T) {
	out := render(t, `{{#*inline "item"}}<{{this}}>{{/inline}}{{#each list}}{{> item}}{{/each}}`,
		map[string]any{"list": []string{"a", "b"}})
	assert.Equal(t, "<a><b>", out)

	// an inline partial declared in a block ends with the block
	tmpl, err := Compile(`{{#with obj}}{{#*inline "p"}}in{{/inline}}[{{> p}}]{{/with}}{{> p}}`)
	require.NoError(t, err)
	got, err := tmpl.RenderString(map[string]any{"obj": map[string]any{"k": 1}})
	assert.ErrorIs(t, err, ErrMissingPartial)
	assert.Empty(t, got)

	got, err = tmpl.RenderString(map[string]any{"obj": nil})
	assert.ErrorIs(t, err, ErrMissingPartial)
	assert.Empty(t, got)

	tmpl = MustCompile(`{{#with obj}}{{#*inline "p"}}in{{/inline}}[{{> p}}]{{/with}}`)
	got, err = tmpl.RenderString(map[string]any{"obj": map[string]any{"k": 1}})
	require.NoError(t, err)
	assert.Equal(t, "[in]", got)

	// a registered partial of the same name still serves calls outside the block
	tmpl = MustCompile(`{{#with o}}{{#*inline "q"}}W{{/inline}}{{> q}}{{/with}}{{> q}}`, WithPartial("q", "G"))
	got, err = tmpl.RenderString(map[string]any{"o": map[string]any{"k": 1}})
	require.NoError(t, err)
	assert.Equal(t, "WG", got)

	_, err = Compile(`{{#*inline name}}x{{/inline}}`)
	assert.EqualError(t, err, "Unexpected inline partial argument type: PathExpression")
}

func TestDynamicPartials(t *testing.T) {
	which := func(args []Value, _ *HelperOptions) (any, error) {
		return args[0].String(), nil
	}
	tmpl, err := Compile(`{{> (which kind)}}`,
		WithHelper("which", which),
		WithPartials(map[string]string{"a": "A{{v}}", "b": "B{{v}}"}))
	require.NoError(t, err)

	out, err := tmpl.RenderString(map[string]any{"kind": "b", "v": 1})
	require.NoError(t, err)
	assert.Equal(t, "B1", out)

	out, err = tmpl.RenderString(map[string]any{"kind": "a", "v": 2})
	require.NoError(t, err)
	assert.Equal(t, "A2", out)

	assert.Equal(t, []string{"a", "b"}, tmpl.UsedPartials())
}
