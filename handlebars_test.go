package handlebars

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, src string, data any, opts ...Option) string {
	t.Helper()
	tmpl, err := Compile(src, opts...)
	require.NoError(t, err)
	out, err := tmpl.RenderString(data)
	require.NoError(t, err)
	return out
}

func upper(args []Value, _ *HelperOptions) (any, error) {
	return strings.ToUpper(args[0].String()), nil
}

func TestLiteralText(t *testing.T) {
	assert.Equal(t, "hello {{world}} & <b>", render(t, `hello \{{world}} & <b>`, nil))
	assert.Equal(t, "plain text\nsecond line", render(t, "plain text\nsecond line", nil))
	assert.Equal(t, "", render(t, "", nil))
}

func TestIf(t *testing.T) {
	cases := []struct {
		name string
		x    any
		want string
	}{
		{"true", true, "A"},
		{"false", false, "B"},
		{"string", "s", "A"},
		{"empty string", "", "B"},
		{"one", 1, "A"},
		{"zero", 0, "B"},
		{"nil", nil, "B"},
		{"empty list", []any{}, "B"},
		{"list", []any{1}, "A"},
		{"empty map", map[string]any{}, "B"},
		{"map", map[string]any{"k": 1}, "A"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := render(t, `{{#if x}}A{{else}}B{{/if}}`, map[string]any{"x": tc.x})
			assert.Equal(t, tc.want, got)
		})
	}

	assert.Equal(t, "A", render(t, `{{#if x includeZero=true}}A{{else}}B{{/if}}`, map[string]any{"x": 0}))
	assert.Equal(t, "B", render(t, `{{#unless x}}A{{else}}B{{/unless}}`, map[string]any{"x": 1}))
	assert.Equal(t, "B", render(t, `{{#if a}}A{{else if b}}B{{else}}C{{/if}}`, map[string]any{"a": false, "b": true}))
	assert.Equal(t, "C", render(t, `{{#if a}}A{{else if b}}B{{else}}C{{/if}}`, nil))
}

func TestEach(t *testing.T) {
	assert.Equal(t, "0:a;1:b;2:c;",
		render(t, `{{#each list}}{{@index}}:{{this}};{{/each}}`, map[string]any{"list": []string{"a", "b", "c"}}))

	obj := MapOf("x", "a", "y", "b")
	assert.Equal(t, "x=0:a;y=1:b;",
		render(t, `{{#each obj}}{{@key}}={{@index}}:{{this}};{{/each}}`, map[string]any{"obj": obj}))

	assert.Equal(t, "first,,last",
		render(t, `{{#each list}}{{#if @first}}first{{/if}}{{#if @last}}last{{/if}}{{#unless @last}},{{/unless}}{{/each}}`,
			map[string]any{"list": []int{1, 2, 3}}))

	assert.Equal(t, "empty", render(t, `{{#each list}}x{{else}}empty{{/each}}`, map[string]any{"list": []any{}}))
	assert.Equal(t, "empty", render(t, `{{#each list}}x{{else}}empty{{/each}}`, nil))
}

func TestEachBlockParams(t *testing.T) {
	data := map[string]any{"items": []map[string]any{{"name": "a"}, {"name": "b"}}}
	assert.Equal(t, "0:a 1:b ", render(t, `{{#each items as |item idx|}}{{idx}}:{{item.name}} {{/each}}`, data))

	nested := map[string]any{"rows": [][]string{{"a", "b"}, {"c"}}}
	assert.Equal(t, "0a0b1c",
		render(t, `{{#each rows as |row r|}}{{#each row as |cell|}}{{r}}{{cell}}{{/each}}{{/each}}`, nested))
}

func TestDataVariables(t *testing.T) {
	data := map[string]any{
		"title": "T",
		"items": []map[string]any{{"name": "a"}, {"name": "b"}},
	}
	assert.Equal(t, "T-a T-b ", render(t, `{{#each items}}{{@root.title}}-{{name}} {{/each}}`, data))

	outer := map[string]any{"outer": []map[string]any{
		{"inner": []int{1, 2}},
		{"inner": []int{3}},
	}}
	assert.Equal(t, "0.0 0.1 1.0 ", render(t, `{{#each outer}}{{#each inner}}{{@../index}}.{{@index}} {{/each}}{{/each}}`, outer))
}

func TestSparseMaps(t *testing.T) {
	assert.Equal(t, "1=a,3=b,",
		render(t, `{{#each m}}{{@index}}={{this}},{{/each}}`, map[string]any{"m": map[int]string{3: "b", 1: "a"}}))
	assert.Equal(t, "0=a,1=b,",
		render(t, `{{#each m}}{{@index}}={{this}},{{/each}}`, map[string]any{"m": map[int]string{1: "b", 0: "a"}}))
}

func TestWith(t *testing.T) {
	assert.Equal(t, "v", render(t, `{{#with obj}}{{field}}{{/with}}`, map[string]any{"obj": map[string]any{"field": "v"}}))
	assert.Equal(t, "C", render(t, `{{#with obj}}{{field}}{{else}}C{{/with}}`, map[string]any{"obj": nil}))
	assert.Equal(t, "N-T", render(t, `{{#with person}}{{name}}-{{../title}}{{/with}}`,
		map[string]any{"title": "T", "person": map[string]any{"name": "N"}}))
	assert.Equal(t, "N", render(t, `{{#with person as |p|}}{{p.name}}{{/with}}`,
		map[string]any{"person": map[string]any{"name": "N"}}))
}

func TestSections(t *testing.T) {
	data := map[string]any{
		"person": map[string]any{"name": "N"},
		"people": []map[string]any{{"name": "a"}, {"name": "b"}},
		"none":   []any{},
		"yes":    true,
		"title":  "T",
	}
	assert.Equal(t, "N", render(t, `{{#person}}{{name}}{{/person}}`, data))
	assert.Equal(t, "a,b,", render(t, `{{#people}}{{name}},{{/people}}`, data))
	assert.Equal(t, "T", render(t, `{{#yes}}{{title}}{{/yes}}`, data))
	assert.Equal(t, "none", render(t, `{{^none}}none{{/none}}`, data))
	assert.Equal(t, "", render(t, `{{^people}}none{{/people}}`, data))
	assert.Equal(t, "missing", render(t, `{{^nothing}}missing{{/nothing}}`, data))
}

func TestEscaping(t *testing.T) {
	data := map[string]any{"x": "<a href=\"x\">&'`="}
	assert.Equal(t, "&lt;a href&#x3D;&quot;x&quot;&gt;&amp;&#x27;&#x60;&#x3D;", render(t, `{{x}}`, data))
	assert.Equal(t, data["x"], render(t, `{{{x}}}`, data))
	assert.Equal(t, data["x"], render(t, `{{&x}}`, data))
	assert.Equal(t, data["x"], render(t, `{{x}}`, data, WithNoEscape()))
	assert.Equal(t, "<b>", render(t, `{{x}}`, map[string]any{"x": SafeString("<b>")}))
}

func TestEscapeExpression(t *testing.T) {
	assert.Equal(t, "plain", EscapeExpression("plain"))
	assert.Equal(t, "a &amp;&amp; b", EscapeExpression("a && b"))
}

func TestLengthAndPaths(t *testing.T) {
	data := map[string]any{
		"items": []string{"a", "b", "c"},
		"user":  map[string]any{"address": map[string]any{"city": "Oslo"}},
	}
	assert.Equal(t, "3", render(t, `{{items.length}}`, data))
	assert.Equal(t, "Oslo", render(t, `{{user.address.city}}`, data))
	assert.Equal(t, "b", render(t, `{{items.[1]}}`, data))
	assert.Equal(t, "", render(t, `{{user.phone.number}}`, data))
}

func TestStructData(t *testing.T) {
	type address struct {
		City string `json:"city"`
	}
	type person struct {
		Name    string `json:"name"`
		Age     int
		Secret  string `json:"-"`
		Address *address
	}
	p := person{Name: "Ann", Age: 30, Secret: "s", Address: &address{City: "Rome"}}
	assert.Equal(t, "Ann 30 Rome ", render(t, `{{name}} {{Age}} {{Address.city}} {{Secret}}`, p))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "OK", render(t, `{{upper name}}`, map[string]any{"name": "ok"}, WithHelper("upper", upper)))
	assert.Equal(t, "AB", render(t, `{{upper (upper name)}}`, map[string]any{"name": "ab"}, WithHelper("upper", upper)))

	fmtHelper := func(args []Value, opts *HelperOptions) (any, error) {
		return opts.HashValue("prefix").String() + args[0].String(), nil
	}
	assert.Equal(t, "#1#2", render(t, `{{#each items}}{{fmt this prefix="#"}}{{/each}}`,
		map[string]any{"items": []int{1, 2}}, WithHelper("fmt", fmtHelper)))
}

func TestHelperShadowedByBlockParam(t *testing.T) {
	name := func([]Value, *HelperOptions) (any, error) { return "HELPER", nil }
	out := render(t, `{{name}}:{{#each list as |name|}}{{name}}{{/each}}`,
		map[string]any{"list": []string{"a", "b"}}, WithHelper("name", name))
	assert.Equal(t, "HELPER:ab", out)
}

func TestBlockHelpers(t *testing.T) {
	list := func(args []Value, opts *HelperOptions) (any, error) {
		var sb strings.Builder
		sb.WriteString("<ul>")
		for _, item := range args[0].List() {
			sb.WriteString("<li>" + opts.FnWith(item) + "</li>")
		}
		sb.WriteString("</ul>")
		return SafeString(sb.String()), nil
	}
	data := map[string]any{"people": []map[string]any{{"name": "A"}, {"name": "B"}}}
	assert.Equal(t, "<ul><li>A</li><li>B</li></ul>",
		render(t, `{{#list people}}{{name}}{{/list}}`, data, WithHelper("list", list)))

	wrap := func(_ []Value, opts *HelperOptions) (any, error) {
		return "<b>" + opts.Fn() + "</b>", nil
	}
	assert.Equal(t, "<b>in</b>", render(t, `{{#wrap}}in{{/wrap}}`, nil, WithHelper("wrap", wrap)))

	inv := func(_ []Value, opts *HelperOptions) (any, error) {
		return opts.Fn() + "|" + opts.Inverse(), nil
	}
	assert.Equal(t, "yes|no", render(t, `{{#inv}}yes{{else}}no{{/inv}}`, nil, WithHelper("inv", inv)))
	assert.Equal(t, "|no", render(t, `{{^inv}}no{{/inv}}`, nil, WithHelper("inv", inv)))
}

func TestBlockHelperMissing(t *testing.T) {
	obj := func([]Value, *HelperOptions) (any, error) { return map[string]any{"k": "v"}, nil }
	assert.Equal(t, "v", render(t, `{{#obj}}{{k}}{{/obj}}`, nil, WithHelper("obj", obj)))

	no := func([]Value, *HelperOptions) (any, error) { return false, nil }
	assert.Equal(t, "else", render(t, `{{#no}}body{{else}}else{{/no}}`, nil, WithHelper("no", no)))

	items := func([]Value, *HelperOptions) (any, error) { return []string{"a", "b"}, nil }
	assert.Equal(t, "ab", render(t, `{{#items}}{{this}}{{/items}}`, nil, WithHelper("items", items)))
}

func TestHelperOptionsFrame(t *testing.T) {
	loop := func(args []Value, opts *HelperOptions) (any, error) {
		var sb strings.Builder
		for i, item := range args[0].List() {
			sb.WriteString(opts.FnWithFrame(item, Frame{
				Data:        MapOf("idx", i),
				BlockParams: []any{item, i},
			}))
		}
		return sb.String(), nil
	}
	out := render(t, `{{#loop items as |it i|}}{{i}}={{it}}@{{@idx}},{{/loop}}`,
		map[string]any{"items": []string{"x", "y"}}, WithHelper("loop", loop))
	assert.Equal(t, "0=x@0,1=y@1,", out)
}

func TestHelperOptionsData(t *testing.T) {
	setv := func(_ []Value, opts *HelperOptions) (any, error) {
		opts.SetData("v", "x")
		return "", nil
	}
	assert.Equal(t, "x", render(t, `{{setv}}{{@v}}`, nil, WithHelper("setv", setv)))

	root := func(_ []Value, opts *HelperOptions) (any, error) {
		return opts.LookupProperty(opts.Data("root"), "title"), nil
	}
	assert.Equal(t, "T", render(t, `{{#each list}}{{root}}{{/each}}`,
		map[string]any{"title": "T", "list": []int{1}}, WithHelper("root", root)))
}

func TestLambdas(t *testing.T) {
	data := map[string]any{
		"name": "Bob",
		"greet": func(args ...Value) (any, error) {
			return "hi " + args[0].String(), nil
		},
		"now": func() any { return "T" },
	}
	assert.Equal(t, "hi Bob", render(t, `{{this.greet name}}`, data))
	assert.Equal(t, "T", render(t, `{{now}}`, data))

	fn := func(args []Value, opts *HelperOptions) (any, error) {
		return opts.Fn() + args[0].String(), nil
	}
	assert.Equal(t, "bodya", render(t, `{{#this.fn "a"}}body{{/this.fn}}`, map[string]any{"fn": HelperFunc(fn)}))
}

func TestLookup(t *testing.T) {
	data := map[string]any{
		"list": []string{"a", "b"},
		"obj":  map[string]any{"a": 1, "b": 2},
		"keys": []string{"a", "b"},
	}
	assert.Equal(t, "b", render(t, `{{lookup list 1}}`, data))
	assert.Equal(t, "1,2,", render(t, `{{#each keys}}{{lookup ../obj this}},{{/each}}`, data))
	assert.Equal(t, "", render(t, `{{lookup obj "zz"}}`, data))
}

func TestRawBlock(t *testing.T) {
	raw := func(_ []Value, opts *HelperOptions) (any, error) { return opts.Fn(), nil }
	assert.Equal(t, " {{x}} ", render(t, `{{{{raw}}}} {{x}} {{{{/raw}}}}`, nil, WithHelper("raw", raw)))
}

func TestWhitespaceControl(t *testing.T) {
	assert.Equal(t, "a1b", render(t, "a {{~x~}} b", map[string]any{"x": 1}))
	assert.Equal(t, "yes\n", render(t, "{{#if a}}\nyes\n{{/if}}\n", map[string]any{"a": true}))
	assert.Equal(t, "\nyes\n\n", render(t, "{{#if a}}\nyes\n{{/if}}\n", map[string]any{"a": true}, WithIgnoreStandalone()))
	assert.Equal(t, "<ul>\n<li>a</li>\n<li>b</li>\n</ul>\n",
		render(t, "<ul>\n  {{#each items}}\n<li>{{this}}</li>\n  {{/each}}\n</ul>\n", map[string]any{"items": []string{"a", "b"}}))
	assert.Equal(t, "ab", render(t, "a{{! comment }}b", nil))
	assert.Equal(t, "ab", render(t, "a{{!-- {{nested}} --}}b", nil))
}

func TestLogHelper(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	out := render(t, `{{log "x" level="warn"}}`, nil, WithLogger(logger))
	assert.Empty(t, out)
	assert.Contains(t, buf.String(), `level=WARN msg="template log" arg0=x`)

	buf.Reset()
	out = render(t, `{{log "x" level="loud"}}`, nil, WithLogger(logger))
	assert.Empty(t, out)
	assert.Contains(t, buf.String(), `msg="unknown log level, logging at info" level=loud`)
	assert.Contains(t, buf.String(), `level=INFO msg="template log" arg0=x`)
}

func TestStrictMode(t *testing.T) {
	tmpl, err := Compile(`{{missing}}`, WithStrict())
	require.NoError(t, err)
	_, err = tmpl.RenderString(map[string]any{"other": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingValue)
	assert.EqualError(t, err, "Runtime: missing does not exist")

	assert.Equal(t, "", render(t, `{{missing}}`, map[string]any{"other": 1}))

	tmpl, err = Compile(`{{#each list}}{{nope}}{{/each}}`, WithStrict())
	require.NoError(t, err)
	_, err = tmpl.RenderString(map[string]any{"list": []int{1}})
	assert.EqualError(t, err, "Runtime: nope does not exist")
}

func TestRenderWritesNothingOnError(t *testing.T) {
	tmpl := MustCompile(`partial output {{missing}}`, WithStrict())
	var buf bytes.Buffer
	require.Error(t, tmpl.Render(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestRenderOptions(t *testing.T) {
	tmpl := MustCompile(`{{@user}} {{upper name}} {{> p}}`,
		WithHelper("upper", upper), WithPartial("p", "old"))

	out, err := tmpl.RenderString(map[string]any{"name": "n", "x": "X"},
		WithData(map[string]any{"user": "bob"}),
		WithRuntimeHelpers(map[string]HelperFunc{
			"upper": func(args []Value, _ *HelperOptions) (any, error) { return "<" + args[0].String() + ">", nil },
		}),
		WithRuntimePartials(map[string]string{"p": "new {{x}}"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "bob &lt;n&gt; new X", out)

	// the defaults are untouched
	out, err = tmpl.RenderString(map[string]any{"name": "n"})
	require.NoError(t, err)
	assert.Equal(t, " N old", out)
}

func TestResolvers(t *testing.T) {
	shout := func(args []Value, _ *HelperOptions) (any, error) { return strings.ToUpper(args[0].String()) + "!", nil }
	tmpl, err := Compile(`{{shout "a"}} {{> dyn}}`,
		WithHelperResolver(func(name string) (HelperFunc, bool) {
			if name == "shout" {
				return shout, true
			}
			return nil, false
		}),
		WithPartialResolver(func(name string) (string, bool) {
			return "[" + name + "]", name == "dyn"
		}),
	)
	require.NoError(t, err)
	out, err := tmpl.RenderString(nil)
	require.NoError(t, err)
	assert.Equal(t, "A! [dyn]", out)
	assert.Equal(t, []string{"shout"}, tmpl.UsedHelpers())
	assert.Equal(t, []string{"dyn"}, tmpl.UsedPartials())
}

func TestConcurrentRenders(t *testing.T) {
	tmpl := MustCompile(`{{#each items}}{{#*inline "x"}}[{{this}}]{{/inline}}{{> x}}{{/each}}`)
	data := map[string]any{"items": []int{1, 2, 3}}
	done := make(chan string, 8)
	for i := 0; i < 8; i++ {
		go func() {
			out, err := tmpl.RenderString(data)
			if err != nil {
				out = err.Error()
			}
			done <- out
		}()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, "[1][2][3]", <-done)
	}
}
