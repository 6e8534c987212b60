package handlebars_test

import (
	"fmt"
	"os"
	"strings"

	"github.com/oarkflow/handlebars"
	"github.com/oarkflow/handlebars/helpers"
)

func ExampleCompile() {
	tmpl := handlebars.MustCompile("Hello {{name}}! {{#each items}}[{{@index}}:{{this}}]{{/each}}")
	out, err := tmpl.RenderString(map[string]any{
		"name":  "World",
		"items": []string{"a", "b"},
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(out)
	// Output: Hello World! [0:a][1:b]
}

func ExampleWithHelper() {
	list := func(args []handlebars.Value, opts *handlebars.HelperOptions) (any, error) {
		var sb strings.Builder
		sb.WriteString("<ul>")
		for _, item := range args[0].List() {
			sb.WriteString("<li>" + opts.FnWith(item) + "</li>")
		}
		sb.WriteString("</ul>")
		return handlebars.SafeString(sb.String()), nil
	}

	tmpl := handlebars.MustCompile(`{{#list people}}{{name}}{{/list}}`, handlebars.WithHelper("list", list))
	_ = tmpl.Render(os.Stdout, map[string]any{
		"people": []map[string]any{{"name": "Ann"}, {"name": "Bob"}},
	})
	// Output: <ul><li>Ann</li><li>Bob</li></ul>
}

func ExampleWithPartial() {
	tmpl := handlebars.MustCompile(`{{#> card title="News"}}<p>{{body}}</p>{{/card}}`,
		handlebars.WithPartial("card", `<section><h2>{{title}}</h2>{{> @partial-block}}</section>`))
	out, _ := tmpl.RenderString(map[string]any{"body": "Fresh"})
	fmt.Println(out)
	// Output: <section><h2>News</h2><p>Fresh</p></section>
}

func ExampleDataFromYAML() {
	data, err := handlebars.DataFromYAML([]byte("zeta: 1\nalpha: 2\n"))
	if err != nil {
		panic(err)
	}
	tmpl := handlebars.MustCompile(`{{#each this}}{{@key}}={{this}} {{/each}}`)
	out, _ := tmpl.RenderString(data)
	fmt.Println(out)
	// Output: zeta=1 alpha=2
}

func ExampleWithHelpers() {
	tmpl := handlebars.MustCompile(`{{upper (truncate title 5)}} {{formatNumber price 2 sep=","}}`,
		handlebars.WithHelpers(helpers.Default()))
	out, _ := tmpl.RenderString(map[string]any{"title": "handlebars", "price": 1234.5})
	fmt.Println(out)
	// Output: HANDL 1,234.50
}
