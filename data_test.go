package handlebars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataFromJSON(t *testing.T) {
	v, err := DataFromJSON([]byte(`{"b": 1, "a": [true, null, "x"], "c": {"z": 1.5, "y": "two"}}`))
	require.NoError(t, err)

	assert.Equal(t, "b;a;c;", render(t, `{{#each this}}{{@key}};{{/each}}`, v))
	assert.Equal(t, "z=1.5,y=two,", render(t, `{{#each c}}{{@key}}={{this}},{{/each}}`, v))
	assert.Equal(t, "[true][][x]", render(t, `{{#each a}}[{{this}}]{{/each}}`, v))
	assert.Equal(t, "1.5|1", render(t, `{{c.z}}|{{b}}`, v))

	_, err = DataFromJSON([]byte(`{"a": 1} trailing`))
	assert.Error(t, err)

	_, err = DataFromJSON([]byte(`{"a": `))
	assert.Error(t, err)
}

func TestDataFromYAML(t *testing.T) {
	src := `
b: 1
a:
  - true
  - ~
  - x
c:
  z: 1.5
  y: two
base: &base
  k: v
copy: *base
`
	v, err := DataFromYAML([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "b;a;c;base;copy;", render(t, `{{#each this}}{{@key}};{{/each}}`, v))
	assert.Equal(t, "z=1.5,y=two,", render(t, `{{#each c}}{{@key}}={{this}},{{/each}}`, v))
	assert.Equal(t, "[true][][x]", render(t, `{{#each a}}[{{this}}]{{/each}}`, v))
	assert.Equal(t, "v", render(t, `{{copy.k}}`, v))

	empty, err := DataFromYAML(nil)
	require.NoError(t, err)
	assert.True(t, empty.IsNull())

	_, err = DataFromYAML([]byte("a: [1, 2"))
	assert.Error(t, err)
}

func TestValueOf(t *testing.T) {
	type inner struct{ N int }
	type outer struct {
		inner
		Label string `json:"label,omitempty"`
		skip  string
	}

	m := ValueOf(outer{inner: inner{N: 3}, Label: "L", skip: "s"}).Map()
	require.NotNil(t, m)
	assert.Equal(t, []string{"N", "label"}, m.Keys())

	assert.Equal(t, MapKind, ValueOf(map[string]int{"a": 1}).Kind())
	assert.Equal(t, ListKind, ValueOf([2]string{"a", "b"}).Kind())
	assert.Equal(t, StringKind, ValueOf([]byte("raw")).Kind())
	assert.Equal(t, NumberKind, ValueOf(uint8(7)).Kind())
	assert.Equal(t, LambdaKind, ValueOf(func() any { return 1 }).Kind())
	assert.True(t, ValueOf((*outer)(nil)).IsNull())

	assert.Equal(t, map[string]any{"a": float64(1), "b": []any{"x", true}},
		ValueOf(map[string]any{"a": 1, "b": []any{"x", true}}).Interface())
}

func TestMap(t *testing.T) {
	m := MapOf("z", 1, "a", 2)
	m.Set("m", 3)
	m.Set("z", 4)
	assert.Equal(t, []string{"z", "a", "m"}, m.Keys())

	v, ok := m.Get("z")
	require.True(t, ok)
	assert.Equal(t, "4", v.String())

	m.Delete("a")
	assert.Equal(t, []string{"z", "m"}, m.Keys())
	assert.Equal(t, 2, m.Len())

	var seen []string
	m.Range(func(k string, _ Value) bool {
		seen = append(seen, k)
		return false
	})
	assert.Equal(t, []string{"z"}, seen)
}
