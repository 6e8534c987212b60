package handlebars

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "page.hbs", "<h1>{{title}}</h1>{{> footer}}", 0)
	writeFile(t, dir, "_footer.hbs", "<footer>{{site}}</footer>", 0)
	writeFile(t, dir, "layout.hbs", "<html>{{{body}}}|{{title}}</html>", 0)
	writeFile(t, dir, "notes.txt", "not a template", 0)

	engine, err := NewEngine(dir, ".hbs", opts...)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, dir
}

// counterValue reads the counter name whose label values are exactly values,
// in label name order.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, values ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			labels := m.GetLabel()
			if len(labels) != len(values) {
				continue
			}
			for i, l := range labels {
				if l.GetValue() != values[i] {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestEngine(t *testing.T) {
	engine, _ := newTestEngine(t, WithReloadInterval(0))
	assert.Equal(t, []string{"layout", "page"}, engine.Names())

	out, err := engine.RenderString("page", map[string]any{"title": "T", "site": "S"})
	require.NoError(t, err)
	assert.Equal(t, "<h1>T</h1><footer>S</footer>", out)

	_, err = engine.RenderString("nope", nil)
	assert.ErrorContains(t, err, `template "nope" not found`)

	_, ok := engine.Lookup("footer")
	assert.False(t, ok)
}

func TestEngineLayout(t *testing.T) {
	engine, _ := newTestEngine(t, WithReloadInterval(0), WithLayout("layout"))

	var buf bytes.Buffer
	require.NoError(t, engine.Render(&buf, "page", map[string]any{"title": "T", "site": "S"}))
	assert.Equal(t, "<html><h1>T</h1><footer>S</footer>|T</html>", buf.String())

	_, err := NewEngine(t.TempDir(), ".hbs", WithReloadInterval(0), WithLayout("base"))
	assert.ErrorContains(t, err, `layout "base" not found`)
}

func TestEngineCompileOptions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page.hbs", "{{missing}}", 0)

	engine, err := NewEngine(dir, ".hbs", WithReloadInterval(0), WithCompileOptions(WithStrict()))
	require.NoError(t, err)
	_, err = engine.RenderString("page", nil)
	assert.ErrorIs(t, err, ErrMissingValue)
}

func TestEngineLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.hbs", "{{#if}}x{{/if}}", 0)

	_, err := NewEngine(dir, ".hbs", WithReloadInterval(0))
	assert.ErrorIs(t, err, ErrArity)
	assert.ErrorContains(t, err, "bad.hbs")
}

func TestEngineReload(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	engine, dir := newTestEngine(t, WithReloadInterval(10*time.Millisecond), WithEngineLogger(logger))
	data := map[string]any{"title": "T", "site": "S"}

	writeFile(t, dir, "page.hbs", "<h2>{{title}}</h2>", time.Hour)
	require.Eventually(t, func() bool {
		out, err := engine.RenderString("page", data)
		return err == nil && out == "<h2>T</h2>"
	}, 2*time.Second, 10*time.Millisecond)

	writeFile(t, dir, "page.hbs", "{{> footer}}", 2*time.Hour)
	require.Eventually(t, func() bool {
		out, _ := engine.RenderString("page", data)
		return out == "<footer>S</footer>"
	}, 2*time.Second, 10*time.Millisecond)

	writeFile(t, dir, "_footer.hbs", "<small>{{site}}</small>", time.Hour)
	require.Eventually(t, func() bool {
		out, _ := engine.RenderString("page", data)
		return out == "<small>S</small>"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	engine, _ := newTestEngine(t, WithReloadInterval(0), WithMetrics(metrics))

	assert.Equal(t, float64(2), counterValue(t, reg, "handlebars_compiles_total", "ok"))

	_, err := engine.RenderString("page", nil)
	require.NoError(t, err)
	_, err = engine.RenderString("page", nil)
	require.NoError(t, err)
	_, err = engine.RenderString("ghost", nil)
	require.Error(t, err)

	assert.Equal(t, float64(2), counterValue(t, reg, "handlebars_renders_total", "ok", "page"))
	assert.Equal(t, float64(1), counterValue(t, reg, "handlebars_renders_total", "error", "ghost"))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "handlebars_renders_total")
	assert.Contains(t, names, "handlebars_compile_duration_seconds")

	// a nil *Metrics records nothing
	var none *Metrics
	none.observeRender("x", time.Now(), nil)
	none.observeReload(nil)
}
