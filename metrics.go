package handlebars

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records Engine activity. A nil *Metrics records nothing.
type Metrics struct {
	compiles        *prometheus.CounterVec
	compileDuration prometheus.Histogram
	renders         *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	reloads         *prometheus.CounterVec
}

// NewMetrics registers the template metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		compiles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handlebars_compiles_total",
				Help: "Total number of template compilations",
			},
			[]string{"result"},
		),
		compileDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "handlebars_compile_duration_seconds",
				Help:    "Template compilation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		renders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handlebars_renders_total",
				Help: "Total number of template renders",
			},
			[]string{"template", "result"},
		),
		renderDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "handlebars_render_duration_seconds",
				Help:    "Template render duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"template"},
		),
		reloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handlebars_reloads_total",
				Help: "Total number of template reloads triggered by file changes",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) observeCompile(start time.Time, err error) {
	if m == nil {
		return
	}
	m.compiles.WithLabelValues(result(err)).Inc()
	m.compileDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeRender(name string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(name, result(err)).Inc()
	m.renderDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeReload(err error) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
