package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oarkflow/handlebars"
)

func (a *App) serve(ctx context.Context) error {
	data, err := loadData(a.config.DataPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	engine, err := handlebars.NewEngine(a.config.Dir, a.config.Ext,
		handlebars.WithLayout(a.config.Layout),
		handlebars.WithReloadInterval(a.config.ReloadInterval),
		handlebars.WithCompileOptions(a.compileOptions()...),
		handlebars.WithMetrics(handlebars.NewMetrics(reg)),
		handlebars.WithEngineLogger(a.logger),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	ln, err := net.Listen("tcp", a.config.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.config.Addr, err)
	}
	srv := &http.Server{
		Handler:           a.router(engine, reg, data),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving templates", "addr", ln.Addr().String(), "dir", a.config.Dir, "templates", len(engine.Names()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// router serves GET /{name} by rendering template name with data. Query
// parameters are available to templates as @query.
func (a *App) router(engine *handlebars.Engine, reg *prometheus.Registry, data handlebars.Value) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	page := func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		if name == "" {
			name = "index"
		}
		if _, ok := engine.Lookup(name); !ok {
			http.NotFound(w, req)
			return
		}

		values := req.URL.Query()
		query := handlebars.NewMap()
		for _, k := range slices.Sorted(maps.Keys(values)) {
			if v := values[k]; len(v) > 0 {
				query.Set(k, v[0])
			}
		}
		out, err := engine.RenderString(name, data, handlebars.WithData(map[string]any{"query": query}))
		if err != nil {
			a.logger.Error("render failed", "template", name, "error", err)
			http.Error(w, "template render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(out))
	}
	r.Get("/", page)
	r.Get("/{name}", page)
	return r
}
