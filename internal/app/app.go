package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/handlebars"
	"github.com/oarkflow/handlebars/helpers"
)

// App runs one configured command.
type App struct {
	out    io.Writer
	logger *slog.Logger
	config *Config
}

// NewApp returns an App writing command output to out and logs to logW.
func NewApp(out, logW io.Writer, config *Config) *App {
	return &App{
		out:    out,
		logger: newLogger(config.LogLevel, config.LogFormat, logW),
		config: config,
	}
}

// Run executes the configured command until it finishes or ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.logger.Debug("running command", "command", a.config.Command)
	switch a.config.Command {
	case CommandRender:
		return a.render()
	case CommandServe:
		return a.serve(ctx)
	}
	return fmt.Errorf("unknown command %q", a.config.Command)
}

func (a *App) compileOptions() []handlebars.Option {
	opts := []handlebars.Option{handlebars.WithLogger(a.logger)}
	if a.config.StockHelpers {
		opts = append(opts, handlebars.WithHelpers(helpers.Default()))
	}
	if a.config.Strict {
		opts = append(opts, handlebars.WithStrict())
	}
	if a.config.NoEscape {
		opts = append(opts, handlebars.WithNoEscape())
	}
	return opts
}

// loadData reads the data file, picking the decoder by extension. No file
// means no data.
func loadData(path string) (handlebars.Value, error) {
	if path == "" {
		return handlebars.Null, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return handlebars.Null, fmt.Errorf("reading data %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return handlebars.DataFromYAML(b)
	}
	return handlebars.DataFromJSON(b)
}

func (a *App) render() error {
	data, err := loadData(a.config.DataPath)
	if err != nil {
		return err
	}
	files := handlebars.NewFileCache(1, a.compileOptions()...)
	tmpl, err := files.CompileFile(a.config.TemplatePath)
	if err != nil {
		return err
	}

	if a.config.OutputPath == "" {
		return tmpl.Render(a.out, data)
	}
	out, err := tmpl.RenderString(data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.config.OutputPath, []byte(out), 0o644); err != nil {
		return fmt.Errorf("writing output %q: %w", a.config.OutputPath, err)
	}
	a.logger.Info("rendered template", "template", a.config.TemplatePath, "output", a.config.OutputPath)
	return nil
}
