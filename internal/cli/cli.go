// Package cli parses hbs command lines into an app.Config and maps usage
// errors to exit codes.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oarkflow/handlebars/internal/app"
)

// ExitError is an error carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

const usage = `
hbs - render Handlebars templates.

Usage:
  hbs render [options] TEMPLATE
  hbs serve  [options] DIR

Run 'hbs <command> -h' for the options of a command.
`

// Parse processes command-line arguments. It returns the config to run, true
// when the program should exit cleanly (help was requested), or an
// *ExitError for invalid input. Flag defaults come from HBS_* environment
// variables when set.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	if len(args) == 0 {
		fmt.Fprint(output, usage)
		return nil, true, nil
	}
	cmd := args[0]
	switch cmd {
	case "-h", "-help", "--help", "help":
		fmt.Fprint(output, usage)
		return nil, true, nil
	case app.CommandRender, app.CommandServe:
	default:
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", cmd)}
	}

	flagSet := flag.NewFlagSet("hbs "+cmd, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		if cmd == app.CommandRender {
			fmt.Fprint(output, "\nUsage:\n  hbs render [options] TEMPLATE\n\nOptions:\n")
		} else {
			fmt.Fprint(output, "\nUsage:\n  hbs serve [options] DIR\n\nOptions:\n")
		}
		flagSet.PrintDefaults()
	}

	var (
		cfg      app.Config
		interval time.Duration
	)
	cfg.Command = cmd
	flagSet.StringVar(&cfg.DataPath, "data", env("HBS_DATA", ""), "JSON or YAML file used as template input.")
	flagSet.StringVar(&cfg.Ext, "ext", env("HBS_EXT", ".hbs"), "Template file extension.")
	flagSet.BoolVar(&cfg.Strict, "strict", false, "Fail on missing values.")
	flagSet.BoolVar(&cfg.NoEscape, "no-escape", false, "Disable HTML escaping.")
	flagSet.BoolVar(&cfg.StockHelpers, "helpers", true, "Register the stock helper library.")
	logFormat := flagSet.String("log-format", env("HBS_LOG_FORMAT", "text"), "Log output format. Options: 'text' or 'json'.")
	logLevel := flagSet.String("log-level", env("HBS_LOG_LEVEL", "info"), "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	if cmd == app.CommandRender {
		flagSet.StringVar(&cfg.OutputPath, "o", "", "Write output to this file instead of stdout.")
	} else {
		flagSet.StringVar(&cfg.Addr, "addr", env("HBS_ADDR", ":8080"), "HTTP listen address.")
		flagSet.StringVar(&cfg.Layout, "layout", env("HBS_LAYOUT", ""), "Layout template wrapping every page.")
		flagSet.DurationVar(&interval, "reload", time.Second, "Template reload poll interval; 0 disables reloading.")
	}

	if err := flagSet.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("%s: expected exactly one path argument", cmd)}
	}
	if cmd == app.CommandRender {
		cfg.TemplatePath = flagSet.Arg(0)
	} else {
		cfg.Dir = flagSet.Arg(0)
		cfg.ReloadInterval = interval
	}

	cfg.LogFormat = strings.ToLower(*logFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	cfg.LogLevel = strings.ToLower(*logLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return config, false, nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
