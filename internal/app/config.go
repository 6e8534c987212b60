// Package app runs the hbs commands: rendering one template file and
// serving a template directory over HTTP.
package app

import (
	"errors"
	"fmt"
	"time"
)

const (
	CommandRender = "render"
	CommandServe  = "serve"
)

// Config holds everything a command needs to run.
type Config struct {
	Command string

	// render
	TemplatePath string
	OutputPath   string

	// serve
	Dir            string
	Addr           string
	Layout         string
	ReloadInterval time.Duration

	// DataPath is a .json, .yaml or .yml file used as the template input.
	DataPath string
	Ext      string

	Strict       bool
	NoEscape     bool
	StockHelpers bool

	LogFormat string
	LogLevel  string
}

// NewConfig validates c and returns a copy with defaults applied.
func NewConfig(c Config) (*Config, error) {
	switch c.Command {
	case CommandRender:
		if c.TemplatePath == "" {
			return nil, errors.New("render: a template path is required")
		}
	case CommandServe:
		if c.Dir == "" {
			return nil, errors.New("serve: a template directory is required")
		}
		if c.Addr == "" {
			c.Addr = ":8080"
		}
	default:
		return nil, fmt.Errorf("unknown command %q", c.Command)
	}
	if c.Ext == "" {
		c.Ext = ".hbs"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return &c, nil
}
