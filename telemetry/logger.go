// Package telemetry builds the root logger and publishes live navigation
// values for plotting.
package telemetry

import (
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav/config"
	"io"
	"os"
)

// NewLogger returns the root logger for the configured level and format.  An
// unrecognized level falls back to info.
func NewLogger(name string, cfg config.Telemetry) hclog.Logger {
	return newLogger(name, cfg, os.Stderr)
}

func newLogger(name string, cfg config.Telemetry, out io.Writer) hclog.Logger {

	level := hclog.LevelFromString(cfg.LogLevel)

	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     out,
		JSONFormat: cfg.JSONLogs,
	})
}
