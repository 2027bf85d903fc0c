package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Options configures the application logger
type Options struct {
	Level  string
	Debug  bool
	JSON   bool
	Output io.Writer
}

// New creates the leveled logger used across the plugin manager
func New(opts Options) hclog.Logger {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	if opts.Debug {
		level = hclog.Debug
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       "kmpkg",
		Level:      level,
		Output:     output,
		JSONFormat: opts.JSON,
	})
}
