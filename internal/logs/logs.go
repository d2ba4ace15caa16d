// Package logs owns the process-wide structured logger. Call Init once at
// startup; everything else reaches the logger through L.
package logs

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

// Options configure the logger at startup.
type Options struct {
	Level  string // trace|debug|info|warn|error
	Format string // text|json
	File   string // log file path prefix; empty means stdout only
}

// Init applies the options to the process logger. Unknown levels fall
// back to info rather than failing startup.
func Init(opts Options) error {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if opts.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if opts.File != "" {
		name := fmt.Sprintf("%s_%s.log", opts.File, time.Now().Format("2006-01-02"))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", name, err)
		}
		logger.SetOutput(io.MultiWriter(f, os.Stdout))
	}
	return nil
}

// L returns the process logger.
func L() *logrus.Logger {
	return logger
}

// Mute silences the logger; tests use it to keep output clean.
func Mute() {
	logger.SetOutput(io.Discard)
}
