// Package logging configures the logrus logger shared by the commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options controls logger setup
type Options struct {
	Level  string // logrus level name; empty means warn
	File   string // append log lines to this file instead of Output
	Output io.Writer
}

// New builds a logger. The returned closer releases the log file, if any,
// and is never nil.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	level := logrus.WarnLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
		if err != nil {
			return nil, nopCloser{}, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, closer, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, closer, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
		closer = f
	}

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableColors:    opts.File != "",
		QuoteEmptyFields: true,
	})

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
