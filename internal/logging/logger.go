// Package logging builds the process-wide slog logger from configuration.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/masahif/sitedex/internal/config"
)

// Config represents the logging configuration
type Config struct {
	Level      slog.Level
	Format     string // "json" or "text"
	FilePath   string
	MaxSize    int64 // MB
	MaxBackups int
	Console    io.Writer // nil disables console output
}

// FromConfig maps the application log section onto a logging Config.
// Console output goes to stderr so command output on stdout stays clean.
func FromConfig(c config.LogConfig) Config {
	return Config{
		Level:      ParseLevel(c.Level),
		Format:     strings.ToLower(c.Format),
		FilePath:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Console:    os.Stderr,
	}
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a logger and returns the closer for any file it opened.
func NewLogger(cfg Config) (*slog.Logger, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.Console != nil {
		writers = append(writers, cfg.Console)
	}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, nil, err
		}

		maxSize := cfg.MaxSize
		if maxSize <= 0 {
			maxSize = 100
		}
		fileWriter, err := NewRotatingFileWriter(cfg.FilePath, maxSize*1024*1024, cfg.MaxBackups)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fileWriter)
		closer = fileWriter
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler), closer, nil
}

// SetDefault creates a logger and installs it as the slog default.
func SetDefault(cfg Config) (io.Closer, error) {
	logger, closer, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
