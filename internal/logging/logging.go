// Package logging builds the process logger: a log/slog front end writing
// through a charmbracelet/log handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

// New returns a slog.Logger writing to w. level is debug, info, warn or
// error; format is text or json.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	handler := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})

	switch strings.ToLower(format) {
	case "", "text":
		handler.SetFormatter(log.TextFormatter)
	case "json":
		handler.SetFormatter(log.JSONFormatter)
	case "logfmt":
		handler.SetFormatter(log.LogfmtFormatter)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	handler.SetLevel(lvl)

	return slog.New(handler), nil
}

func parseLevel(level string) (log.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	}
	return log.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// Discard returns a logger that drops everything, for tests
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
