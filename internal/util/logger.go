// Package util provides logging setup and small process helpers.
package util

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a level name (debug, info, warn, error) to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return lvl, nil
}

// SetupLogger installs a text logger writing to w at level as the process
// default and returns it.
func SetupLogger(level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger, nil
}

// Info logs a formatted informational message on the default logger.
func Info(msg string, args ...any) {
	slog.Info(fmt.Sprintf(msg, args...))
}

// Error logs a formatted error message on the default logger.
func Error(msg string, args ...any) {
	slog.Error(fmt.Sprintf(msg, args...))
}
