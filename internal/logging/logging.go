// Package logging builds the process slog.Logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format selects the handler encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseLevel maps debug, info, warn and error onto slog levels. Empty means
// info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a logger writing to w. Stdio transports pass stderr so that
// stdout carries protocol messages only.
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch Format(strings.ToLower(format)) {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case FormatText, "":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(h).With("service", "openmemory"), nil
}
