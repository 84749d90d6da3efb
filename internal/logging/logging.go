// File: internal/logging/logging.go
// Package logging builds the structured loggers used across the engines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loggers are logiface loggers backed by stumpy JSON lines. A nil logger is
// valid everywhere and discards all events.

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"github.com/momentics/hioload-aio/api"
)

// Logger is the logger type accepted by every component.
type Logger = *logiface.Logger[logiface.Event]

// ParseLevel maps a level keyword to a logiface level. The empty string is
// informational.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logiface.LevelTrace, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "", "info":
		return logiface.LevelInformational, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "warn", "warning":
		return logiface.LevelWarning, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "disabled", "off":
		return logiface.LevelDisabled, nil
	}
	return logiface.LevelDisabled, api.NewError(api.ErrCodeInvalidArgument, "unknown log level").WithContext("level", s)
}

// New returns a logger writing JSON lines to w (stderr when nil) at the
// given level keyword.
func New(w io.Writer, level string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(lvl),
	).Logger(), nil
}

// Component returns a child logger tagging every event with component=name.
func Component(log Logger, name string) Logger {
	c := log.Clone()
	if c == nil {
		return log
	}
	return c.Str("component", name).Logger()
}
