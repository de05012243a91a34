package types

import (
	"fmt"
	"log/slog"
	"strings"
)

type LogLevel slog.Level

const (
	LevelTrace = slog.Level(slog.LevelDebug - 1)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var levelNames = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

// ParseLevel maps a case-insensitive level name onto a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	l, ok := levelNames[strings.ToLower(name)]
	if !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
	return l, nil
}

// ComponentLogger returns a logger tagged with the component name or one
// discarding everything when logging has been disabled for it.
func ComponentLogger(component string, enabled bool) *slog.Logger {
	if !enabled {
		return slog.New(slog.DiscardHandler)
	}
	return slog.Default().With("t", component)
}
