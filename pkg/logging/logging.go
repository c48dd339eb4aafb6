// Package logging builds the node's structured logger and gives the
// foreign log_level call somewhere to land at runtime.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Custom level values slot around slog's four built-ins so every name
// the foreign log_level call accepts (TRACE, DEBUG, INFO, NOTICE, WARN,
// ERROR, FATAL) maps to a distinct, correctly ordered slog.Level.
const (
	LevelTrace  = slog.Level(-8)
	LevelDebug  = slog.LevelDebug
	LevelInfo   = slog.LevelInfo
	LevelNotice = slog.Level(2)
	LevelWarn   = slog.LevelWarn
	LevelError  = slog.LevelError
	LevelFatal  = slog.Level(12)
)

var levelNames = map[slog.Level]string{
	LevelTrace:  "TRACE",
	LevelDebug:  "DEBUG",
	LevelInfo:   "INFO",
	LevelNotice: "NOTICE",
	LevelWarn:   "WARN",
	LevelError:  "ERROR",
	LevelFatal:  "FATAL",
}

// ParseLevel maps one of the foreign log_level names to its slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "NOTICE":
		return LevelNotice, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", name)
	}
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	lvl, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	if name, ok := levelNames[lvl]; ok {
		a.Value = slog.StringValue(name)
	}
	return a
}

// Logger wraps a *slog.Logger whose minimum level can be raised or
// lowered after construction, the way the foreign log_level call
// expects to be able to reach in and change verbosity on a running node.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New builds a Logger writing tint-colored, timestamped lines to
// stderr, starting at the given minimum level.
func New(level slog.Level) *Logger {
	return NewWithFormat(level, "text")
}

// NewWithFormat is New with an explicit output format: "text" for the
// tint-colored development handler, "json" for slog's own JSON handler
// so log lines are consumable by machines rather than a terminal.
func NewWithFormat(level slog.Level, format string) *Logger {
	lv := &slog.LevelVar{}
	lv.Set(level)

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level:       lv,
			AddSource:   true,
			ReplaceAttr: replaceLevel,
		})
	default:
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:       lv,
			TimeFormat:  time.RFC3339,
			AddSource:   true,
			ReplaceAttr: replaceLevel,
		})
	}
	return &Logger{Logger: slog.New(handler), level: lv}
}

// SetLevel changes the minimum level of everything already logging
// through this Logger, matching the foreign log_level/loglevel calls
// that reach into a running node rather than requiring a restart.
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// Level returns the Logger's current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}
