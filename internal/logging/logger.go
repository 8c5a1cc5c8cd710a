// Package logging provides leveled logging and replay tracing for simreplay.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TraceLogger that writes one JSONL trace file per replay
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// LevelTrace is a custom slog level below Debug for full content logging.
// At this level, every replay step is written with its full observed and
// expected state, not just deviations.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
