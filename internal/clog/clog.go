// Package clog configures the process-wide zerolog logger. Grounded on the
// teacher's cmd/mybittorrent/main.go, which wires a -debug flag through a
// hand-rolled DebugType into a slog.Level; here the level name goes straight
// through zerolog.ParseLevel since zerolog already knows how to parse
// "debug"/"info"/"warn"/"error", so the teacher's custom flag.Value type
// isn't needed. All log output goes to stderr, since spec.md reserves
// stdout for structured command output.
package clog

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process logger at the given level name, defaulting to
// warn on an unrecognized level, matching the teacher's fallback behavior.
func New(levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}
