package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the process-wide structured logger: JSON to stderr by
// default, or through a rotating lumberjack writer when logFile is set.
// The returned close func flushes/closes the rotation writer, a no-op
// for the stderr path.
func newLogger(level, logFile string) (*slog.Logger, func()) {
	var w io.Writer = os.Stderr
	closeFn := func() {}

	if logFile != "" {
		lj := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		w = lj
		closeFn = func() { lj.Close() }
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})), closeFn
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
