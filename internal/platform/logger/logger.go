package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON output so log shippers don't need a
// parse config; level comes from VIGIL_LOG_LEVEL (debug/info/warn/error).
func New() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("VIGIL_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
