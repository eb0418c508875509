package env

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLogLevel reads LOG_LEVEL ("debug", "info", "warn", "error") and falls back
// to the provided level if the variable is empty or unrecognised.
func ParseLogLevel(fallback slog.Level) slog.Level {
	switch strings.ToLower(Get("LOG_LEVEL", "")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

// NewLogger builds the text logger every binary uses and installs it as the default.
func NewLogger(service string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLogLevel(slog.LevelInfo),
	})).With("service", service)
	slog.SetDefault(logger)
	return logger
}
