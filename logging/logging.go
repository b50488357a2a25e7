package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/goverture/chatrelay/config"
)

const (
	maxLogSizeMB  = 10
	maxLogBackups = 5
	maxLogAgeDays = 14
)

// Init builds the process logger from cfg and installs it as the slog
// default. Logs go to stderr unless cfg.LogFile is set, in which case they are
// written to a size-rotated file.
func Init(cfg *config.Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}

	var out io.Writer = os.Stderr
	if path := strings.TrimSpace(cfg.LogFile); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, err
		}
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
			Compress:   true,
		}
	}

	logger := slog.New(NewHandler(cfg.LogFormat, out, opts))
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler returns a text or JSON handler writing to out.
func NewHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		return slog.NewTextHandler(out, opts)
	default:
		return slog.NewJSONHandler(out, opts)
	}
}
