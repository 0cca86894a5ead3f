package cli

import (
	"context"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"aural.click/internal/config"
)

// MultiLevelHandler fans records out to several handlers, each keeping its
// own level. Errors go to stderr while the log file gets everything.
type MultiLevelHandler struct {
	handlers []slog.Handler
}

// NewMultiLevelHandler creates a handler that distributes records to handlers
func NewMultiLevelHandler(handlers ...slog.Handler) *MultiLevelHandler {
	return &MultiLevelHandler{handlers: handlers}
}

// Enabled is true if any wrapped handler takes the level
func (h *MultiLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *MultiLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return NewMultiLevelHandler(handlers...)
}

func (h *MultiLevelHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return NewMultiLevelHandler(handlers...)
}

// setupLogging installs the default logger: stderr at the configured level,
// plus a rotated debug log file when file logging is enabled
func setupLogging(cfg *config.Config, cm *config.ConfigManager, stderr io.Writer) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
	}

	var logFilePath string
	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		logFilePath = cm.ResolveLogFilePath(cfg.FileLogging.Filename)
		// lumberjack creates the directory on first write
		fileWriter := &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    cfg.FileLogging.MaxSizeMB,
			MaxBackups: cfg.FileLogging.MaxBackups,
			MaxAge:     cfg.FileLogging.MaxAgeDays,
			Compress:   cfg.FileLogging.Compress,
		}
		handlers = append(handlers, slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	slog.SetDefault(slog.New(NewMultiLevelHandler(handlers...)))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"file", logFilePath)
}
