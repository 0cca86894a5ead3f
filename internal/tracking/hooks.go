package tracking

import (
	"log/slog"

	"aural.click/internal/playback"
)

// SlogHook logs playback transitions. Errors are logged at Error level,
// lifecycle transitions at Info.
type SlogHook struct {
	logger *slog.Logger
}

// NewSlogHook creates a new SlogHook with the given logger
// If logger is nil, uses the default logger
func NewSlogHook(logger *slog.Logger) *SlogHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogHook{
		logger: logger,
	}
}

// Hook returns the playback hook
func (s *SlogHook) Hook() playback.Hook {
	return func(ev playback.Event) {
		if ev.Kind == playback.EventError {
			s.logger.Error("playback failed",
				"player", ev.Player,
				"source", ev.Source,
				"position", ev.Position,
				"error", ev.Err)
			return
		}
		s.logger.Info("playback "+string(ev.Kind),
			"player", ev.Player,
			"source", ev.Source,
			"from", ev.From.String(),
			"to", ev.To.String(),
			"position", ev.Position)
	}
}
