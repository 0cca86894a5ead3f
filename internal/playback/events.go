package playback

import (
	"log/slog"
	"time"
)

// EventKind names what caused a state transition
type EventKind string

const (
	EventPlay      EventKind = "play"
	EventPause     EventKind = "pause"
	EventStop      EventKind = "stop"
	EventSeek      EventKind = "seek"
	EventExhausted EventKind = "exhausted"
	EventError     EventKind = "error"
	EventDestroy   EventKind = "destroy"
)

// Event describes one state transition of a player
type Event struct {
	Player   string // "music" or "sound"
	Source   string
	Kind     EventKind
	From     State
	To       State
	Position time.Duration
	Err      error
	At       time.Time
}

// Hook receives events. Hooks run on the goroutine that made the transition
// and must not block.
type Hook func(Event)

func emit(hooks []Hook, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	slog.Debug("playback event",
		"player", ev.Player,
		"source", ev.Source,
		"kind", ev.Kind,
		"from", ev.From,
		"to", ev.To,
		"position", ev.Position)
	for _, h := range hooks {
		h(ev)
	}
}
