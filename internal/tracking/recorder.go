package tracking

import (
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"aural.click/internal/playback"
)

const recorderQueueSize = 256

// Recorder stores playback events in the history database. Events are
// queued and written by a background goroutine so that the playback hook
// never waits on disk.
type Recorder struct {
	db        *sql.DB
	sessionID string

	mu     sync.RWMutex
	closed bool
	events chan playback.Event
	done   chan struct{}

	disabled atomic.Bool
	dropped  atomic.Int64
}

// NewRecorder starts a recorder for one session. An empty sessionID gets a
// random one.
func NewRecorder(db *sql.DB, sessionID string) *Recorder {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	r := &Recorder{
		db:        db,
		sessionID: sessionID,
		events:    make(chan playback.Event, recorderQueueSize),
		done:      make(chan struct{}),
	}
	go r.run()

	slog.Debug("playback recorder started", "session_id", sessionID)
	return r
}

// SessionID identifies the rows written by this recorder
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Dropped counts events discarded because the queue was full
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Hook returns the playback hook feeding this recorder
func (r *Recorder) Hook() playback.Hook {
	return r.Record
}

// Record queues an event. It never blocks; events arriving after Close or
// while the queue is full are dropped.
func (r *Recorder) Record(ev playback.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed || r.disabled.Load() {
		return
	}

	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
		slog.Warn("playback recorder queue full, dropping event",
			"source", ev.Source,
			"kind", ev.Kind)
	}
}

// Close stops accepting events and waits until queued ones are written
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	<-r.done
	slog.Debug("playback recorder closed",
		"session_id", r.sessionID,
		"dropped", r.dropped.Load())
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.events {
		if r.disabled.Load() {
			continue
		}
		if err := r.insert(ev); err != nil {
			// A broken database must not take playback down with it
			slog.Warn("playback tracking failed, disabling recorder",
				"error", err,
				"source", ev.Source)
			r.disabled.Store(true)
		}
	}
}

func (r *Recorder) insert(ev playback.Event) error {
	var errText sql.NullString
	if ev.Err != nil {
		errText = sql.NullString{String: ev.Err.Error(), Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO playback_events
			(timestamp, session_id, player, source, kind, from_state, to_state, position_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.At.UnixMilli(),
		r.sessionID,
		ev.Player,
		ev.Source,
		string(ev.Kind),
		ev.From.String(),
		ev.To.String(),
		ev.Position.Milliseconds(),
		errText)
	return err
}
