package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"aural.click/internal/audio"
	"aural.click/internal/device"
)

type commandKind int

const (
	cmdPlay commandKind = iota
	cmdPause
	cmdStop
	cmdSeek
	cmdSetLoop
	cmdSetVolume
	cmdSetPitch
	cmdDestroy
)

func (k commandKind) String() string {
	return [...]string{"play", "pause", "stop", "seek", "set_loop", "set_volume", "set_pitch", "destroy"}[k]
}

type command struct {
	kind  commandKind
	frame int64
	flag  bool
	value float32
	ack   chan error
}

// snapshot is the state published by the feed loop for lock-free reads
type snapshot struct {
	state     State
	position  int64
	err       error
	queued    int
	free      int
	submitted int64
}

// errInterrupted aborts a fill when a Stop, Seek or Destroy arrived mid-decode
var errInterrupted = errors.New("feed interrupted")

// stream is the feed loop of one Music. All fields below the channels are
// owned by the worker goroutine.
type stream struct {
	name     string
	dev      device.Device
	opener   Opener
	src      audio.Source
	format   audio.Format
	length   int64
	tick     time.Duration
	chunk    int
	hooks    []Hook
	commands chan command
	done     chan struct{}

	// generation is bumped by the controller before sending Stop, Seek or
	// Destroy; a chunk decoded under an older generation is never submitted
	generation atomic.Uint64
	published  atomic.Pointer[snapshot]

	source      device.SourceID
	pool        *BufferPool
	decoder     audio.Stream
	state       State
	err         error
	startOffset int64 // frame the current run started from
	reclaimed   int64 // frames played and unqueued since startOffset
	frozen      int64 // position reported while not playing
	eof         bool // source ended and no rewind follows
	atEnd       bool // decoder reached the end of the source
	rewound     bool
	sinceRewind int64
	submitted   int64
	loop        bool
	scratch     []byte

	// pending is the state a Play or Pause asked for when a later Stop or
	// Seek interrupted the prime; Stopped when there is none
	pending State
}

func (s *stream) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-s.commands:
			if s.apply(cmd) {
				return
			}
		case <-ticker.C:
			if s.state == Playing {
				s.feed()
			}
		}
	}
}

// apply executes one command and reports whether the worker must exit
func (s *stream) apply(cmd command) bool {
	slog.Debug("stream command", "source", s.name, "command", cmd.kind, "state", s.state)

	var err error
	switch cmd.kind {
	case cmdPlay:
		err = s.play()
	case cmdPause:
		s.pause()
	case cmdStop:
		s.stop(EventStop)
	case cmdSeek:
		err = s.seek(cmd.frame)
	case cmdSetLoop:
		s.loop = cmd.flag
	case cmdSetVolume:
		err = s.deviceCall(s.dev.SetGain(s.source, cmd.value))
	case cmdSetPitch:
		err = s.deviceCall(s.dev.SetPitch(s.source, cmd.value))
	case cmdDestroy:
		s.destroy()
		s.publish()
		if cmd.ack != nil {
			cmd.ack <- nil
		}
		return true
	}

	s.publish()
	if cmd.ack != nil {
		cmd.ack <- err
	}
	return false
}

func (s *stream) play() error {
	switch s.state {
	case Playing:
		return nil
	case Errored:
		return fmt.Errorf("%w: stream errored: %v", ErrInvalidState, s.err)
	case Paused:
		if err := s.dev.Play(s.source); err != nil {
			return s.fail(err)
		}
		s.transition(EventPlay, Playing, nil)
		s.feed()
		return nil
	case Exhausted:
		s.startOffset = 0
	}

	if err := s.prime(); err != nil {
		if errors.Is(err, errInterrupted) {
			s.pending = Playing
			return nil
		}
		return s.fail(err)
	}
	s.pending = Stopped
	if s.pool.Queued() == 0 {
		// Nothing left to play from here
		s.closeDecoder()
		s.frozen = s.startOffset
		s.transition(EventExhausted, Exhausted, nil)
		return nil
	}
	if err := s.dev.Play(s.source); err != nil {
		return s.fail(err)
	}
	s.transition(EventPlay, Playing, nil)
	return nil
}

func (s *stream) pause() {
	if s.pending == Playing {
		s.pending = Paused
		return
	}
	if s.state != Playing {
		return
	}
	if err := s.dev.Pause(s.source); err != nil {
		s.fail(err)
		return
	}
	s.frozen = s.position()
	s.transition(EventPause, Paused, nil)
}

// stop flushes the device queue and closes the decoder; the next play starts at frame 0
func (s *stream) stop(kind EventKind) {
	if err := s.pool.ReclaimAll(); err != nil {
		slog.Warn("failed to reclaim buffers on stop", "source", s.name, "error", err)
	}
	s.closeDecoder()
	s.startOffset = 0
	s.reclaimed = 0
	s.frozen = 0
	s.eof = false
	s.err = nil
	s.pending = Stopped
	if s.state != Stopped || kind != EventStop {
		s.transition(kind, Stopped, nil)
	}
}

func (s *stream) seek(frame int64) error {
	was := s.state
	if was == Errored {
		return fmt.Errorf("%w: stream errored: %v", ErrInvalidState, s.err)
	}
	if s.pending != Stopped {
		// This seek cut a Play short while it was priming
		was = s.pending
		s.pending = Stopped
	}

	if err := s.pool.ReclaimAll(); err != nil {
		slog.Warn("failed to reclaim buffers on seek", "source", s.name, "error", err)
	}
	s.startOffset = frame
	s.reclaimed = 0
	s.frozen = frame
	s.eof = false

	switch was {
	case Playing, Paused:
		if err := s.prime(); err != nil {
			if errors.Is(err, errInterrupted) {
				if s.state != Playing && s.state != Paused {
					s.pending = was
				}
				return nil
			}
			return s.fail(err)
		}
		if was == Playing {
			if s.pool.Queued() == 0 {
				s.closeDecoder()
				s.transition(EventExhausted, Exhausted, nil)
				return nil
			}
			if err := s.dev.Play(s.source); err != nil {
				return s.fail(err)
			}
		}
		kind := EventSeek
		if was == Playing && s.state != Playing {
			kind = EventPlay
		}
		s.transition(kind, was, nil)
	default:
		// Reopened lazily by the next play
		s.closeDecoder()
		s.transition(EventSeek, Stopped, nil)
	}
	return nil
}

func (s *stream) destroy() {
	s.stop(EventDestroy)
	if err := s.pool.Release(); err != nil {
		slog.Warn("failed to release stream buffers", "source", s.name, "error", err)
	}
	if err := s.dev.DeleteSource(s.source); err != nil {
		slog.Warn("failed to delete device source", "source", s.name, "error", err)
	}
	slog.Debug("stream worker exiting", "source", s.name, "chunks_submitted", s.submitted)
}

// prime positions the decoder at startOffset and fills every free buffer
func (s *stream) prime() error {
	if err := s.ensureDecoder(); err != nil {
		return err
	}
	s.reclaimed = 0
	s.eof = false
	return s.fill()
}

func (s *stream) ensureDecoder() error {
	if s.decoder == nil {
		dec, err := s.opener.Open(s.src)
		if err != nil {
			return err
		}
		s.decoder = dec
	}
	if err := s.decoder.Seek(s.startOffset); err != nil {
		return err
	}
	s.atEnd = false
	s.rewound = false
	s.sinceRewind = 0
	return nil
}

func (s *stream) closeDecoder() {
	if s.decoder == nil {
		return
	}
	if err := s.decoder.Close(); err != nil {
		slog.Debug("decoder close failed", "source", s.name, "error", err)
	}
	s.decoder = nil
}

// feed runs one iteration of the feed loop while playing
func (s *stream) feed() {
	reclaimed, err := s.pool.ReclaimProcessed()
	for _, r := range reclaimed {
		s.reclaimed += int64(r.Frames)
	}
	if err != nil {
		s.fail(err)
		s.publish()
		return
	}

	if err := s.fill(); err != nil {
		if !errors.Is(err, errInterrupted) {
			s.fail(err)
		}
		s.publish()
		return
	}

	if s.eof && s.pool.Queued() == 0 {
		s.closeDecoder()
		s.frozen = s.startOffset + s.reclaimed
		s.transition(EventExhausted, Exhausted, nil)
		s.publish()
		return
	}

	if s.pool.Queued() > 0 {
		state, err := s.dev.SourceState(s.source)
		if err != nil {
			s.fail(err)
			s.publish()
			return
		}
		if state == device.SourceStopped || state == device.SourceInitial {
			slog.Warn("stream underrun, restarting device source",
				"source", s.name,
				"queued", s.pool.Queued(),
				"position", s.position())
			if err := s.dev.Play(s.source); err != nil {
				s.fail(err)
			}
		}
	}
	s.publish()
}

// fill decodes chunks into every free buffer until the pool is full or the
// source ends. Reaching the end of a looping source only marks it; the rewind
// happens when the next buffer is free, so turning loop off in between still
// ends the stream after the current pass.
func (s *stream) fill() error {
	for !s.eof {
		id, ok := s.pool.AcquireFree()
		if !ok {
			return nil
		}

		if s.atEnd {
			if !s.loop {
				s.eof = true
				return nil
			}
			if s.rewound && s.sinceRewind == 0 {
				slog.Warn("looping source produced no frames, treating as ended", "source", s.name)
				s.eof = true
				return nil
			}
			if err := s.decoder.Seek(0); err != nil {
				return err
			}
			s.atEnd = false
			s.rewound = true
			s.sinceRewind = 0
		}

		gen := s.generation.Load()
		chunk, end, err := s.readChunk()
		if err != nil {
			return err
		}
		if s.generation.Load() != gen {
			slog.Debug("discarding chunk decoded before interrupt", "source", s.name, "frames", chunk.Frames)
			return errInterrupted
		}

		if chunk.Frames > 0 {
			if err := s.pool.Submit(id, chunk); err != nil {
				return err
			}
			s.submitted++
		} else if !end {
			// Decoder has nothing yet; try again next tick
			return nil
		}
		s.atEnd = end
	}
	return nil
}

// readChunk decodes up to chunk frames. A short chunk is returned only at end
// of stream and is never padded.
func (s *stream) readChunk() (audio.Chunk, bool, error) {
	frameSize := s.format.BytesPerFrame()
	if len(s.scratch) < s.chunk*frameSize {
		s.scratch = make([]byte, s.chunk*frameSize)
	}

	frames := 0
	for frames < s.chunk {
		n, err := s.decoder.ReadFrames(s.scratch[frames*frameSize : s.chunk*frameSize])
		frames += n
		s.sinceRewind += int64(n)
		if err == io.EOF {
			return s.makeChunk(frames), true, nil
		}
		if err != nil {
			return audio.Chunk{}, false, err
		}
		if n == 0 {
			// A decoder that returns nothing without EOF would spin here
			return s.makeChunk(frames), false, nil
		}
	}
	return s.makeChunk(frames), false, nil
}

func (s *stream) makeChunk(frames int) audio.Chunk {
	return audio.Chunk{
		Data:   s.scratch[:frames*s.format.BytesPerFrame()],
		Frames: frames,
		Format: s.format,
	}
}

// position is the current playback position in frames
func (s *stream) position() int64 {
	if s.state != Playing && s.state != Paused {
		return s.frozen
	}
	offset, err := s.dev.SampleOffset(s.source)
	if err != nil {
		return s.startOffset + s.reclaimed
	}
	return s.startOffset + s.reclaimed + offset
}

// fail moves the stream to Errored. Buffers are reclaimed and the decoder closed.
func (s *stream) fail(err error) error {
	if s.state == Errored {
		return err
	}
	s.frozen = s.position()

	slog.Error("stream failed", "source", s.name, "state", s.state, "error", err)

	if rerr := s.pool.ReclaimAll(); rerr != nil {
		slog.Warn("failed to reclaim buffers after error", "source", s.name, "error", rerr)
	}
	s.closeDecoder()
	s.err = err
	s.pending = Stopped
	s.transition(EventError, Errored, err)
	return err
}

func (s *stream) deviceCall(err error) error {
	if err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *stream) transition(kind EventKind, to State, err error) {
	from := s.state
	s.state = to
	emit(s.hooks, Event{
		Player:   "music",
		Source:   s.name,
		Kind:     kind,
		From:     from,
		To:       to,
		Position: s.format.FramesToDuration(s.position()),
		Err:      err,
	})
}

func (s *stream) publish() {
	s.published.Store(&snapshot{
		state:     s.state,
		position:  s.position(),
		err:       s.err,
		queued:    s.pool.Queued(),
		free:      s.pool.Free(),
		submitted: s.submitted,
	})
}
