package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"aural.click/internal/audio"
	"aural.click/internal/device"
)

// Sound plays fully decoded data from the shared cache on its own device
// source. Several Sounds for the same source share one SoundData.
type Sound struct {
	ctx   *Context
	data  *SoundData
	hooks []Hook

	mu        sync.Mutex
	source    device.SourceID
	started   bool  // played since the last Stop
	pending   int64 // offset to apply on the next Play, -1 for none
	volume    float32
	pitch     float32
	loop      bool
	destroyed bool
}

// NewSound fetches (or decodes) src through the context's cache and binds it
// to a fresh device source
func NewSound(ctx context.Context, pctx *Context, src audio.Source, opts ...Option) (*Sound, error) {
	if pctx == nil || !pctx.initialized() {
		return nil, ErrContextNotInitialized
	}

	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	data, err := pctx.cache.GetOrDecode(ctx, src)
	if err != nil {
		return nil, err
	}

	dev := pctx.dev
	source, err := dev.GenSource()
	if err != nil {
		_ = pctx.cache.Release(data)
		return nil, fmt.Errorf("create device source: %w", err)
	}
	if err := errors.Join(
		dev.SetBuffer(source, data.buffer),
		dev.SetGain(source, o.volume),
		dev.SetPitch(source, o.pitch),
		dev.SetLooping(source, o.loop),
	); err != nil {
		_ = dev.DeleteSource(source)
		_ = pctx.cache.Release(data)
		return nil, err
	}

	s := &Sound{
		ctx:     pctx,
		data:    data,
		hooks:   append(pctx.hookList(), o.hooks...),
		source:  source,
		pending: -1,
		volume:  o.volume,
		pitch:   o.pitch,
		loop:    o.loop,
	}
	if err := pctx.track(s); err != nil {
		_ = dev.DeleteSource(source)
		_ = pctx.cache.Release(data)
		return nil, err
	}

	slog.Debug("sound created", "key", data.key, "source", source, "frames", data.frames)
	return s, nil
}

// Data returns the shared sound data
func (s *Sound) Data() *SoundData { return s.data }

func (s *Sound) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	from := s.stateLocked()
	if from == Playing {
		return nil
	}

	dev := s.ctx.dev
	if err := dev.Play(s.source); err != nil {
		return err
	}
	if from != Paused && s.pending >= 0 {
		if err := dev.SetSampleOffset(s.source, s.pending); err != nil {
			return err
		}
	}
	s.pending = -1
	s.started = true
	s.emitLocked(EventPlay, from)
	return nil
}

func (s *Sound) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	from := s.stateLocked()
	if from != Playing {
		return nil
	}
	if err := s.ctx.dev.Pause(s.source); err != nil {
		return err
	}
	s.emitLocked(EventPause, from)
	return nil
}

// Stop halts playback; the next Play starts from the beginning
func (s *Sound) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	from := s.stateLocked()
	if err := s.ctx.dev.Stop(s.source); err != nil {
		return err
	}
	s.started = false
	s.pending = -1
	if from != Stopped {
		s.emitLocked(EventStop, from)
	}
	return nil
}

// Seek moves the play cursor. Seeking to the end stops the sound.
func (s *Sound) Seek(frame int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	if frame < 0 || frame > s.data.frames {
		return fmt.Errorf("%w: frame %d outside [0, %d]", ErrOutOfRange, frame, s.data.frames)
	}

	from := s.stateLocked()
	dev := s.ctx.dev
	switch {
	case frame == s.data.frames:
		if err := dev.Stop(s.source); err != nil {
			return err
		}
		s.started = false
		s.pending = -1
	case from == Playing || from == Paused:
		if err := dev.SetSampleOffset(s.source, frame); err != nil {
			return err
		}
	default:
		s.pending = frame
	}
	s.emitLocked(EventSeek, from)
	return nil
}

func (s *Sound) SetVolume(v float32) error {
	if err := validateVolume(v); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	if err := s.ctx.dev.SetGain(s.source, v); err != nil {
		return err
	}
	s.volume = v
	return nil
}

func (s *Sound) SetPitch(p float32) error {
	if err := validatePitch(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	if err := s.ctx.dev.SetPitch(s.source, p); err != nil {
		return err
	}
	s.pitch = p
	return nil
}

func (s *Sound) SetLoop(loop bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	if err := s.ctx.dev.SetLooping(s.source, loop); err != nil {
		return err
	}
	s.loop = loop
	return nil
}

func (s *Sound) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return Stopped
	}
	return s.stateLocked()
}

// stateLocked maps the device source state; a source that stopped on its own
// after playing is Exhausted
func (s *Sound) stateLocked() State {
	state, err := s.ctx.dev.SourceState(s.source)
	if err != nil {
		return Errored
	}
	switch state {
	case device.SourcePlaying:
		return Playing
	case device.SourcePaused:
		return Paused
	default:
		if s.started {
			return Exhausted
		}
		return Stopped
	}
}

// PositionFrames returns the play cursor in frames
func (s *Sound) PositionFrames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return 0
	}
	switch s.stateLocked() {
	case Playing, Paused:
		offset, err := s.ctx.dev.SampleOffset(s.source)
		if err != nil {
			return 0
		}
		return offset
	case Exhausted:
		return s.data.frames
	default:
		if s.pending >= 0 {
			return s.pending
		}
		return 0
	}
}

func (s *Sound) Position() time.Duration {
	return s.data.format.FramesToDuration(s.PositionFrames())
}

func (s *Sound) Volume() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Sound) Pitch() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pitch
}

func (s *Sound) Looping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

// Destroy frees the device source and gives back the cache reference.
// Later calls return nil.
func (s *Sound) Destroy() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	from := s.stateLocked()
	dev := s.ctx.dev
	err := errors.Join(
		dev.Stop(s.source),
		dev.SetBuffer(s.source, 0),
		dev.DeleteSource(s.source),
	)
	s.destroyed = true
	s.emitLocked(EventDestroy, from)
	s.mu.Unlock()

	if rerr := s.ctx.cache.Release(s.data); rerr != nil {
		err = errors.Join(err, rerr)
	}
	s.ctx.forget(s)

	if err != nil {
		slog.Warn("sound destroy reported errors", "key", s.data.key, "error", err)
	}
	return err
}

func (s *Sound) emitLocked(kind EventKind, from State) {
	to := Stopped
	if !s.destroyed {
		to = s.stateLocked()
	}
	var position int64
	if to == Playing || to == Paused {
		position, _ = s.ctx.dev.SampleOffset(s.source)
	}
	emit(s.hooks, Event{
		Player:   "sound",
		Source:   s.data.key,
		Kind:     kind,
		From:     from,
		To:       to,
		Position: s.data.format.FramesToDuration(position),
	})
}
