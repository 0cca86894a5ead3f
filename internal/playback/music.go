package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"aural.click/internal/audio"
)

// Opener turns a Source into a decoding stream. *audio.DecoderRegistry implements it.
type Opener interface {
	Open(src audio.Source) (audio.Stream, error)
}

// destroyTimeout bounds how long Destroy waits for the feed loop to exit
const destroyTimeout = 5 * time.Second

// Music streams a long source through a small rotating set of device buffers.
// A dedicated feed loop goroutine owns the device source and buffers; Music
// only sends it commands and reads the state it publishes.
type Music struct {
	ctx     *Context
	stream  *stream
	name    string
	format  audio.Format
	length  int64
	timeout time.Duration

	mu        sync.RWMutex
	destroyed bool
	once      sync.Once

	volume atomic.Uint32
	pitch  atomic.Uint32
	loop   atomic.Bool
}

// NewMusic opens src to learn its format and length and starts the feed loop.
// Playback does not begin until Play.
func NewMusic(ctx *Context, src audio.Source, opts ...Option) (*Music, error) {
	if ctx == nil || !ctx.initialized() {
		return nil, ErrContextNotInitialized
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidParameter)
	}

	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	decoder, err := ctx.opener.Open(src)
	if err != nil {
		slog.Error("failed to open music source", "source", src.Name(), "error", err)
		return nil, err
	}
	format := decoder.Format()

	dev := ctx.dev
	source, err := dev.GenSource()
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("create device source: %w", err)
	}
	pool, err := NewBufferPool(dev, source, o.bufferCount)
	if err != nil {
		decoder.Close()
		_ = dev.DeleteSource(source)
		return nil, err
	}
	if err := errors.Join(dev.SetGain(source, o.volume), dev.SetPitch(source, o.pitch)); err != nil {
		decoder.Close()
		_ = pool.Release()
		_ = dev.DeleteSource(source)
		return nil, err
	}

	tick := o.tick
	if tick == 0 {
		tick = defaultTick(o.chunkFrames, format.SampleRate)
	}

	s := &stream{
		name:     src.Name(),
		dev:      dev,
		opener:   ctx.opener,
		src:      src,
		format:   format,
		length:   decoder.Len(),
		tick:     tick,
		chunk:    o.chunkFrames,
		hooks:    append(ctx.hookList(), o.hooks...),
		commands: make(chan command, 64),
		done:     make(chan struct{}),
		source:   source,
		pool:     pool,
		decoder:  decoder,
		state:    Stopped,
		loop:     o.loop,
	}
	s.publish()

	m := &Music{
		ctx:     ctx,
		stream:  s,
		name:    src.Name(),
		format:  format,
		length:  s.length,
		timeout: o.playTimeout,
	}
	m.volume.Store(math.Float32bits(o.volume))
	m.pitch.Store(math.Float32bits(o.pitch))
	m.loop.Store(o.loop)

	if err := ctx.track(m); err != nil {
		decoder.Close()
		_ = pool.Release()
		_ = dev.DeleteSource(source)
		return nil, err
	}
	go s.run()

	slog.Info("music created",
		"source", m.name,
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"sample_format", format.SampleFormat,
		"frames", m.length,
		"buffers", o.bufferCount,
		"chunk_frames", o.chunkFrames,
		"tick", tick)

	return m, nil
}

// send delivers a command to the feed loop
func (m *Music) send(cmd command) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.destroyed {
		return ErrDestroyed
	}
	if cmd.kind == cmdStop || cmd.kind == cmdSeek {
		m.stream.generation.Add(1)
	}

	select {
	case m.stream.commands <- cmd:
		return nil
	case <-m.stream.done:
		return ErrDestroyed
	}
}

func (m *Music) snapshot() *snapshot {
	return m.stream.published.Load()
}

// Play starts or resumes playback. Starting from Stopped or Exhausted waits,
// up to the play timeout, until the device source is running.
func (m *Music) Play() error {
	snap := m.snapshot()
	if snap.state == Errored {
		return fmt.Errorf("%w: cannot play errored stream", ErrInvalidState)
	}

	ack := make(chan error, 1)
	if err := m.send(command{kind: cmdPlay, ack: ack}); err != nil {
		return err
	}
	if snap.state == Paused {
		return nil
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case err := <-ack:
		return err
	case <-timer.C:
		slog.Warn("play did not start within timeout", "source", m.name, "timeout", m.timeout)
		return nil
	case <-m.stream.done:
		return ErrDestroyed
	}
}

// Pause pauses playback; a later Play resumes at the same position
func (m *Music) Pause() error {
	if m.snapshot().state == Errored {
		return fmt.Errorf("%w: cannot pause errored stream", ErrInvalidState)
	}
	return m.send(command{kind: cmdPause})
}

// Resume is Play from Paused
func (m *Music) Resume() error {
	return m.Play()
}

// Stop stops playback and rewinds to frame 0. It is the only way, besides
// Destroy, out of Errored.
func (m *Music) Stop() error {
	return m.send(command{kind: cmdStop})
}

// Seek moves playback to frame. A playing stream keeps playing from there,
// a paused one stays paused.
func (m *Music) Seek(frame int64) error {
	if frame < 0 || (m.length >= 0 && frame > m.length) {
		return fmt.Errorf("%w: frame %d outside [0, %d]", ErrOutOfRange, frame, m.length)
	}
	if m.snapshot().state == Errored {
		return fmt.Errorf("%w: cannot seek errored stream", ErrInvalidState)
	}
	return m.send(command{kind: cmdSeek, frame: frame})
}

// SeekTime is Seek with a duration
func (m *Music) SeekTime(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative seek %s", ErrOutOfRange, d)
	}
	return m.Seek(m.format.DurationToFrames(d))
}

// SetLoop sets whether the stream restarts from frame 0 at its end
func (m *Music) SetLoop(loop bool) error {
	if err := m.send(command{kind: cmdSetLoop, flag: loop}); err != nil {
		return err
	}
	m.loop.Store(loop)
	return nil
}

// SetVolume sets the source gain; 1 is unity
func (m *Music) SetVolume(v float32) error {
	if err := validateVolume(v); err != nil {
		return err
	}
	if err := m.send(command{kind: cmdSetVolume, value: v}); err != nil {
		return err
	}
	m.volume.Store(math.Float32bits(v))
	return nil
}

// SetPitch sets the playback rate multiplier
func (m *Music) SetPitch(p float32) error {
	if err := validatePitch(p); err != nil {
		return err
	}
	if err := m.send(command{kind: cmdSetPitch, value: p}); err != nil {
		return err
	}
	m.pitch.Store(math.Float32bits(p))
	return nil
}

// State returns the last state published by the feed loop
func (m *Music) State() State { return m.snapshot().state }

// Err returns the reason for the Errored state, or nil
func (m *Music) Err() error { return m.snapshot().err }

// IsPlaying reports whether the state is Playing
func (m *Music) IsPlaying() bool { return m.State() == Playing }

// PositionFrames returns the playback position in frames
func (m *Music) PositionFrames() int64 { return m.snapshot().position }

// Position returns the playback position as a duration
func (m *Music) Position() time.Duration {
	return m.format.FramesToDuration(m.PositionFrames())
}

// Len returns the source length in frames, or -1 when unknown
func (m *Music) Len() int64 { return m.length }

// Duration returns the source length, or 0 when unknown
func (m *Music) Duration() time.Duration {
	if m.length < 0 {
		return 0
	}
	return m.format.FramesToDuration(m.length)
}

// Format returns the decoded PCM format
func (m *Music) Format() audio.Format { return m.format }

// Name returns the source name
func (m *Music) Name() string { return m.name }

func (m *Music) Volume() float32 { return math.Float32frombits(m.volume.Load()) }
func (m *Music) Pitch() float32  { return math.Float32frombits(m.pitch.Load()) }
func (m *Music) Looping() bool   { return m.loop.Load() }

// Stats describes buffer usage of a stream
type Stats struct {
	Queued    int
	Free      int
	Submitted int64 // chunks submitted since creation
}

// Stats returns buffer usage as last published by the feed loop
func (m *Music) Stats() Stats {
	snap := m.snapshot()
	return Stats{Queued: snap.queued, Free: snap.free, Submitted: snap.submitted}
}

// Destroy stops playback, releases every device handle and ends the feed
// loop. It is safe to call more than once and from any state.
func (m *Music) Destroy() error {
	var err error
	m.once.Do(func() {
		m.mu.Lock()
		m.destroyed = true
		m.stream.generation.Add(1)
		m.mu.Unlock()

		// The worker is the only reader; it exits after this command
		select {
		case m.stream.commands <- command{kind: cmdDestroy}:
		case <-m.stream.done:
		}

		select {
		case <-m.stream.done:
		case <-time.After(destroyTimeout):
			err = fmt.Errorf("feed loop did not exit within %s", destroyTimeout)
			slog.Error("music destroy timed out", "source", m.name, "timeout", destroyTimeout)
		}

		m.ctx.forget(m)
		slog.Debug("music destroyed", "source", m.name)
	})
	return err
}
