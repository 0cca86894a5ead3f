package playback

import (
	"fmt"
	"time"
)

const (
	DefaultBufferCount = 3
	MinBufferCount     = 2
	MaxBufferCount     = 8
	DefaultChunkFrames = 4096
	DefaultPlayTimeout = 2 * time.Second

	minTick = 5 * time.Millisecond
	maxTick = 100 * time.Millisecond
)

type options struct {
	bufferCount int
	chunkFrames int
	tick        time.Duration
	loop        bool
	volume      float32
	pitch       float32
	playTimeout time.Duration
	hooks       []Hook
}

// Option configures a Music or Sound
type Option func(*options)

// WithBufferCount sets how many device buffers a stream rotates through
func WithBufferCount(n int) Option {
	return func(o *options) { o.bufferCount = n }
}

// WithChunkFrames sets the maximum number of frames decoded per buffer
func WithChunkFrames(n int) Option {
	return func(o *options) { o.chunkFrames = n }
}

// WithTick overrides the feed loop period
func WithTick(d time.Duration) Option {
	return func(o *options) { o.tick = d }
}

// WithLoop sets the initial loop flag
func WithLoop(loop bool) Option {
	return func(o *options) { o.loop = loop }
}

// WithVolume sets the initial gain
func WithVolume(v float32) Option {
	return func(o *options) { o.volume = v }
}

// WithPitch sets the initial pitch multiplier
func WithPitch(p float32) Option {
	return func(o *options) { o.pitch = p }
}

// WithPlayTimeout bounds how long the first Play waits for the device to start
func WithPlayTimeout(d time.Duration) Option {
	return func(o *options) { o.playTimeout = d }
}

// WithHook registers a hook for state transitions
func WithHook(h Hook) Option {
	return func(o *options) {
		if h != nil {
			o.hooks = append(o.hooks, h)
		}
	}
}

func buildOptions(opts []Option) (options, error) {
	o := options{
		bufferCount: DefaultBufferCount,
		chunkFrames: DefaultChunkFrames,
		volume:      1,
		pitch:       1,
		playTimeout: DefaultPlayTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.bufferCount < MinBufferCount || o.bufferCount > MaxBufferCount {
		return o, fmt.Errorf("%w: buffer count %d outside [%d, %d]",
			ErrInvalidParameter, o.bufferCount, MinBufferCount, MaxBufferCount)
	}
	if o.chunkFrames <= 0 {
		return o, fmt.Errorf("%w: chunk frames %d", ErrInvalidParameter, o.chunkFrames)
	}
	if o.tick < 0 {
		return o, fmt.Errorf("%w: tick %s", ErrInvalidParameter, o.tick)
	}
	if o.playTimeout <= 0 {
		return o, fmt.Errorf("%w: play timeout %s", ErrInvalidParameter, o.playTimeout)
	}
	if err := validateVolume(o.volume); err != nil {
		return o, err
	}
	if err := validatePitch(o.pitch); err != nil {
		return o, err
	}
	return o, nil
}

// defaultTick is half a chunk's playing time, clamped to [5ms, 100ms]
func defaultTick(chunkFrames int, sampleRate uint32) time.Duration {
	if sampleRate == 0 {
		return maxTick
	}
	tick := time.Duration(chunkFrames) * time.Second / time.Duration(sampleRate) / 2
	if tick < minTick {
		return minTick
	}
	if tick > maxTick {
		return maxTick
	}
	return tick
}
