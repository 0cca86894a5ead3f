package device

import (
	"errors"
	"time"
)

// Output errors
var (
	ErrOutputClosed       = errors.New("audio output is closed")
	ErrInvalidBackendType = errors.New("invalid backend type")
)

// Output drives a Renderer from a hardware (or simulated) audio clock
type Output interface {
	Name() string
	Start() error
	Stop() error
	Close() error
}

// OutputConfig describes the stream an output opens
type OutputConfig struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// DefaultOutputConfig returns 44.1 kHz stereo with ~23ms periods
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		SampleRate:      44100,
		Channels:        2,
		FramesPerBuffer: 1024,
	}
}

func (c OutputConfig) withDefaults() OutputConfig {
	def := DefaultOutputConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = def.Channels
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = def.FramesPerBuffer
	}
	return c
}

// Period returns the wall-clock length of one output buffer
func (c OutputConfig) Period() time.Duration {
	c = c.withDefaults()
	return time.Duration(c.FramesPerBuffer) * time.Second / time.Duration(c.SampleRate)
}
