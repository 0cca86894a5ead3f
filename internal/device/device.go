package device

import (
	"errors"

	"aural.click/internal/audio"
)

// Device errors. Every failure returned by a Device wraps one of these.
var (
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrDeviceRejected    = errors.New("audio device rejected request")
	ErrInvalidHandle     = errors.New("invalid device handle")
)

// IsDeviceError reports whether err originated from the audio device
func IsDeviceError(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable) ||
		errors.Is(err, ErrDeviceRejected) ||
		errors.Is(err, ErrInvalidHandle)
}

// BufferID is an opaque handle to a device-side sample buffer
type BufferID uint32

// SourceID is an opaque handle to a device-side playback source
type SourceID uint32

// SourceState is the device-level state of a source
type SourceState int

const (
	SourceInitial SourceState = iota
	SourcePlaying
	SourcePaused
	SourceStopped
)

func (s SourceState) String() string {
	switch s {
	case SourceInitial:
		return "initial"
	case SourcePlaying:
		return "playing"
	case SourcePaused:
		return "paused"
	case SourceStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Device is a buffer-queue audio device. A source plays the buffers queued on it
// in FIFO order; a buffer is "processed" once fully played and can then be
// unqueued and refilled. All methods are safe for concurrent use and none of
// them waits for audio to play.
type Device interface {
	GenBuffers(n int) ([]BufferID, error)
	DeleteBuffers(ids ...BufferID) error

	// BufferData replaces the contents of a buffer. It fails with
	// ErrDeviceRejected while the buffer is queued on a source.
	BufferData(id BufferID, format audio.Format, data []byte) error

	GenSource() (SourceID, error)
	DeleteSource(id SourceID) error

	QueueBuffers(src SourceID, ids ...BufferID) error

	// UnqueueBuffers removes n processed buffers from the head of the queue
	UnqueueBuffers(src SourceID, n int) ([]BufferID, error)

	ProcessedCount(src SourceID) (int, error)
	QueuedCount(src SourceID) (int, error)

	// SetBuffer attaches a single static buffer to a stopped source.
	// A zero id detaches everything.
	SetBuffer(src SourceID, id BufferID) error

	Play(src SourceID) error
	Pause(src SourceID) error
	Stop(src SourceID) error
	SourceState(src SourceID) (SourceState, error)

	// SampleOffset reports frames played since the head of the current queue,
	// processed buffers included
	SampleOffset(src SourceID) (int64, error)
	SetSampleOffset(src SourceID, frame int64) error

	SetGain(src SourceID, gain float32) error
	SetPitch(src SourceID, pitch float32) error
	SetLooping(src SourceID, loop bool) error

	SetListener(l Listener)
	Listener() Listener
}
