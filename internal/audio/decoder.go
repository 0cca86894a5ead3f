package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Common decoder errors. Every decoder failure wraps one of these.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrTruncated         = errors.New("truncated audio data")
	ErrIO                = errors.New("audio source I/O error")
)

// IsSourceError reports whether err came from opening, seeking or reading a source
func IsSourceError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrTruncated) ||
		errors.Is(err, ErrIO)
}

// AudioData represents fully decoded audio
type AudioData struct {
	Samples []byte // Raw interleaved PCM data
	Frames  int64  // Number of frames in Samples
	Format  Format
}

// Stream is an open decoder handle that yields PCM frames incrementally
type Stream interface {
	// Format describes the PCM produced by ReadFrames
	Format() Format

	// Len returns the total number of frames, or -1 when the length is unknown
	Len() int64

	// ReadFrames decodes up to len(p)/Format().BytesPerFrame() frames into p and
	// returns the number of whole frames written. At the end of the stream it
	// returns io.EOF, possibly together with a final partial read.
	ReadFrames(p []byte) (int, error)

	// Seek moves the read position to the given frame
	Seek(frame int64) error

	// Close releases decoder state and the underlying reader
	Close() error
}

// Decoder opens a Stream over encoded audio bytes
type Decoder interface {
	// Open parses the header in r and returns a stream positioned at frame 0
	Open(r io.ReadSeeker) (Stream, error)

	// CanDecode checks if this decoder can handle the given filename
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}

// classifyReadError maps low-level read failures onto the decoder error kinds
func classifyReadError(err error) error {
	switch {
	case err == nil, err == io.EOF:
		return err
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	case IsSourceError(err):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
}

// DecodeAll reads a stream from its current position to the end
func DecodeAll(stream Stream) (*AudioData, error) {
	format := stream.Format()
	frameSize := format.BytesPerFrame()
	if frameSize == 0 {
		return nil, fmt.Errorf("%w: zero-sized frames", ErrUnsupportedFormat)
	}

	var samples []byte
	if n := stream.Len(); n > 0 {
		samples = make([]byte, 0, int(n)*frameSize)
	}

	buf := make([]byte, 4096*frameSize)
	var frames int64
	for {
		n, err := stream.ReadFrames(buf)
		if n > 0 {
			samples = append(samples, buf[:n*frameSize]...)
			frames += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Error("failed to decode audio", "error", err, "frames_read", frames)
			return nil, err
		}
	}

	slog.Debug("full decode completed",
		"frames", frames,
		"bytes", len(samples),
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"format", format.SampleFormat)

	return &AudioData{
		Samples: samples,
		Frames:  frames,
		Format:  format,
	}, nil
}
