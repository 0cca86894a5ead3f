package audio

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces 16-bit signed stereo
const mp3BytesPerFrame = 4

// Mp3Decoder handles MP3 audio format decoding
type Mp3Decoder struct{}

// NewMp3Decoder creates a new MP3 decoder instance
func NewMp3Decoder() *Mp3Decoder {
	slog.Debug("creating new MP3 decoder instance")
	return &Mp3Decoder{}
}

// Open parses the MP3 stream and returns a seekable PCM stream
func (d *Mp3Decoder) Open(r io.ReadSeeker) (Stream, error) {
	slog.Debug("starting MP3 decode operation")

	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		slog.Error("failed to create MP3 decoder", "error", err)
		return nil, fmt.Errorf("%w: mp3: %v", ErrUnsupportedFormat, err)
	}

	sampleRate := decoder.SampleRate()
	if sampleRate <= 0 {
		slog.Error("invalid MP3 sample rate", "sample_rate", sampleRate)
		return nil, fmt.Errorf("%w: mp3: invalid sample rate %d", ErrUnsupportedFormat, sampleRate)
	}

	frames := int64(-1)
	if length := decoder.Length(); length >= 0 {
		frames = length / mp3BytesPerFrame
	}

	slog.Debug("MP3 format detected",
		"sample_rate", sampleRate,
		"channels", 2,
		"frames", frames)

	return &mp3Stream{
		dec:    decoder,
		closer: asCloser(r),
		frames: frames,
		format: Format{
			SampleRate:   uint32(sampleRate),
			Channels:     2,
			SampleFormat: FormatS16,
		},
	}, nil
}

// CanDecode checks if this decoder can handle the given filename
func (d *Mp3Decoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".mp3") || strings.HasSuffix(lower, ".mpeg")
}

// FormatName returns the name of the format this decoder handles
func (d *Mp3Decoder) FormatName() string {
	return "MP3"
}

type mp3Stream struct {
	dec    *mp3.Decoder
	closer io.Closer
	frames int64
	format Format
}

func (s *mp3Stream) Format() Format { return s.format }
func (s *mp3Stream) Len() int64     { return s.frames }

func (s *mp3Stream) ReadFrames(p []byte) (int, error) {
	want := len(p) / mp3BytesPerFrame * mp3BytesPerFrame
	if want == 0 {
		return 0, nil
	}

	n, err := io.ReadFull(s.dec, p[:want])
	frames := n / mp3BytesPerFrame
	switch {
	case err == nil:
		return frames, nil
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		// A short read at the tail is the normal end of an MP3 stream
		return frames, io.EOF
	default:
		return frames, classifyReadError(err)
	}
}

func (s *mp3Stream) Seek(frame int64) error {
	if frame < 0 || (s.frames >= 0 && frame > s.frames) {
		return fmt.Errorf("%w: mp3: seek to frame %d outside [0, %d]", ErrIO, frame, s.frames)
	}
	if _, err := s.dec.Seek(frame*mp3BytesPerFrame, io.SeekStart); err != nil {
		return classifyReadError(err)
	}
	return nil
}

func (s *mp3Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// asCloser returns r as an io.Closer when it has a Close method
func asCloser(r io.Reader) io.Closer {
	if c, ok := r.(io.Closer); ok {
		return c
	}
	return nil
}
