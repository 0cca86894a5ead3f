package audio

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/wav"
)

// beepDecodeFunc matches the Decode functions of beep's format packages
type beepDecodeFunc func(r io.Reader) (beep.StreamSeekCloser, beep.Format, error)

// WavDecoder handles WAV audio format decoding
type WavDecoder struct{}

// NewWavDecoder creates a new WAV decoder instance
func NewWavDecoder() *WavDecoder {
	slog.Debug("creating new WAV decoder instance")
	return &WavDecoder{}
}

// Open parses the WAV header and returns a seekable PCM stream
func (d *WavDecoder) Open(r io.ReadSeeker) (Stream, error) {
	return openBeepStream("WAV", wav.Decode, r)
}

// CanDecode checks if this decoder can handle the given filename
func (d *WavDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")
}

// FormatName returns the name of the format this decoder handles
func (d *WavDecoder) FormatName() string {
	return "WAV"
}

// FlacDecoder handles FLAC audio format decoding
type FlacDecoder struct{}

// NewFlacDecoder creates a new FLAC decoder instance
func NewFlacDecoder() *FlacDecoder {
	slog.Debug("creating new FLAC decoder instance")
	return &FlacDecoder{}
}

// Open parses the FLAC stream info and returns a seekable PCM stream
func (d *FlacDecoder) Open(r io.ReadSeeker) (Stream, error) {
	return openBeepStream("FLAC", flac.Decode, r)
}

// CanDecode checks if this decoder can handle the given filename
func (d *FlacDecoder) CanDecode(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".flac")
}

// FormatName returns the name of the format this decoder handles
func (d *FlacDecoder) FormatName() string {
	return "FLAC"
}

func openBeepStream(name string, decode beepDecodeFunc, r io.ReadSeeker) (Stream, error) {
	slog.Debug("starting beep decode operation", "format", name)

	streamer, format, err := decode(r)
	if err != nil {
		slog.Error("failed to read stream header", "format", name, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, strings.ToLower(name), err)
	}

	if format.NumChannels < 1 || format.NumChannels > 2 || format.SampleRate <= 0 {
		streamer.Close()
		slog.Error("invalid stream format parameters",
			"format", name,
			"channels", format.NumChannels,
			"sample_rate", format.SampleRate)
		return nil, fmt.Errorf("%w: %s: %d channels at %d Hz",
			ErrUnsupportedFormat, strings.ToLower(name), format.NumChannels, format.SampleRate)
	}

	slog.Debug("stream format detected",
		"format", name,
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"precision", format.Precision,
		"frames", streamer.Len())

	return &beepStream{
		name:     name,
		streamer: streamer,
		// Everything is re-encoded as 16-bit regardless of the file's precision
		encoding: beep.Format{
			SampleRate:  format.SampleRate,
			NumChannels: format.NumChannels,
			Precision:   2,
		},
		format: Format{
			SampleRate:   uint32(format.SampleRate),
			Channels:     uint32(format.NumChannels),
			SampleFormat: FormatS16,
		},
	}, nil
}

// beepStream adapts a beep.StreamSeekCloser to Stream
type beepStream struct {
	name     string
	streamer beep.StreamSeekCloser
	encoding beep.Format
	format   Format
	scratch  [][2]float64
}

func (s *beepStream) Format() Format { return s.format }
func (s *beepStream) Len() int64     { return int64(s.streamer.Len()) }

func (s *beepStream) ReadFrames(p []byte) (int, error) {
	frameSize := s.format.BytesPerFrame()
	want := len(p) / frameSize
	if want == 0 {
		return 0, nil
	}

	if cap(s.scratch) < want {
		s.scratch = make([][2]float64, want)
	}
	samples := s.scratch[:want]

	n, ok := s.streamer.Stream(samples)
	for i := 0; i < n; i++ {
		s.encoding.EncodeSigned(p[i*frameSize:], samples[i])
	}

	if !ok {
		if err := s.streamer.Err(); err != nil {
			return n, classifyReadError(err)
		}
		return n, io.EOF
	}
	if n < want {
		// beep reports ok until a call returns nothing; treat a short read as
		// the tail so the final chunk is submitted with its true length
		if s.streamer.Position() >= s.streamer.Len() {
			return n, io.EOF
		}
	}
	return n, nil
}

func (s *beepStream) Seek(frame int64) error {
	if err := s.streamer.Seek(int(frame)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIO, strings.ToLower(s.name), err)
	}
	return nil
}

func (s *beepStream) Close() error {
	return s.streamer.Close()
}
