package audio

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jfreymuth/oggvorbis"
)

// VorbisDecoder handles Ogg Vorbis audio format decoding
type VorbisDecoder struct{}

// NewVorbisDecoder creates a new Ogg Vorbis decoder instance
func NewVorbisDecoder() *VorbisDecoder {
	slog.Debug("creating new Ogg Vorbis decoder instance")
	return &VorbisDecoder{}
}

// Open parses the Ogg headers and returns a seekable float32 stream
func (d *VorbisDecoder) Open(r io.ReadSeeker) (Stream, error) {
	slog.Debug("starting Ogg Vorbis decode operation")

	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		slog.Error("failed to create Ogg Vorbis reader", "error", err)
		return nil, fmt.Errorf("%w: ogg: %v", ErrUnsupportedFormat, err)
	}

	if reader.Channels() <= 0 || reader.SampleRate() <= 0 {
		return nil, fmt.Errorf("%w: ogg: %d channels at %d Hz",
			ErrUnsupportedFormat, reader.Channels(), reader.SampleRate())
	}

	// Length is only known when the reader can seek to the last page
	frames := reader.Length()
	if frames <= 0 {
		frames = -1
	}

	slog.Debug("Ogg Vorbis format detected",
		"sample_rate", reader.SampleRate(),
		"channels", reader.Channels(),
		"frames", frames)

	return &vorbisStream{
		reader: reader,
		closer: asCloser(r),
		frames: frames,
		format: Format{
			SampleRate:   uint32(reader.SampleRate()),
			Channels:     uint32(reader.Channels()),
			SampleFormat: FormatF32,
		},
	}, nil
}

// CanDecode checks if this decoder can handle the given filename
func (d *VorbisDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".ogg") || strings.HasSuffix(lower, ".oga")
}

// FormatName returns the name of the format this decoder handles
func (d *VorbisDecoder) FormatName() string {
	return "OGG"
}

type vorbisStream struct {
	reader  *oggvorbis.Reader
	closer  io.Closer
	frames  int64
	format  Format
	scratch []float32
}

func (s *vorbisStream) Format() Format { return s.format }
func (s *vorbisStream) Len() int64     { return s.frames }

func (s *vorbisStream) ReadFrames(p []byte) (int, error) {
	channels := int(s.format.Channels)
	want := len(p) / s.format.BytesPerFrame()
	if want == 0 {
		return 0, nil
	}

	if cap(s.scratch) < want*channels {
		s.scratch = make([]float32, want*channels)
	}

	// Read returns interleaved values; keep reading until whole frames fill the request
	values := 0
	var err error
	for values < want*channels {
		var n int
		n, err = s.reader.Read(s.scratch[values : want*channels])
		values += n
		if err != nil || n == 0 {
			break
		}
	}

	frames := values / channels
	PutFloat32LE(p, s.scratch[:frames*channels])

	switch {
	case err == nil:
		if frames == 0 {
			return 0, io.EOF
		}
		return frames, nil
	case err == io.EOF:
		return frames, io.EOF
	default:
		return frames, classifyReadError(err)
	}
}

func (s *vorbisStream) Seek(frame int64) error {
	if err := s.reader.SetPosition(frame); err != nil {
		return fmt.Errorf("%w: ogg: %v", ErrIO, err)
	}
	return nil
}

func (s *vorbisStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
