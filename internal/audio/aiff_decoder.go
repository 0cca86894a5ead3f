package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
)

// AiffDecoder handles AIFF audio format decoding
type AiffDecoder struct{}

// NewAiffDecoder creates a new AIFF decoder instance
func NewAiffDecoder() *AiffDecoder {
	slog.Debug("creating new AIFF decoder instance")
	return &AiffDecoder{}
}

// FormatName returns the name of the format this decoder handles
func (d *AiffDecoder) FormatName() string {
	return "AIFF"
}

// CanDecode checks if this decoder can handle the given filename
func (d *AiffDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	canDecode := strings.HasSuffix(lower, ".aiff") || strings.HasSuffix(lower, ".aif")

	slog.Debug("AIFF decoder file check",
		"filename", filename,
		"can_decode", canDecode)

	return canDecode
}

// Open decodes the whole AIFF file and returns a stream over the PCM in memory.
// go-audio/aiff has no incremental seek, and AIFF files in practice are short
// sound effects.
func (d *AiffDecoder) Open(r io.ReadSeeker) (Stream, error) {
	slog.Debug("starting AIFF decode operation")

	if closer := asCloser(r); closer != nil {
		defer closer.Close()
	}

	decoder := aiff.NewDecoder(r)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		slog.Error("invalid AIFF file format", "error", decoder.Err())
		return nil, fmt.Errorf("%w: aiff: invalid file", ErrUnsupportedFormat)
	}

	sampleRate := uint32(decoder.SampleRate)
	channels := uint32(decoder.NumChans)
	bitDepth := decoder.SampleBitDepth()

	slog.Debug("AIFF format detected",
		"sample_rate", sampleRate,
		"channels", channels,
		"bits_per_sample", bitDepth)

	if channels == 0 || sampleRate == 0 {
		return nil, fmt.Errorf("%w: aiff: %d channels at %d Hz", ErrUnsupportedFormat, channels, sampleRate)
	}

	var sampleFormat SampleFormat
	switch bitDepth {
	case 16:
		sampleFormat = FormatS16
	case 24:
		sampleFormat = FormatS24
	case 32:
		sampleFormat = FormatS32
	default:
		slog.Error("unsupported bit depth", "bits", bitDepth)
		return nil, fmt.Errorf("%w: aiff: %d-bit samples", ErrUnsupportedFormat, bitDepth)
	}

	pcmBuffer, err := decoder.FullPCMBuffer()
	if err != nil {
		slog.Error("failed to read AIFF samples", "error", err)
		return nil, classifyReadError(err)
	}
	if pcmBuffer == nil {
		return nil, fmt.Errorf("%w: aiff: no sound data", ErrTruncated)
	}

	format := Format{SampleRate: sampleRate, Channels: channels, SampleFormat: sampleFormat}
	raw := encodeIntBuffer(pcmBuffer, sampleFormat)

	slog.Debug("AIFF samples read successfully",
		"total_samples", len(pcmBuffer.Data),
		"total_bytes", len(raw))

	return NewPCMStream(&AudioData{
		Samples: raw,
		Frames:  int64(len(raw) / format.BytesPerFrame()),
		Format:  format,
	}), nil
}

// encodeIntBuffer packs go-audio integer samples as little-endian PCM
func encodeIntBuffer(buf *goaudio.IntBuffer, sampleFormat SampleFormat) []byte {
	width := sampleFormat.BytesPerSample()
	out := make([]byte, len(buf.Data)*width)
	for i, sample := range buf.Data {
		p := out[i*width:]
		switch sampleFormat {
		case FormatS16:
			binary.LittleEndian.PutUint16(p, uint16(int16(sample)))
		case FormatS24:
			v := int32(sample)
			p[0], p[1], p[2] = byte(v), byte(v>>8), byte(v>>16)
		case FormatS32:
			binary.LittleEndian.PutUint32(p, uint32(int32(sample)))
		}
	}
	return out
}
