package audio

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DecoderRegistry manages audio format decoders and provides format detection
type DecoderRegistry struct {
	decoders []Decoder
}

// NewDecoderRegistry creates a new empty decoder registry
func NewDecoderRegistry() *DecoderRegistry {
	slog.Debug("creating new decoder registry")
	return &DecoderRegistry{
		decoders: make([]Decoder, 0),
	}
}

// NewDefaultRegistry creates a registry with every built-in decoder
func NewDefaultRegistry() *DecoderRegistry {
	registry := NewDecoderRegistry()

	registry.Register(NewWavDecoder())
	registry.Register(NewMp3Decoder())
	registry.Register(NewVorbisDecoder())
	registry.Register(NewFlacDecoder())
	registry.Register(NewAiffDecoder())

	slog.Debug("default decoder registry initialized",
		"supported_formats", registry.GetSupportedFormats())

	return registry
}

// Register adds a decoder to the registry
func (r *DecoderRegistry) Register(decoder Decoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}

	r.decoders = append(r.decoders, decoder)

	slog.Debug("decoder registered",
		"format", decoder.FormatName(),
		"total_decoders", len(r.decoders))
}

// GetDecoders returns all registered decoders
func (r *DecoderRegistry) GetDecoders() []Decoder {
	return r.decoders
}

// GetSupportedFormats returns a list of all supported format names
func (r *DecoderRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		formats = append(formats, decoder.FormatName())
	}
	return formats
}

// DetectFormat detects the appropriate decoder based on filename extension only
func (r *DecoderRegistry) DetectFormat(filename string) Decoder {
	if filename == "" {
		return nil
	}

	// First registered has priority
	for _, decoder := range r.decoders {
		if decoder.CanDecode(filename) {
			slog.Debug("format detected by extension",
				"filename", filename,
				"format", decoder.FormatName())
			return decoder
		}
	}

	slog.Debug("no decoder found for filename", "filename", filename)
	return nil
}

// DetectFormatWithContent detects format using magic bytes first, falling back
// to the extension. The reader is rewound to its start before returning.
func (r *DecoderRegistry) DetectFormatWithContent(filename string, reader io.ReadSeeker) Decoder {
	buffer := make([]byte, 3072)
	n, err := io.ReadFull(reader, buffer)
	if _, seekErr := reader.Seek(0, io.SeekStart); seekErr != nil {
		slog.Error("failed to rewind after magic detection", "filename", filename, "error", seekErr)
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		slog.Error("failed to read header for magic detection", "filename", filename, "error", err)
		return r.DetectFormat(filename)
	}
	if n == 0 {
		slog.Debug("empty content, using extension fallback")
		return r.DetectFormat(filename)
	}

	detectedMime := mimetype.Detect(buffer[:n]).String()
	mimeStr := strings.ToLower(detectedMime)

	slog.Debug("magic byte detection result",
		"filename", filename,
		"detected_mime", detectedMime,
		"bytes_analyzed", n)

	var formatDecoder Decoder
	switch {
	case strings.Contains(mimeStr, "wav") || mimeStr == "audio/vnd.wave":
		formatDecoder = r.findDecoderByFormat("WAV")
	case strings.Contains(mimeStr, "mpeg") || strings.Contains(mimeStr, "mp3"):
		formatDecoder = r.findDecoderByFormat("MP3")
	case strings.Contains(mimeStr, "ogg"):
		formatDecoder = r.findDecoderByFormat("OGG")
	case strings.Contains(mimeStr, "flac"):
		formatDecoder = r.findDecoderByFormat("FLAC")
	case strings.Contains(mimeStr, "aiff"):
		formatDecoder = r.findDecoderByFormat("AIFF")
	}

	if formatDecoder != nil {
		slog.Debug("format detected by magic bytes",
			"filename", filename,
			"detected_format", formatDecoder.FormatName(),
			"mime_type", detectedMime)
		return formatDecoder
	}

	return r.DetectFormat(filename)
}

// findDecoderByFormat finds a decoder by its format name
func (r *DecoderRegistry) findDecoderByFormat(formatName string) Decoder {
	for _, decoder := range r.decoders {
		if strings.EqualFold(decoder.FormatName(), formatName) {
			return decoder
		}
	}
	return nil
}

// Open opens src and returns a stream positioned at frame 0. The stream owns
// the reader obtained from the source and closes it on Close.
func (r *DecoderRegistry) Open(src Source) (Stream, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrIO)
	}
	name := src.Name()

	reader, err := src.Open()
	if err != nil {
		slog.Error("failed to open source", "source", name, "error", err)
		if IsSourceError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrIO, name, err)
	}

	decoder := r.DetectFormatWithContent(name, reader)
	if decoder == nil {
		reader.Close()
		slog.Error("no suitable decoder found", "source", name)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	stream, err := decoder.Open(reader)
	if err != nil {
		reader.Close()
		slog.Error("decoder failed to open stream",
			"source", name,
			"decoder_format", decoder.FormatName(),
			"error", err)
		return nil, err
	}

	format := stream.Format()
	if err := format.Validate(); err != nil {
		stream.Close()
		return nil, err
	}

	slog.Debug("stream opened",
		"source", name,
		"decoder_format", decoder.FormatName(),
		"channels", format.Channels,
		"sample_rate", format.SampleRate,
		"sample_format", format.SampleFormat,
		"frames", stream.Len())

	return stream, nil
}

// DecodeSource fully decodes src into memory
func (r *DecoderRegistry) DecodeSource(src Source) (*AudioData, error) {
	stream, err := r.Open(src)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := DecodeAll(stream)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", src.Name(), err)
	}
	return data, nil
}
