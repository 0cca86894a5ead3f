package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// SampleFormat describes how one sample is laid out in a PCM byte slice.
// All multi-byte formats are little endian and interleaved.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatU8
	FormatS16
	FormatS24
	FormatS32
	FormatF32
)

// String returns a short name for the sample format
func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the size of one sample, or 0 for an unknown format
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	default:
		return 0
	}
}

// Format describes decoded PCM audio
type Format struct {
	SampleRate   uint32       // Sample rate in Hz
	Channels     uint32       // Number of interleaved channels
	SampleFormat SampleFormat // Layout of a single sample
}

// BytesPerFrame returns the size of one frame (one sample for every channel)
func (f Format) BytesPerFrame() int {
	return int(f.Channels) * f.SampleFormat.BytesPerSample()
}

// Validate reports whether the format can be played
func (f Format) Validate() error {
	if f.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate is zero", ErrUnsupportedFormat)
	}
	if f.Channels == 0 {
		return fmt.Errorf("%w: channel count is zero", ErrUnsupportedFormat)
	}
	if f.SampleFormat.BytesPerSample() == 0 {
		return fmt.Errorf("%w: unknown sample format", ErrUnsupportedFormat)
	}
	return nil
}

// FramesToDuration converts a frame count to wall-clock duration
func (f Format) FramesToDuration(frames int64) time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// DurationToFrames converts a duration to a frame count, rounding down
func (f Format) DurationToFrames(d time.Duration) int64 {
	return int64(d) * int64(f.SampleRate) / int64(time.Second)
}

// Chunk is one bounded block of decoded PCM moved from a decoder to a device buffer.
// Frames is the true frame count; Data is never padded.
type Chunk struct {
	Data   []byte
	Frames int
	Format Format
}

// Duration returns how long the chunk plays at its own sample rate
func (c Chunk) Duration() time.Duration {
	return c.Format.FramesToDuration(int64(c.Frames))
}

// ToFloat32 converts interleaved PCM bytes to float32 samples in [-1, 1].
// dst must hold len(data)/BytesPerSample values. Returns the number of values written.
func ToFloat32(format SampleFormat, data []byte, dst []float32) int {
	size := format.BytesPerSample()
	if size == 0 {
		slog.Warn("cannot convert unknown sample format", "format", format)
		return 0
	}

	n := len(data) / size
	if n > len(dst) {
		n = len(dst)
	}

	for i := 0; i < n; i++ {
		b := data[i*size:]
		switch format {
		case FormatU8:
			dst[i] = (float32(b[0]) - 128) / 128
		case FormatS16:
			dst[i] = float32(int16(binary.LittleEndian.Uint16(b))) / 32768
		case FormatS24:
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			// Sign extend from 24-bit
			if v&0x800000 != 0 {
				v |= ^0xFFFFFF
			}
			dst[i] = float32(v) / 8388608
		case FormatS32:
			dst[i] = float32(float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648)
		case FormatF32:
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		}
	}

	return n
}

// PutFloat32LE writes samples as little-endian float32 bytes into p.
// p must be at least 4*len(samples) bytes long.
func PutFloat32LE(p []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
}

// PutInt16LE writes a clamped float sample as little-endian signed 16-bit
func PutInt16LE(p []byte, sample float64) {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	binary.LittleEndian.PutUint16(p, uint16(int16(sample*32767)))
}
