package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/spf13/afero"
	"github.com/youpy/go-wav"
)

// testSample is the 16-bit value stored for frame i, channel c in fixtures
func testSample(i, c int) int {
	return (i*7 + c*1000) % 20000
}

// makeWAV builds a 16-bit PCM WAV file
func makeWAV(t *testing.T, frames, channels int, sampleRate uint32) []byte {
	t.Helper()

	var buf bytes.Buffer
	writer := wav.NewWriter(&buf, uint32(frames), uint16(channels), sampleRate, 16)

	samples := make([]wav.Sample, frames)
	for i := range samples {
		for c := 0; c < channels; c++ {
			samples[i].Values[c] = testSample(i, c)
		}
	}
	if err := writer.WriteSamples(samples); err != nil {
		t.Fatalf("failed to write WAV fixture: %v", err)
	}
	return buf.Bytes()
}

// makeAIFF builds an AIFF file through an in-memory filesystem, since
// the encoder needs to seek back and patch its header
func makeAIFF(t *testing.T, frames, channels, sampleRate, bitDepth int) []byte {
	t.Helper()

	fs := afero.NewMemMapFs()
	f, err := fs.Create("fixture.aiff")
	if err != nil {
		t.Fatalf("failed to create AIFF fixture: %v", err)
	}

	data := make([]int, 0, frames*channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			data = append(data, testSample(i, c))
		}
	}

	enc := aiff.NewEncoder(f, sampleRate, bitDepth, channels)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("failed to encode AIFF fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to finish AIFF fixture: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close AIFF fixture: %v", err)
	}

	out, err := afero.ReadFile(fs, "fixture.aiff")
	if err != nil {
		t.Fatalf("failed to read AIFF fixture: %v", err)
	}
	return out
}

// checkS16 verifies decoded 16-bit PCM against testSample. Decoders that go
// through float samples may be off by one step.
func checkS16(t *testing.T, data []byte, firstFrame, frames, channels, tolerance int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			got := int(int16(binary.LittleEndian.Uint16(data[off:])))
			want := testSample(firstFrame+i, c)
			if got < want-tolerance || got > want+tolerance {
				t.Fatalf("frame %d channel %d: got %d, want %d", firstFrame+i, c, got, want)
			}
		}
	}
}
