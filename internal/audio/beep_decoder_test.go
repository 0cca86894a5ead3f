package audio

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWavDecoderCanDecode(t *testing.T) {
	decoder := NewWavDecoder()

	var _ Decoder = decoder
	if decoder.FormatName() != "WAV" {
		t.Errorf("expected format name 'WAV', got '%s'", decoder.FormatName())
	}

	testCases := []struct {
		filename string
		expected bool
	}{
		{"audio.wav", true},
		{"sound.WAV", true},
		{"music.wave", true},
		{"audio.mp3", false},
		{"", false},
		{"wav", false},
		{"audio.wav.backup", false},
	}

	for _, tc := range testCases {
		if got := decoder.CanDecode(tc.filename); got != tc.expected {
			t.Errorf("CanDecode('%s') = %v, expected %v", tc.filename, got, tc.expected)
		}
	}
}

func TestWavDecoderStream(t *testing.T) {
	const frames = 1500
	stream, err := NewWavDecoder().Open(bytes.NewReader(makeWAV(t, frames, 2, 22050)))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	want := Format{SampleRate: 22050, Channels: 2, SampleFormat: FormatS16}
	if stream.Format() != want {
		t.Errorf("expected format %+v, got %+v", want, stream.Format())
	}
	if stream.Len() != frames {
		t.Errorf("expected %d frames, got %d", frames, stream.Len())
	}

	buf := make([]byte, 1000*4)
	n, err := stream.ReadFrames(buf)
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	if n != 1000 {
		t.Fatalf("expected 1000 frames, got %d", n)
	}
	checkS16(t, buf, 0, n, 2, 1)

	// The final chunk is short and carries io.EOF
	n, err = stream.ReadFrames(buf)
	if n != 500 {
		t.Errorf("expected 500 frames in final read, got %d", n)
	}
	if err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	checkS16(t, buf, 1000, n, 2, 1)

	if err := stream.Seek(1200); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	n, _ = stream.ReadFrames(buf[:100*4])
	if n != 100 {
		t.Fatalf("expected 100 frames after seek, got %d", n)
	}
	checkS16(t, buf, 1200, n, 2, 1)
}

func TestWavDecoderRejectsInvalidData(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"not a wav", []byte("not a wav file at all")},
		{"truncated header", []byte("RIFF\x24\x00\x00\x00WAVE")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stream, err := NewWavDecoder().Open(bytes.NewReader(tc.data))
			if err == nil {
				stream.Close()
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("expected ErrUnsupportedFormat, got %v", err)
			}
		})
	}
}

func TestFlacDecoderCanDecode(t *testing.T) {
	decoder := NewFlacDecoder()

	if decoder.FormatName() != "FLAC" {
		t.Errorf("expected format name 'FLAC', got '%s'", decoder.FormatName())
	}
	if !decoder.CanDecode("track.FLAC") {
		t.Error("expected .FLAC to be accepted")
	}
	if decoder.CanDecode("track.wav") {
		t.Error("expected .wav to be rejected")
	}

	_, err := decoder.Open(bytes.NewReader([]byte("fLaC")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat for truncated FLAC, got %v", err)
	}
}
