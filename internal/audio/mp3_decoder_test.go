package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestMp3DecoderCanDecode(t *testing.T) {
	decoder := NewMp3Decoder()

	var _ Decoder = decoder
	if decoder.FormatName() != "MP3" {
		t.Errorf("expected format name 'MP3', got '%s'", decoder.FormatName())
	}

	testCases := []struct {
		filename string
		expected bool
	}{
		{"audio.mp3", true},
		{"sound.MP3", true},
		{"music.mpeg", true},
		{"audio.wav", false},
		{"", false},
		{"mp3", false},
		{"audio.mp3.backup", false},
	}

	for _, tc := range testCases {
		if got := decoder.CanDecode(tc.filename); got != tc.expected {
			t.Errorf("CanDecode('%s') = %v, expected %v", tc.filename, got, tc.expected)
		}
	}
}

func TestMp3DecoderRejectsInvalidData(t *testing.T) {
	decoder := NewMp3Decoder()

	for name, data := range map[string][]byte{
		"empty":   {},
		"garbage": []byte("not an mp3 file"),
	} {
		t.Run(name, func(t *testing.T) {
			stream, err := decoder.Open(bytes.NewReader(data))
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

func TestVorbisDecoderCanDecode(t *testing.T) {
	decoder := NewVorbisDecoder()

	var _ Decoder = decoder
	if decoder.FormatName() != "OGG" {
		t.Errorf("expected format name 'OGG', got '%s'", decoder.FormatName())
	}
	if !decoder.CanDecode("theme.ogg") || !decoder.CanDecode("THEME.OGG") {
		t.Error("expected .ogg to be accepted")
	}
	if decoder.CanDecode("theme.mp3") {
		t.Error("expected .mp3 to be rejected")
	}

	_, err := decoder.Open(bytes.NewReader([]byte("OggS not really")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}
