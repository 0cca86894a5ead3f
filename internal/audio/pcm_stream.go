package audio

import (
	"fmt"
	"io"
)

// pcmStream serves frames from fully decoded audio
type pcmStream struct {
	data *AudioData
	pos  int64
}

// NewPCMStream returns a Stream over already decoded samples. The samples are
// shared, not copied, so several streams may read the same AudioData.
func NewPCMStream(data *AudioData) Stream {
	return &pcmStream{data: data}
}

func (s *pcmStream) Format() Format { return s.data.Format }
func (s *pcmStream) Len() int64     { return s.data.Frames }

func (s *pcmStream) ReadFrames(p []byte) (int, error) {
	frameSize := s.data.Format.BytesPerFrame()
	remaining := s.data.Frames - s.pos
	if remaining <= 0 {
		return 0, io.EOF
	}

	want := int64(len(p) / frameSize)
	if want > remaining {
		want = remaining
	}

	start := s.pos * int64(frameSize)
	copy(p, s.data.Samples[start:start+want*int64(frameSize)])
	s.pos += want

	if s.pos >= s.data.Frames {
		return int(want), io.EOF
	}
	return int(want), nil
}

func (s *pcmStream) Seek(frame int64) error {
	if frame < 0 || frame > s.data.Frames {
		return fmt.Errorf("%w: seek to frame %d outside [0, %d]", ErrIO, frame, s.data.Frames)
	}
	s.pos = frame
	return nil
}

func (s *pcmStream) Close() error { return nil }
