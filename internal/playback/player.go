package playback

import (
	"fmt"
	"math"
	"time"
)

// Player is the control surface shared by streamed Music and buffered Sound
type Player interface {
	Play() error
	Pause() error
	Stop() error
	Seek(frame int64) error
	SetVolume(v float32) error
	SetPitch(p float32) error
	SetLoop(loop bool) error
	State() State
	Position() time.Duration
	Destroy() error
}

var (
	_ Player = (*Music)(nil)
	_ Player = (*Sound)(nil)
)

func validateVolume(v float32) error {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) || v < 0 {
		return fmt.Errorf("%w: volume %v must be a finite value >= 0", ErrInvalidParameter, v)
	}
	return nil
}

func validatePitch(p float32) error {
	f := float64(p)
	if math.IsNaN(f) || math.IsInf(f, 0) || p <= 0 {
		return fmt.Errorf("%w: pitch %v must be a finite value > 0", ErrInvalidParameter, p)
	}
	return nil
}
