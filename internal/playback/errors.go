package playback

import "errors"

// Usage errors are returned synchronously and never change playback state
var (
	ErrDestroyed             = errors.New("player has been destroyed")
	ErrOutOfRange            = errors.New("position out of range")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrInvalidState          = errors.New("operation not valid in current state")
	ErrContextNotInitialized = errors.New("playback context not initialized")
)

// IsUsageError reports whether err is a caller mistake rather than a source
// or device failure
func IsUsageError(err error) bool {
	return errors.Is(err, ErrDestroyed) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrContextNotInitialized)
}
