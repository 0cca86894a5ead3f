//go:build !cgo

package device

import "errors"

var errCGORequired = errors.New(`aural requires CGO support for hardware audio output.

This error occurs when trying to open a malgo, oto or portaudio output in a
binary built without CGO. The headless backend still works.

To fix this issue:
1. Ensure CGO_ENABLED=1 (this is the default for native builds)
2. Install a C compiler:
   - Linux: sudo apt-get install build-essential libasound2-dev portaudio19-dev
   - macOS: xcode-select --install
   - Windows: Install MinGW or Visual Studio Build Tools
3. Then run: go install aural.click/cmd/aural`)

func newMalgoOutput(Renderer, OutputConfig) (Output, error) {
	return nil, errCGORequired
}

func newOtoOutput(Renderer, OutputConfig) (Output, error) {
	return nil, errCGORequired
}

func newPortAudioOutput(Renderer, OutputConfig) (Output, error) {
	return nil, errCGORequired
}
