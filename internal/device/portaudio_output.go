//go:build cgo

package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioOutput plays a Renderer through a PortAudio callback stream
type PortAudioOutput struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	config  OutputConfig
	running bool
	closed  bool
}

func newPortAudioOutput(r Renderer, cfg OutputConfig) (Output, error) {
	cfg = cfg.withDefaults()

	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialize portaudio", "error", err)
		return nil, fmt.Errorf("%w: portaudio: %v", ErrDeviceUnavailable, err)
	}

	stream, err := portaudio.OpenDefaultStream(
		0,
		cfg.Channels,
		float64(cfg.SampleRate),
		cfg.FramesPerBuffer,
		func(out []float32) {
			r.Render(out)
		},
	)
	if err != nil {
		_ = portaudio.Terminate()
		slog.Error("failed to open portaudio stream", "error", err)
		return nil, fmt.Errorf("%w: portaudio stream: %v", ErrDeviceUnavailable, err)
	}

	slog.Info("portaudio output initialized",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frames_per_buffer", cfg.FramesPerBuffer)

	return &PortAudioOutput{stream: stream, config: cfg}, nil
}

func (o *PortAudioOutput) Name() string { return "portaudio" }

func (o *PortAudioOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutputClosed
	}
	if o.running {
		return nil
	}
	if err := o.stream.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	o.running = true
	return nil
}

func (o *PortAudioOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return nil
	}
	if err := o.stream.Stop(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	o.running = false
	return nil
}

func (o *PortAudioOutput) Close() error {
	if err := o.Stop(); err != nil {
		slog.Error("failed to stop portaudio stream", "error", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
