//go:build cgo

package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"aural.click/internal/audio"
)

// MalgoOutput plays a Renderer through miniaudio
type MalgoOutput struct {
	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	renderer Renderer
	config   OutputConfig
	scratch  []float32
	closed   bool
}

func newMalgoOutput(r Renderer, cfg OutputConfig) (Output, error) {
	cfg = cfg.withDefaults()
	slog.Debug("initializing malgo context")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize audio context", "error", err)
		return nil, fmt.Errorf("%w: malgo context: %v", ErrDeviceUnavailable, err)
	}

	o := &MalgoOutput{
		ctx:      ctx,
		renderer: r,
		config:   cfg,
		scratch:  make([]float32, cfg.FramesPerBuffer*cfg.Channels),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: o.onSamples,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		slog.Error("failed to initialize playback device", "error", err)
		return nil, fmt.Errorf("%w: malgo device: %v", ErrDeviceUnavailable, err)
	}
	o.device = device

	slog.Info("malgo output initialized",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"period_frames", cfg.FramesPerBuffer)
	return o, nil
}

// onSamples runs on the miniaudio thread
func (o *MalgoOutput) onSamples(pOutputSample, _ []byte, framecount uint32) {
	n := int(framecount) * o.config.Channels
	if cap(o.scratch) < n {
		o.scratch = make([]float32, n)
	}
	samples := o.scratch[:n]
	o.renderer.Render(samples)
	audio.PutFloat32LE(pOutputSample, samples)
}

func (o *MalgoOutput) Name() string { return "malgo" }

func (o *MalgoOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutputClosed
	}
	if o.device.IsStarted() {
		return nil
	}
	if err := o.device.Start(); err != nil {
		slog.Error("failed to start playback device", "error", err)
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	slog.Debug("malgo output started")
	return nil
}

func (o *MalgoOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || !o.device.IsStarted() {
		return nil
	}
	if err := o.device.Stop(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	slog.Debug("malgo output stopped")
	return nil
}

func (o *MalgoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		slog.Debug("malgo output already closed")
		return nil
	}
	o.closed = true

	o.device.Uninit()

	// malgo requires both Uninit() and Free()
	if err := o.ctx.Uninit(); err != nil {
		slog.Error("failed to uninitialize audio context", "error", err)
		return err
	}
	o.ctx.Free()

	slog.Debug("malgo output closed")
	return nil
}
