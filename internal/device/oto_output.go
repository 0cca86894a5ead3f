//go:build cgo

package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"

	"aural.click/internal/audio"
)

// oto allows a single context per process
var (
	otoOnce    sync.Once
	otoCtx     *oto.Context
	otoConfig  OutputConfig
	otoInitErr error
)

func sharedOtoContext(cfg OutputConfig) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   2 * cfg.Period(),
		}

		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoInitErr = err
			return
		}
		<-ready
		otoCtx = ctx
		otoConfig = cfg
	})

	if otoInitErr != nil {
		return nil, fmt.Errorf("%w: oto context: %v", ErrDeviceUnavailable, otoInitErr)
	}
	if otoConfig.SampleRate != cfg.SampleRate || otoConfig.Channels != cfg.Channels {
		return nil, fmt.Errorf("%w: oto context already open at %d Hz, %d channels",
			ErrDeviceUnavailable, otoConfig.SampleRate, otoConfig.Channels)
	}
	return otoCtx, nil
}

// OtoOutput plays a Renderer through an oto player that reads float32 frames
type OtoOutput struct {
	mu       sync.Mutex
	player   *oto.Player
	renderer Renderer
	config   OutputConfig
	scratch  []float32
	closed   bool
}

func newOtoOutput(r Renderer, cfg OutputConfig) (Output, error) {
	cfg = cfg.withDefaults()

	ctx, err := sharedOtoContext(cfg)
	if err != nil {
		slog.Error("failed to initialize oto context", "error", err)
		return nil, err
	}

	o := &OtoOutput{
		renderer: r,
		config:   cfg,
		scratch:  make([]float32, cfg.FramesPerBuffer*cfg.Channels),
	}
	o.player = ctx.NewPlayer(o)

	slog.Info("oto output initialized",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels)
	return o, nil
}

// Read renders whole frames into p; the oto player pulls from it
func (o *OtoOutput) Read(p []byte) (int, error) {
	frameBytes := 4 * o.config.Channels
	n := len(p) / frameBytes * o.config.Channels
	if n == 0 {
		return 0, nil
	}
	if cap(o.scratch) < n {
		o.scratch = make([]float32, n)
	}
	samples := o.scratch[:n]
	o.renderer.Render(samples)
	audio.PutFloat32LE(p, samples)
	return n * 4, nil
}

func (o *OtoOutput) Name() string { return "oto" }

func (o *OtoOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutputClosed
	}
	if !o.player.IsPlaying() {
		o.player.Play()
		slog.Debug("oto output started")
	}
	return nil
}

func (o *OtoOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed && o.player.IsPlaying() {
		o.player.Pause()
		slog.Debug("oto output paused")
	}
	return nil
}

func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.player.Close(); err != nil {
		slog.Error("failed to close oto player", "error", err)
		return err
	}
	slog.Debug("oto output closed")
	return nil
}
