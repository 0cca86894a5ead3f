package device

import (
	"log/slog"
	"sync"
	"time"
)

// HeadlessOutput renders without audio hardware. Advance renders a fixed number
// of frames synchronously; with real-time pacing enabled, Start also renders one
// period per period of wall-clock time.
type HeadlessOutput struct {
	mu       sync.Mutex
	renderer Renderer
	config   OutputConfig
	realtime bool
	running  bool
	closed   bool
	rendered int64
	stop     chan struct{}
	done     chan struct{}
}

// NewHeadlessOutput creates a headless output over r
func NewHeadlessOutput(r Renderer, cfg OutputConfig, realtime bool) *HeadlessOutput {
	cfg = cfg.withDefaults()
	slog.Debug("creating headless output",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"realtime", realtime)
	return &HeadlessOutput{
		renderer: r,
		config:   cfg,
		realtime: realtime,
	}
}

func (h *HeadlessOutput) Name() string { return "headless" }

func (h *HeadlessOutput) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrOutputClosed
	}
	if h.running {
		return nil
	}
	h.running = true

	if h.realtime {
		h.stop = make(chan struct{})
		h.done = make(chan struct{})
		go h.pace(h.stop, h.done)
	}
	slog.Debug("headless output started", "realtime", h.realtime)
	return nil
}

func (h *HeadlessOutput) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	stop, done := h.stop, h.done
	h.stop, h.done = nil, nil
	h.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	slog.Debug("headless output stopped", "frames_rendered", h.Rendered())
	return nil
}

func (h *HeadlessOutput) Close() error {
	if err := h.Stop(); err != nil {
		return err
	}
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

// Advance renders frames output frames and returns the interleaved samples
func (h *HeadlessOutput) Advance(frames int) []float32 {
	out := make([]float32, frames*h.config.Channels)
	h.renderer.Render(out)

	h.mu.Lock()
	h.rendered += int64(frames)
	h.mu.Unlock()
	return out
}

// Rendered returns the total number of frames rendered so far
func (h *HeadlessOutput) Rendered() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rendered
}

func (h *HeadlessOutput) pace(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.config.Period())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.Advance(h.config.FramesPerBuffer)
		}
	}
}
