package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"aural.click/internal/device"
)

// Context is the process-wide playback environment: the device, its output
// driver, the shared sound cache and the listener. The application calls Init
// once before creating players and Shutdown once when done.
type Context struct {
	dev    device.Device
	output device.Output
	opener Opener
	cache  *SoundDataCache

	mu      sync.Mutex
	state   contextState
	players map[Player]struct{}
	hooks   []Hook

	// serializes read-modify-write of the device listener
	listenerMu sync.Mutex
}

type contextState int

const (
	contextNew contextState = iota
	contextRunning
	contextShutdown
)

// NewContext wires a device to its output and a decoder. output may be nil
// when the caller drives rendering itself.
func NewContext(dev device.Device, output device.Output, opener Opener) (*Context, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidParameter)
	}
	if opener == nil {
		return nil, fmt.Errorf("%w: nil opener", ErrInvalidParameter)
	}
	return &Context{
		dev:     dev,
		output:  output,
		opener:  opener,
		cache:   NewSoundDataCache(dev, opener),
		players: make(map[Player]struct{}),
	}, nil
}

// Init starts the output. It may be called exactly once.
func (c *Context) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case contextRunning:
		return fmt.Errorf("%w: context already initialized", ErrInvalidState)
	case contextShutdown:
		return fmt.Errorf("%w: context has been shut down", ErrInvalidState)
	}

	if c.output != nil {
		if err := c.output.Start(); err != nil {
			slog.Error("failed to start audio output", "output", c.output.Name(), "error", err)
			return err
		}
	}
	c.state = contextRunning

	outputName := "none"
	if c.output != nil {
		outputName = c.output.Name()
	}
	slog.Info("playback context initialized", "output", outputName)
	return nil
}

// Shutdown destroys every live player, then stops and closes the output.
// Calling it again, or before Init, is a no-op.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	if c.state != contextRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = contextShutdown
	players := make([]Player, 0, len(c.players))
	for p := range c.players {
		players = append(players, p)
	}
	c.mu.Unlock()

	slog.Debug("shutting down playback context", "players", len(players))

	// Destroy calls forget, which takes the lock
	var errs []error
	for _, p := range players {
		if err := p.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.output != nil {
		if err := c.output.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := c.output.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		slog.Warn("playback context shut down with errors", "error", err)
		return err
	}
	slog.Info("playback context shut down")
	return nil
}

// Cache returns the shared sound data cache
func (c *Context) Cache() *SoundDataCache { return c.cache }

// Device returns the underlying device
func (c *Context) Device() device.Device { return c.dev }

// AddHook registers a hook for every player created afterwards
func (c *Context) AddHook(h Hook) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// Players returns the number of live players
func (c *Context) Players() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.players)
}

func (c *Context) initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == contextRunning
}

func (c *Context) hookList() []Hook {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Hook, len(c.hooks))
	copy(out, c.hooks)
	return out
}

// track registers a new player. It fails once Shutdown has started, so every
// player Shutdown does not see is rejected at construction.
func (c *Context) track(p Player) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != contextRunning {
		return ErrContextNotInitialized
	}
	c.players[p] = struct{}{}
	return nil
}

func (c *Context) forget(p Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.players, p)
}

// SetListenerVolume sets the gain applied to every source
func (c *Context) SetListenerVolume(v float32) error {
	if err := validateVolume(v); err != nil {
		return err
	}
	c.updateListener(func(l *device.Listener) { l.Gain = v })
	return nil
}

func (c *Context) ListenerVolume() float32 { return c.dev.Listener().Gain }

func (c *Context) SetListenerPosition(p device.Vec3) error {
	if !finite(p) {
		return fmt.Errorf("%w: listener position %v", ErrInvalidParameter, p)
	}
	c.updateListener(func(l *device.Listener) { l.Position = p })
	return nil
}

func (c *Context) ListenerPosition() device.Vec3 { return c.dev.Listener().Position }

// SetListenerOrientation sets the facing and up vectors; neither may be zero
func (c *Context) SetListenerOrientation(o device.Orientation) error {
	if !finite(o.At) || !finite(o.Up) || o.At == (device.Vec3{}) || o.Up == (device.Vec3{}) {
		return fmt.Errorf("%w: listener orientation %v", ErrInvalidParameter, o)
	}
	c.updateListener(func(l *device.Listener) { l.Orientation = o })
	return nil
}

func (c *Context) ListenerOrientation() device.Orientation { return c.dev.Listener().Orientation }

func (c *Context) SetListenerVelocity(v device.Vec3) error {
	if !finite(v) {
		return fmt.Errorf("%w: listener velocity %v", ErrInvalidParameter, v)
	}
	c.updateListener(func(l *device.Listener) { l.Velocity = v })
	return nil
}

func (c *Context) ListenerVelocity() device.Vec3 { return c.dev.Listener().Velocity }

func (c *Context) updateListener(fn func(*device.Listener)) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	l := c.dev.Listener()
	fn(&l)
	c.dev.SetListener(l)
}

func finite(v device.Vec3) bool {
	for _, f := range [...]float32{v.X, v.Y, v.Z} {
		x := float64(f)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
