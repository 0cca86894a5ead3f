package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"aural.click/internal/audio"
	"aural.click/internal/device"
)

// DefaultPreloadParallelism bounds concurrent decodes in Preload
const DefaultPreloadParallelism = 4

// SoundData is fully decoded audio uploaded to one device buffer. It is
// shared by every Sound playing the same source and must not be modified.
type SoundData struct {
	key     string
	format  audio.Format
	frames  int64
	samples []byte
	buffer  device.BufferID
}

func (d *SoundData) Key() string             { return d.key }
func (d *SoundData) Format() audio.Format    { return d.format }
func (d *SoundData) Frames() int64           { return d.frames }
func (d *SoundData) Buffer() device.BufferID { return d.buffer }

// Bytes returns the decoded PCM. Callers must not modify it.
func (d *SoundData) Bytes() []byte { return d.samples }

// Duration returns the playing time at the data's own sample rate
func (d *SoundData) Duration() time.Duration {
	return d.format.FramesToDuration(d.frames)
}

type cacheEntry struct {
	ready chan struct{} // closed once data or err is set
	data  *SoundData
	err   error
	refs  int
}

// SoundDataCache shares decoded sound data between players, keyed by source
// name. Each key is decoded at most once at a time; the entry and its device
// buffer are freed when the last user releases it.
type SoundDataCache struct {
	dev     device.Device
	opener  Opener
	mu      sync.Mutex
	entries map[string]*cacheEntry
	decodes atomic.Int64
}

// NewSoundDataCache creates an empty cache that decodes with opener and
// uploads to dev
func NewSoundDataCache(dev device.Device, opener Opener) *SoundDataCache {
	return &SoundDataCache{
		dev:     dev,
		opener:  opener,
		entries: make(map[string]*cacheEntry),
	}
}

// GetOrDecode returns the shared data for src, decoding it on first use.
// Every successful call counts as one use and must be paired with Release.
// Callers that find a decode in flight wait for it instead of decoding again.
func (c *SoundDataCache) GetOrDecode(ctx context.Context, src audio.Source) (*SoundData, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidParameter)
	}
	key := src.Name()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.refs++
		c.mu.Unlock()

		if err := c.wait(ctx, key, e); err != nil {
			return nil, err
		}
		if e.err != nil {
			return nil, e.err
		}
		slog.Debug("sound data cache hit", "key", key)
		return e.data, nil
	}

	e := &cacheEntry{ready: make(chan struct{}), refs: 1}
	c.entries[key] = e
	c.mu.Unlock()

	data, err := c.decode(src)

	c.mu.Lock()
	e.data, e.err = data, err
	if err != nil && c.entries[key] == e {
		// Failed entries are not cached; the next caller retries
		delete(c.entries, key)
	}
	c.mu.Unlock()
	close(e.ready)

	if err != nil {
		return nil, err
	}
	return data, nil
}

// wait blocks until e is ready. A finished entry is returned even when ctx is
// already done. Giving up drops the use taken for the caller.
func (c *SoundDataCache) wait(ctx context.Context, key string, e *cacheEntry) error {
	select {
	case <-e.ready:
		return nil
	default:
	}

	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
	}

	c.mu.Lock()
	last := c.unrefLocked(key, e)
	data := e.data
	c.mu.Unlock()

	if last && data != nil {
		if err := c.free(data); err != nil {
			slog.Warn("failed to free abandoned sound data", "key", key, "error", err)
		}
	}
	return ctx.Err()
}

// unrefLocked drops one use of e and reports whether it was the last. The
// caller holds c.mu.
func (c *SoundDataCache) unrefLocked(key string, e *cacheEntry) bool {
	e.refs--
	if e.refs > 0 {
		return false
	}
	if c.entries[key] == e {
		delete(c.entries, key)
	}
	return true
}

func (c *SoundDataCache) free(data *SoundData) error {
	slog.Debug("freeing sound data", "key", data.key)
	data.samples = nil
	return c.dev.DeleteBuffers(data.buffer)
}

func (c *SoundDataCache) decode(src audio.Source) (*SoundData, error) {
	c.decodes.Add(1)
	start := time.Now()

	stream, err := c.opener.Open(src)
	if err != nil {
		slog.Error("failed to open sound source", "key", src.Name(), "error", err)
		return nil, err
	}
	decoded, err := audio.DecodeAll(stream)
	stream.Close()
	if err != nil {
		slog.Error("failed to decode sound", "key", src.Name(), "error", err)
		return nil, err
	}

	ids, err := c.dev.GenBuffers(1)
	if err != nil {
		return nil, err
	}
	if err := c.dev.BufferData(ids[0], decoded.Format, decoded.Samples); err != nil {
		_ = c.dev.DeleteBuffers(ids...)
		return nil, err
	}

	slog.Debug("sound decoded",
		"key", src.Name(),
		"frames", decoded.Frames,
		"bytes", len(decoded.Samples),
		"decode_ms", time.Since(start).Milliseconds())

	return &SoundData{
		key:     src.Name(),
		format:  decoded.Format,
		frames:  decoded.Frames,
		samples: decoded.Samples,
		buffer:  ids[0],
	}, nil
}

// Release gives back one use of data. The last release frees the decoded
// bytes and the device buffer.
func (c *SoundDataCache) Release(data *SoundData) error {
	if data == nil {
		return fmt.Errorf("%w: nil sound data", ErrInvalidParameter)
	}

	c.mu.Lock()
	e, ok := c.entries[data.key]
	if !ok || e.data != data {
		c.mu.Unlock()
		return fmt.Errorf("%w: sound data %q is not held by the cache", ErrInvalidParameter, data.key)
	}
	last := c.unrefLocked(data.key, e)
	c.mu.Unlock()

	if !last {
		return nil
	}
	return c.free(data)
}

// Preload decodes several sources concurrently. Each returned SoundData holds
// one use. On error every use taken so far is released.
func (c *SoundDataCache) Preload(ctx context.Context, srcs ...audio.Source) ([]*SoundData, error) {
	results := make([]*SoundData, len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultPreloadParallelism)
	for i, src := range srcs {
		i, src := i, src
		g.Go(func() error {
			data, err := c.GetOrDecode(gctx, src)
			if err != nil {
				return fmt.Errorf("preload %s: %w", src.Name(), err)
			}
			results[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, data := range results {
			if data != nil {
				_ = c.Release(data)
			}
		}
		return nil, err
	}
	return results, nil
}

// Len returns the number of cached or in-flight entries
func (c *SoundDataCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RefCount returns the number of uses held for key
func (c *SoundDataCache) RefCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Decodes returns how many decodes the cache has started
func (c *SoundDataCache) Decodes() int64 {
	return c.decodes.Load()
}
