package playback

import (
	"errors"
	"fmt"
	"log/slog"

	"aural.click/internal/audio"
	"aural.click/internal/device"
)

// ErrBufferNotFree is returned when submitting a buffer the pool considers queued
var ErrBufferNotFree = errors.New("buffer is not free")

// Reclaimed is a buffer returned to the free set with the frames it held
type Reclaimed struct {
	ID     device.BufferID
	Frames int
}

type queuedBuffer struct {
	id     device.BufferID
	frames int
}

// BufferPool owns a fixed set of device buffers for one source and tracks
// which are queued on the device and which are free. Every buffer is in
// exactly one of the two sets. A pool is not safe for concurrent use; it
// belongs to the feed loop of a single stream.
type BufferPool struct {
	dev      device.Device
	src      device.SourceID
	all      []device.BufferID
	free     []device.BufferID
	queued   []queuedBuffer // device queue order
	released bool
}

// NewBufferPool allocates n device buffers for src
func NewBufferPool(dev device.Device, src device.SourceID, n int) (*BufferPool, error) {
	ids, err := dev.GenBuffers(n)
	if err != nil {
		return nil, fmt.Errorf("allocate %d buffers: %w", n, err)
	}

	free := make([]device.BufferID, len(ids))
	copy(free, ids)

	slog.Debug("buffer pool allocated", "source", src, "buffers", n)
	return &BufferPool{
		dev:    dev,
		src:    src,
		all:    ids,
		free:   free,
		queued: make([]queuedBuffer, 0, n),
	}, nil
}

// AcquireFree returns a free buffer without removing it from the free set.
// It returns false when every buffer is queued.
func (p *BufferPool) AcquireFree() (device.BufferID, bool) {
	if p.released || len(p.free) == 0 {
		return 0, false
	}
	return p.free[0], true
}

// Submit fills id with chunk and queues it on the source. On failure the
// buffer stays free.
func (p *BufferPool) Submit(id device.BufferID, chunk audio.Chunk) error {
	idx := -1
	for i, f := range p.free {
		if f == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: buffer %d", ErrBufferNotFree, id)
	}

	if err := p.dev.BufferData(id, chunk.Format, chunk.Data); err != nil {
		return err
	}
	if err := p.dev.QueueBuffers(p.src, id); err != nil {
		return err
	}

	p.free = append(p.free[:idx], p.free[idx+1:]...)
	p.queued = append(p.queued, queuedBuffer{id: id, frames: chunk.Frames})
	return nil
}

// ReclaimProcessed unqueues every buffer the device has finished playing
func (p *BufferPool) ReclaimProcessed() ([]Reclaimed, error) {
	if p.released || len(p.queued) == 0 {
		return nil, nil
	}

	n, err := p.dev.ProcessedCount(p.src)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	ids, err := p.dev.UnqueueBuffers(p.src, n)
	if err != nil {
		return nil, err
	}

	out := make([]Reclaimed, 0, len(ids))
	for _, id := range ids {
		if len(p.queued) == 0 || p.queued[0].id != id {
			return out, fmt.Errorf("%w: device returned buffer %d out of queue order",
				device.ErrDeviceRejected, id)
		}
		out = append(out, Reclaimed{ID: id, Frames: p.queued[0].frames})
		p.queued = p.queued[1:]
		p.free = append(p.free, id)
	}
	return out, nil
}

// ReclaimAll stops the source and returns every buffer to the free set, even
// if the device still reports some of them queued
func (p *BufferPool) ReclaimAll() error {
	if p.released || len(p.queued) == 0 {
		return nil
	}

	var errs []error
	if err := p.dev.Stop(p.src); err != nil {
		errs = append(errs, err)
	}
	if count, err := p.dev.QueuedCount(p.src); err != nil {
		errs = append(errs, err)
	} else if count > 0 {
		if _, err := p.dev.UnqueueBuffers(p.src, count); err != nil {
			errs = append(errs, err)
		}
	}

	for _, q := range p.queued {
		p.free = append(p.free, q.id)
	}
	p.queued = p.queued[:0]

	if err := errors.Join(errs...); err != nil {
		slog.Warn("device reported errors while reclaiming buffers", "source", p.src, "error", err)
		return err
	}
	return nil
}

// Free returns the number of free buffers
func (p *BufferPool) Free() int { return len(p.free) }

// Queued returns the number of buffers queued on the device
func (p *BufferPool) Queued() int { return len(p.queued) }

// Size returns the total number of buffers
func (p *BufferPool) Size() int { return len(p.all) }

// Release reclaims and deletes every buffer. Further calls are no-ops.
func (p *BufferPool) Release() error {
	if p.released {
		return nil
	}

	reclaimErr := p.ReclaimAll()
	deleteErr := p.dev.DeleteBuffers(p.all...)
	p.released = true
	p.free = nil

	slog.Debug("buffer pool released", "source", p.src, "buffers", len(p.all))
	return errors.Join(reclaimErr, deleteErr)
}
