package device

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"aural.click/internal/audio"
)

// Renderer produces interleaved float32 output samples on demand. Output
// drivers call Render from their audio thread.
type Renderer interface {
	Render(out []float32)
}

type mixBuffer struct {
	samples  []float32
	frames   int
	channels int
	rate     uint32
	queued   int // number of source queues holding this buffer
}

type mixSource struct {
	queue     []BufferID
	processed int
	cursor    float64 // fractional frame position inside queue[processed]
	state     SourceState
	gain      float32
	pitch     float32
	looping   bool
}

// Mixer is a software Device. Buffers hold float32 samples; Render sums every
// playing source into the output with gain and pitch applied.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	buffers    map[BufferID]*mixBuffer
	sources    map[SourceID]*mixSource
	nextBuffer BufferID
	nextSource SourceID
	listener   Listener
}

// NewMixer creates a mixer that renders at the given output rate and channel count
func NewMixer(sampleRate, channels int) *Mixer {
	slog.Debug("creating software mixer", "sample_rate", sampleRate, "channels", channels)
	return &Mixer{
		sampleRate: sampleRate,
		channels:   channels,
		buffers:    make(map[BufferID]*mixBuffer),
		sources:    make(map[SourceID]*mixSource),
		listener:   DefaultListener(),
	}
}

// SampleRate returns the output sample rate
func (m *Mixer) SampleRate() int { return m.sampleRate }

// Channels returns the output channel count
func (m *Mixer) Channels() int { return m.channels }

func (m *Mixer) GenBuffers(n int) ([]BufferID, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: buffer count %d", ErrDeviceRejected, n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]BufferID, n)
	for i := range ids {
		m.nextBuffer++
		ids[i] = m.nextBuffer
		m.buffers[m.nextBuffer] = &mixBuffer{}
	}
	return ids, nil
}

func (m *Mixer) DeleteBuffers(ids ...BufferID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		buf, ok := m.buffers[id]
		if !ok {
			return fmt.Errorf("%w: buffer %d", ErrInvalidHandle, id)
		}
		if buf.queued > 0 {
			return fmt.Errorf("%w: buffer %d is still queued", ErrDeviceRejected, id)
		}
	}
	for _, id := range ids {
		delete(m.buffers, id)
	}
	return nil
}

func (m *Mixer) BufferData(id BufferID, format audio.Format, data []byte) error {
	if err := format.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceRejected, err)
	}
	frameSize := format.BytesPerFrame()
	if len(data)%frameSize != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of %d-byte frames",
			ErrDeviceRejected, len(data), frameSize)
	}

	// Convert outside the lock; the render thread must not wait on it
	samples := make([]float32, len(data)/format.SampleFormat.BytesPerSample())
	audio.ToFloat32(format.SampleFormat, data, samples)

	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrInvalidHandle, id)
	}
	if buf.queued > 0 {
		return fmt.Errorf("%w: buffer %d is still queued", ErrDeviceRejected, id)
	}

	buf.samples = samples
	buf.frames = len(data) / frameSize
	buf.channels = int(format.Channels)
	buf.rate = format.SampleRate
	return nil
}

func (m *Mixer) GenSource() (SourceID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSource++
	m.sources[m.nextSource] = &mixSource{
		state: SourceInitial,
		gain:  1,
		pitch: 1,
	}
	return m.nextSource, nil
}

func (m *Mixer) DeleteSource(id SourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("%w: source %d", ErrInvalidHandle, id)
	}
	m.detachAll(src)
	delete(m.sources, id)
	return nil
}

func (m *Mixer) QueueBuffers(id SourceID, ids ...BufferID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return err
	}
	for _, bid := range ids {
		if _, ok := m.buffers[bid]; !ok {
			return fmt.Errorf("%w: buffer %d", ErrInvalidHandle, bid)
		}
	}
	for _, bid := range ids {
		m.buffers[bid].queued++
		src.queue = append(src.queue, bid)
	}
	return nil
}

func (m *Mixer) UnqueueBuffers(id SourceID, n int) ([]BufferID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > src.processed {
		return nil, fmt.Errorf("%w: cannot unqueue %d buffers, %d processed",
			ErrDeviceRejected, n, src.processed)
	}

	out := make([]BufferID, n)
	copy(out, src.queue[:n])
	for _, bid := range out {
		if buf, ok := m.buffers[bid]; ok {
			buf.queued--
		}
	}
	src.queue = append(src.queue[:0], src.queue[n:]...)
	src.processed -= n
	return out, nil
}

func (m *Mixer) ProcessedCount(id SourceID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return 0, err
	}
	return src.processed, nil
}

func (m *Mixer) QueuedCount(id SourceID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return 0, err
	}
	return len(src.queue), nil
}

func (m *Mixer) SetBuffer(id SourceID, bid BufferID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return err
	}
	if src.state == SourcePlaying || src.state == SourcePaused {
		return fmt.Errorf("%w: source %d is %s", ErrDeviceRejected, id, src.state)
	}
	if bid != 0 {
		if _, ok := m.buffers[bid]; !ok {
			return fmt.Errorf("%w: buffer %d", ErrInvalidHandle, bid)
		}
	}

	m.detachAll(src)
	if bid != 0 {
		m.buffers[bid].queued++
		src.queue = append(src.queue, bid)
	}
	src.state = SourceInitial
	return nil
}

func (m *Mixer) Play(id SourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return err
	}
	switch src.state {
	case SourcePlaying:
		return nil
	case SourceInitial, SourceStopped:
		// Restart from the first buffer still in the queue
		src.processed = 0
		src.cursor = 0
	}
	if len(src.queue) == 0 {
		src.state = SourceStopped
		return nil
	}
	src.state = SourcePlaying
	return nil
}

func (m *Mixer) Pause(id SourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return err
	}
	if src.state == SourcePlaying {
		src.state = SourcePaused
	}
	return nil
}

func (m *Mixer) Stop(id SourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return err
	}
	m.stopSource(src)
	return nil
}

func (m *Mixer) SourceState(id SourceID) (SourceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return SourceStopped, err
	}
	return src.state, nil
}

func (m *Mixer) SampleOffset(id SourceID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return 0, err
	}

	var offset int64
	for i := 0; i < src.processed && i < len(src.queue); i++ {
		offset += int64(m.buffers[src.queue[i]].frames)
	}
	if src.processed < len(src.queue) {
		offset += int64(src.cursor)
	}
	return offset, nil
}

func (m *Mixer) SetSampleOffset(id SourceID, frame int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return err
	}
	if frame < 0 {
		return fmt.Errorf("%w: negative sample offset %d", ErrDeviceRejected, frame)
	}

	remaining := frame
	for i, bid := range src.queue {
		frames := int64(m.buffers[bid].frames)
		if remaining < frames {
			src.processed = i
			src.cursor = float64(remaining)
			return nil
		}
		remaining -= frames
	}
	return fmt.Errorf("%w: sample offset %d beyond queued audio", ErrDeviceRejected, frame)
}

func (m *Mixer) SetGain(id SourceID, gain float32) error {
	if gain < 0 || math.IsNaN(float64(gain)) || math.IsInf(float64(gain), 0) {
		return fmt.Errorf("%w: gain %v", ErrDeviceRejected, gain)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return err
	}
	src.gain = gain
	return nil
}

func (m *Mixer) SetPitch(id SourceID, pitch float32) error {
	if !(pitch > 0) || math.IsInf(float64(pitch), 0) {
		return fmt.Errorf("%w: pitch %v", ErrDeviceRejected, pitch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return err
	}
	src.pitch = pitch
	return nil
}

func (m *Mixer) SetLooping(id SourceID, loop bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.source(id)
	if err != nil {
		return err
	}
	src.looping = loop
	return nil
}

func (m *Mixer) SetListener(l Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

func (m *Mixer) Listener() Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener
}

// Render fills out with the sum of all playing sources. len(out) should be a
// multiple of the output channel count.
func (m *Mixer) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}
	if m.channels <= 0 {
		return
	}
	frames := len(out) / m.channels

	m.mu.Lock()
	defer m.mu.Unlock()

	gain := m.listener.Gain
	for _, src := range m.sources {
		if src.state != SourcePlaying {
			continue
		}
		m.mixSource(src, out, frames, src.gain*gain)
	}

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
}

func (m *Mixer) mixSource(src *mixSource, out []float32, frames int, gain float32) {
	for written := 0; written < frames; written++ {
		if !m.settle(src) {
			m.runDry(src)
			return
		}

		buf := m.buffers[src.queue[src.processed]]
		idx := int(src.cursor)
		base := written * m.channels
		for c := 0; c < m.channels; c++ {
			ch := c
			if ch >= buf.channels {
				ch = buf.channels - 1
			}
			out[base+c] += buf.samples[idx*buf.channels+ch] * gain
		}
		src.cursor += float64(src.pitch) * float64(buf.rate) / float64(m.sampleRate)
	}

	if !m.settle(src) {
		m.runDry(src)
	}
}

// settle marks fully played buffers processed and wraps a looping queue once.
// It reports whether a frame is available at the cursor.
func (m *Mixer) settle(src *mixSource) bool {
	wrapped := false
	for {
		for src.processed < len(src.queue) {
			frames := float64(m.buffers[src.queue[src.processed]].frames)
			if src.cursor < frames {
				return true
			}
			src.cursor -= frames
			src.processed++
		}
		if !src.looping || wrapped || len(src.queue) == 0 {
			return false
		}
		src.processed = 0
		wrapped = true
	}
}

// runDry stops a source whose queue is exhausted. The buffers stay processed
// until they are unqueued.
func (m *Mixer) runDry(src *mixSource) {
	src.state = SourceStopped
	src.cursor = 0
}

func (m *Mixer) source(id SourceID) (*mixSource, error) {
	src, ok := m.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: source %d", ErrInvalidHandle, id)
	}
	return src, nil
}

// stopSource marks every queued buffer processed and rewinds
func (m *Mixer) stopSource(src *mixSource) {
	src.state = SourceStopped
	src.processed = len(src.queue)
	src.cursor = 0
}

func (m *Mixer) detachAll(src *mixSource) {
	for _, bid := range src.queue {
		if buf, ok := m.buffers[bid]; ok {
			buf.queued--
		}
	}
	src.queue = nil
	src.processed = 0
	src.cursor = 0
	src.state = SourceStopped
}
