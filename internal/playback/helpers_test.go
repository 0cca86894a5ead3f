package playback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aural.click/internal/audio"
	"aural.click/internal/device"
)

const testRate = 1000

var testFormat = audio.Format{SampleRate: testRate, Channels: 1, SampleFormat: audio.FormatF32}

// rampValue is the sample stored at frame i of a ramp source
func rampValue(i int64) float32 { return float32(i) / 1e5 }

// rampData returns frames mono float32 frames where frame i holds rampValue(i)
func rampData(frames int64) *audio.AudioData {
	p := make([]byte, frames*4)
	for i := int64(0); i < frames; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(rampValue(i)))
	}
	return &audio.AudioData{Samples: p, Frames: frames, Format: testFormat}
}

var errInjected = fmt.Errorf("%w: injected read failure", audio.ErrIO)

// fakeOpener serves ramp streams of a fixed length for any source
type fakeOpener struct {
	frames  int64
	delay   time.Duration // sleep inside Open
	slow    time.Duration // sleep inside every ReadFrames
	openErr error
	failAt  int64 // ReadFrames fails once the read position passes this frame; 0 disables

	opens atomic.Int64
}

func (o *fakeOpener) Open(src audio.Source) (audio.Stream, error) {
	o.opens.Add(1)
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	if o.openErr != nil {
		return nil, o.openErr
	}
	return &fakeStream{Stream: audio.NewPCMStream(rampData(o.frames)), failAt: o.failAt, slow: o.slow}, nil
}

type fakeStream struct {
	audio.Stream
	failAt int64
	slow   time.Duration
	pos    int64
	closed bool
}

func (s *fakeStream) ReadFrames(p []byte) (int, error) {
	if s.slow > 0 {
		time.Sleep(s.slow)
	}
	if s.failAt > 0 && s.pos >= s.failAt {
		return 0, errInjected
	}
	n, err := s.Stream.ReadFrames(p)
	s.pos += int64(n)
	return n, err
}

func (s *fakeStream) Seek(frame int64) error {
	if err := s.Stream.Seek(frame); err != nil {
		return err
	}
	s.pos = frame
	return nil
}

func (s *fakeStream) Close() error {
	if s.closed {
		return errors.New("stream closed twice")
	}
	s.closed = true
	return nil
}

type harness struct {
	ctx    *Context
	mixer  *device.Mixer
	output *device.HeadlessOutput
	opener *fakeOpener
}

// newHarness builds an initialized context over a 1 kHz mono mixer. Rendering
// happens only when the test calls Advance.
func newHarness(t *testing.T, opener *fakeOpener) *harness {
	t.Helper()

	mixer := device.NewMixer(testRate, 1)
	output := device.NewHeadlessOutput(mixer, device.OutputConfig{SampleRate: testRate, Channels: 1}, false)
	ctx, err := NewContext(mixer, output, opener)
	require.NoError(t, err)
	require.NoError(t, ctx.Init())
	t.Cleanup(func() { _ = ctx.Shutdown() })

	return &harness{ctx: ctx, mixer: mixer, output: output, opener: opener}
}

func (h *harness) newMusic(t *testing.T, opts ...Option) *Music {
	t.Helper()
	opts = append([]Option{WithTick(2 * time.Millisecond)}, opts...)
	m, err := NewMusic(h.ctx, audio.NewMemorySource("ramp", nil), opts...)
	require.NoError(t, err)
	return m
}

// eventLog collects hook events
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) hook(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func waitState(t *testing.T, p interface{ State() State }, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.State() == want },
		2*time.Second, time.Millisecond, "state never became %s (last %s)", want, p.State())
}

// waitRefilled blocks until the feed loop has unqueued every processed buffer
// and topped the device queue back up to n buffers, or submitted all chunks
func (h *harness) waitRefilled(t *testing.T, m *Music, n int, lastChunk int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		processed, err := h.mixer.ProcessedCount(m.stream.source)
		if err != nil || processed != 0 {
			return false
		}
		queued, err := h.mixer.QueuedCount(m.stream.source)
		if err != nil {
			return false
		}
		return queued == n || (lastChunk > 0 && m.Stats().Submitted >= lastChunk)
	}, 2*time.Second, time.Millisecond)
}

// render advances the output in steps, waiting for the feed loop between
// steps, and returns everything rendered
func (h *harness) render(t *testing.T, m *Music, frames, step, n int, lastChunk int64) []float32 {
	t.Helper()
	var out []float32
	for done := 0; done < frames; done += step {
		out = append(out, h.output.Advance(step)...)
		h.waitRefilled(t, m, n, lastChunk)
	}
	return out
}
