package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessAdvanceRendersMixer(t *testing.T) {
	m := NewMixer(1000, 1)
	out := NewHeadlessOutput(m, OutputConfig{SampleRate: 1000, Channels: 1, FramesPerBuffer: 10}, false)
	require.NoError(t, out.Start())
	defer out.Close()

	src, err := m.GenSource()
	require.NoError(t, err)
	queueFilled(t, m, src, 20)
	require.NoError(t, m.Play(src))

	samples := out.Advance(30)
	require.Len(t, samples, 30)
	assert.InDelta(t, 0.5, samples[19], 1e-6)
	assert.Equal(t, float32(0), samples[20])
	assert.Equal(t, int64(30), out.Rendered())
}

func TestHeadlessRealtimePacing(t *testing.T) {
	m := NewMixer(1000, 1)
	out := NewHeadlessOutput(m, OutputConfig{SampleRate: 1000, Channels: 1, FramesPerBuffer: 5}, true)
	require.NoError(t, out.Start())

	require.Eventually(t, func() bool {
		return out.Rendered() >= 10
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, out.Close())
	assert.ErrorIs(t, out.Start(), ErrOutputClosed)
}
