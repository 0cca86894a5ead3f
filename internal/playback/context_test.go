package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aural.click/internal/audio"
	"aural.click/internal/device"
)

func TestContextRequiresInit(t *testing.T) {
	mixer := device.NewMixer(testRate, 1)
	ctx, err := NewContext(mixer, nil, &fakeOpener{frames: 10})
	require.NoError(t, err)

	_, err = NewMusic(ctx, audio.NewMemorySource("a", nil))
	require.ErrorIs(t, err, ErrContextNotInitialized)
	_, err = NewSound(context.Background(), ctx, audio.NewMemorySource("a", nil))
	require.ErrorIs(t, err, ErrContextNotInitialized)

	// Shutdown before Init does nothing
	require.NoError(t, ctx.Shutdown())
	require.NoError(t, ctx.Init())
	require.ErrorIs(t, ctx.Init(), ErrInvalidState)
}

func TestNewContextValidatesArguments(t *testing.T) {
	_, err := NewContext(nil, nil, &fakeOpener{})
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewContext(device.NewMixer(testRate, 1), nil, nil)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestContextShutdownDestroysPlayers(t *testing.T) {
	h := newHarness(t, &fakeOpener{frames: 1000})
	m := h.newMusic(t)
	s := newTestSound(t, h, "beep")
	require.NoError(t, m.Play())
	require.NoError(t, s.Play())
	assert.Equal(t, 2, h.ctx.Players())

	require.NoError(t, h.ctx.Shutdown())
	assert.Equal(t, 0, h.ctx.Players())
	assert.Equal(t, 0, h.ctx.Cache().Len())
	require.ErrorIs(t, m.Play(), ErrDestroyed)
	require.ErrorIs(t, s.Play(), ErrDestroyed)

	// Idempotent, and the context cannot be brought back
	require.NoError(t, h.ctx.Shutdown())
	require.ErrorIs(t, h.ctx.Init(), ErrInvalidState)
	_, err := NewMusic(h.ctx, audio.NewMemorySource("a", nil))
	require.ErrorIs(t, err, ErrContextNotInitialized)

	require.ErrorIs(t, h.output.Start(), device.ErrOutputClosed)
}

func TestContextListenerVolume(t *testing.T) {
	h := newHarness(t, &fakeOpener{frames: 100})
	assert.Equal(t, float32(1), h.ctx.ListenerVolume())

	require.NoError(t, h.ctx.SetListenerVolume(0.5))
	assert.Equal(t, float32(0.5), h.ctx.ListenerVolume())
	require.ErrorIs(t, h.ctx.SetListenerVolume(-1), ErrInvalidParameter)
	require.ErrorIs(t, h.ctx.SetListenerVolume(float32(math.Inf(1))), ErrInvalidParameter)

	s := newTestSound(t, h, "beep")
	require.NoError(t, s.Play())
	out := h.output.Advance(10)
	for i, v := range out {
		assert.InDelta(t, rampValue(int64(i))*0.5, v, 1e-9)
	}
}

func TestContextListenerSpatialParameters(t *testing.T) {
	h := newHarness(t, &fakeOpener{frames: 100})

	assert.Equal(t, device.DefaultListener().Orientation, h.ctx.ListenerOrientation())

	pos := device.Vec3{X: 1, Y: 2, Z: 3}
	require.NoError(t, h.ctx.SetListenerPosition(pos))
	assert.Equal(t, pos, h.ctx.ListenerPosition())

	vel := device.Vec3{X: -1}
	require.NoError(t, h.ctx.SetListenerVelocity(vel))
	assert.Equal(t, vel, h.ctx.ListenerVelocity())

	o := device.Orientation{At: device.Vec3{X: 1}, Up: device.Vec3{Z: 1}}
	require.NoError(t, h.ctx.SetListenerOrientation(o))
	assert.Equal(t, o, h.ctx.ListenerOrientation())

	nan := float32(math.NaN())
	require.ErrorIs(t, h.ctx.SetListenerPosition(device.Vec3{X: nan}), ErrInvalidParameter)
	require.ErrorIs(t, h.ctx.SetListenerVelocity(device.Vec3{Y: nan}), ErrInvalidParameter)
	require.ErrorIs(t, h.ctx.SetListenerOrientation(device.Orientation{Up: device.Vec3{Y: 1}}), ErrInvalidParameter)

	// Setting one parameter leaves the others alone
	assert.Equal(t, pos, h.ctx.ListenerPosition())
	assert.Equal(t, float32(1), h.ctx.ListenerVolume())
}

func TestContextConcurrentListenerUpdatesKeepEachField(t *testing.T) {
	h := newHarness(t, &fakeOpener{frames: 100})

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			assert.NoError(t, h.ctx.SetListenerVolume(0.5))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i <= rounds; i++ {
			assert.NoError(t, h.ctx.SetListenerPosition(device.Vec3{X: float32(i)}))
		}
	}()
	wg.Wait()

	assert.Equal(t, float32(0.5), h.ctx.ListenerVolume())
	assert.Equal(t, device.Vec3{X: rounds}, h.ctx.ListenerPosition())
}

func TestContextShutdownDuringPlayerCreation(t *testing.T) {
	h := newHarness(t, &fakeOpener{frames: 100})

	var (
		mu      sync.Mutex
		created []Player
		wg      sync.WaitGroup
	)
	keep := func(p Player, err error) {
		if err != nil {
			assert.ErrorIs(t, err, ErrContextNotInitialized)
			return
		}
		mu.Lock()
		created = append(created, p)
		mu.Unlock()
	}

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if i%2 == 0 {
					s, err := NewSound(context.Background(), h.ctx, audio.NewMemorySource(fmt.Sprintf("sound-%d", w), nil))
					keep(s, err)
				} else {
					m, err := NewMusic(h.ctx, audio.NewMemorySource("music", nil), WithTick(2*time.Millisecond))
					keep(m, err)
				}
			}
		}(w)
	}

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, h.ctx.Shutdown())
	wg.Wait()

	// Every player that was handed out was destroyed by Shutdown
	assert.Equal(t, 0, h.ctx.Players())
	assert.Equal(t, 0, h.ctx.Cache().Len())
	for _, p := range created {
		require.ErrorIs(t, p.Play(), ErrDestroyed)
	}
}
