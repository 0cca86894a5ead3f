package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aural.click/internal/audio"
	"aural.click/internal/device"
)

func TestCacheDecodesOnceForConcurrentCallers(t *testing.T) {
	opener := &fakeOpener{frames: 500, delay: 20 * time.Millisecond}
	mixer := device.NewMixer(testRate, 1)
	cache := NewSoundDataCache(mixer, opener)
	src := audio.NewMemorySource("click", nil)

	const callers = 8
	results := make([]*SoundData, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrDecode(context.Background(), src)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int64(1), cache.Decodes())
	assert.Equal(t, int64(1), opener.opens.Load())
	assert.Equal(t, callers, cache.RefCount("click"))
	assert.Equal(t, rampData(500).Samples, results[0].Bytes())
	assert.Equal(t, int64(500), results[0].Frames())
	assert.Equal(t, 500*time.Millisecond, results[0].Duration())
}

func TestCacheFreesOnLastRelease(t *testing.T) {
	mixer := device.NewMixer(testRate, 1)
	cache := NewSoundDataCache(mixer, &fakeOpener{frames: 100})
	src := audio.NewMemorySource("click", nil)

	first, err := cache.GetOrDecode(context.Background(), src)
	require.NoError(t, err)
	second, err := cache.GetOrDecode(context.Background(), src)
	require.NoError(t, err)
	require.Same(t, first, second)
	assert.Equal(t, 2, cache.RefCount("click"))

	require.NoError(t, cache.Release(first))
	assert.Equal(t, 1, cache.Len())
	assert.NotNil(t, second.Bytes())

	require.NoError(t, cache.Release(second))
	assert.Equal(t, 0, cache.Len())
	assert.Nil(t, second.Bytes())

	// The device buffer is gone as well
	err = mixer.DeleteBuffers(second.Buffer())
	require.ErrorIs(t, err, device.ErrInvalidHandle)

	// Releasing more times than acquired is a usage error
	require.ErrorIs(t, cache.Release(second), ErrInvalidParameter)

	// A later request decodes again
	_, err = cache.GetOrDecode(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cache.Decodes())
}

func TestCacheDoesNotKeepFailedDecodes(t *testing.T) {
	opener := &fakeOpener{frames: 100, openErr: audio.ErrUnsupportedFormat}
	cache := NewSoundDataCache(device.NewMixer(testRate, 1), opener)
	src := audio.NewMemorySource("broken", nil)

	_, err := cache.GetOrDecode(context.Background(), src)
	require.ErrorIs(t, err, audio.ErrUnsupportedFormat)
	assert.Equal(t, 0, cache.Len())

	_, err = cache.GetOrDecode(context.Background(), src)
	require.Error(t, err)
	assert.Equal(t, int64(2), cache.Decodes(), "failed entries are retried")
}

func TestCacheWaiterHonoursContext(t *testing.T) {
	opener := &fakeOpener{frames: 100, delay: 200 * time.Millisecond}
	cache := NewSoundDataCache(device.NewMixer(testRate, 1), opener)
	src := audio.NewMemorySource("slow", nil)

	started := make(chan struct{})
	done := make(chan *SoundData)
	go func() {
		close(started)
		data, err := cache.GetOrDecode(context.Background(), src)
		assert.NoError(t, err)
		done <- data
	}()
	<-started
	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := cache.GetOrDecode(ctx, src)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	data := <-done
	assert.Equal(t, 1, cache.RefCount("slow"))
	require.NoError(t, cache.Release(data))
	assert.Equal(t, 0, cache.Len())
}

func TestCacheHitIgnoresCancelledContext(t *testing.T) {
	mixer := device.NewMixer(testRate, 1)
	cache := NewSoundDataCache(mixer, &fakeOpener{frames: 100})
	src := audio.NewMemorySource("click", nil)

	owner, err := cache.GetOrDecode(context.Background(), src)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A finished entry is handed out every time, so each call holds a use
	for i := 0; i < 50; i++ {
		data, err := cache.GetOrDecode(ctx, src)
		require.NoError(t, err)
		require.Same(t, owner, data)
		require.NoError(t, cache.Release(data))
	}
	assert.Equal(t, 1, cache.RefCount("click"))

	require.NoError(t, cache.Release(owner))
	assert.Equal(t, 0, cache.Len())
	require.ErrorIs(t, mixer.DeleteBuffers(owner.Buffer()), device.ErrInvalidHandle)
}

func TestCacheAbandonedLastUseFreesData(t *testing.T) {
	mixer := device.NewMixer(testRate, 1)
	cache := NewSoundDataCache(mixer, &fakeOpener{frames: 100})
	src := audio.NewMemorySource("click", nil)

	data, err := cache.GetOrDecode(context.Background(), src)
	require.NoError(t, err)

	// A waiter that took a use and then gave up after every other user left
	cache.mu.Lock()
	e := cache.entries["click"]
	e.refs++
	cache.mu.Unlock()
	require.NoError(t, cache.Release(data))
	assert.Equal(t, 1, cache.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.ready = make(chan struct{})
	require.ErrorIs(t, cache.wait(ctx, "click", e), context.Canceled)

	assert.Equal(t, 0, cache.Len())
	assert.Nil(t, data.Bytes())
	require.ErrorIs(t, mixer.DeleteBuffers(data.Buffer()), device.ErrInvalidHandle)
}

func TestCachePreload(t *testing.T) {
	opener := &fakeOpener{frames: 50}
	cache := NewSoundDataCache(device.NewMixer(testRate, 1), opener)

	srcs := []audio.Source{
		audio.NewMemorySource("a", nil),
		audio.NewMemorySource("b", nil),
		audio.NewMemorySource("c", nil),
		audio.NewMemorySource("a", nil),
	}
	data, err := cache.Preload(context.Background(), srcs...)
	require.NoError(t, err)
	require.Len(t, data, 4)

	assert.Equal(t, "b", data[1].Key())
	assert.Same(t, data[0], data[3])
	assert.Equal(t, 3, cache.Len())
	assert.Equal(t, 2, cache.RefCount("a"))
	assert.Equal(t, int64(3), cache.Decodes())

	for _, d := range data {
		require.NoError(t, cache.Release(d))
	}
	assert.Equal(t, 0, cache.Len())
}

func TestCachePreloadReleasesOnFailure(t *testing.T) {
	opener := &fakeOpener{frames: 50, openErr: audio.ErrTruncated}
	cache := NewSoundDataCache(device.NewMixer(testRate, 1), opener)

	_, err := cache.Preload(context.Background(), audio.NewMemorySource("a", nil))
	require.ErrorIs(t, err, audio.ErrTruncated)
	assert.Equal(t, 0, cache.Len())
}
