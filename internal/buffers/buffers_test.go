package buffers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestAddResolvesOnceAudioThreadAccepts covers scenario S4's add half:
// AddInMemory's future must not resolve until the audio thread has
// run AcceptLatest against a snapshot containing the handle.
func TestAddResolvesOnceAudioThreadAccepts(t *testing.T) {
	store := New()
	fut := store.AddInMemory(Descriptor{Channels: 1, SampleRate: 48000}, make([]float32, 48000))

	resolved := make(chan Handle, 1)
	go func() {
		h, err := fut.Wait()
		require.NoError(t, err)
		resolved <- h
	}()

	select {
	case <-resolved:
		t.Fatal("future resolved before the audio thread accepted any snapshot")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, store.EndUpdate())
	require.True(t, store.AcceptLatest())

	select {
	case h := <-resolved:
		_, ok := store.Lookup(h)
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("future never resolved after acceptance")
	}
}

// TestRemoveResolvesOnlyAfterSwapExcludesHandle covers scenario S4's
// remove half: remove's future must resolve true only once a snapshot
// without the buffer has been accepted, never exposing a dangling
// reference to the render side in between.
func TestRemoveResolvesOnlyAfterSwapExcludesHandle(t *testing.T) {
	store := New()
	addFut := store.AddInMemory(Descriptor{Channels: 1, SampleRate: 48000}, make([]float32, 48000))
	require.True(t, store.EndUpdate())
	require.True(t, store.AcceptLatest())
	handle, err := addFut.Wait()
	require.NoError(t, err)

	_, ok := store.Lookup(handle)
	require.True(t, ok)

	removeFut := store.Remove(handle)

	resolved := make(chan bool, 1)
	go func() { resolved <- removeFut.Wait() }()

	select {
	case <-resolved:
		t.Fatal("remove future resolved before the swap excluding the handle was accepted")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, store.EndUpdate())
	require.True(t, store.AcceptLatest())

	select {
	case success := <-resolved:
		require.True(t, success)
		_, stillThere := store.Lookup(handle)
		require.False(t, stillThere, "render-visible snapshot must no longer contain the removed buffer")
	case <-time.After(time.Second):
		t.Fatal("remove future never resolved")
	}
}

func TestContentHashIsStableForIdenticalPayloads(t *testing.T) {
	a := contentHash([]float32{0.1, 0.2, 0.3})
	b := contentHash([]float32{0.1, 0.2, 0.3})
	c := contentHash([]float32{0.1, 0.2, 0.30001})
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
