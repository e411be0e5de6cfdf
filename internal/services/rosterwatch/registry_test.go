package rosterwatch

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wavecheck/wavecheck/internal/models"
)

func TestRegistry_GetStartsOnce(t *testing.T) {
	store := &fakeSnapshotStore{}
	store.set(1, d("A", "Acme", "9:00", models.StatusAwaiting))

	var mu sync.Mutex
	feeds := map[string]*fakeFeed{}
	reg := NewRegistry(store, func(stationID string) ChangeFeed {
		mu.Lock()
		defer mu.Unlock()
		f := newFakeFeed()
		feeds[stationID] = f
		return f
	}, nil)
	defer reg.Close()

	w1, err := reg.Get(context.Background(), "STA")
	require.NoError(t, err)
	// The first Get already carries the current snapshot.
	require.Equal(t, 1, w1.Stats().Total)

	w2, err := reg.Get(context.Background(), "STA")
	require.NoError(t, err)
	require.Same(t, w1, w2)

	mu.Lock()
	require.Len(t, feeds, 1)
	mu.Unlock()

	_, err = reg.Get(context.Background(), "STB")
	require.NoError(t, err)
	mu.Lock()
	require.Len(t, feeds, 2)
	mu.Unlock()
}

func TestRegistry_CloseStopsFeeds(t *testing.T) {
	store := &fakeSnapshotStore{}
	store.set(1)

	var mu sync.Mutex
	feeds := map[string]*fakeFeed{}
	reg := NewRegistry(store, func(stationID string) ChangeFeed {
		mu.Lock()
		defer mu.Unlock()
		f := newFakeFeed()
		feeds[stationID] = f
		return f
	}, nil)

	_, err := reg.Get(context.Background(), "STA")
	require.NoError(t, err)

	reg.Close()
	mu.Lock()
	require.True(t, feeds["STA"].closed)
	mu.Unlock()

	_, err = reg.Get(context.Background(), "STB")
	require.Error(t, err)
}
