package rosterwatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wavecheck/wavecheck/internal/broker/messages"
	"github.com/wavecheck/wavecheck/internal/models"
	"github.com/wavecheck/wavecheck/internal/storage/pgroster"
)

type fakeSnapshotStore struct {
	mu   sync.Mutex
	snap pgroster.Snapshot
}

func (f *fakeSnapshotStore) set(seq uint64, drivers ...models.DriverRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = pgroster.Snapshot{Seq: seq, Drivers: drivers}
}

func (f *fakeSnapshotStore) LoadSnapshot(ctx context.Context, stationID string) (*pgroster.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snap
	return &s, nil
}

type feedMsg struct {
	key   string
	value []byte
}

type fakeFeed struct {
	ch     chan feedMsg
	closed bool
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan feedMsg, 16)}
}

func (f *fakeFeed) push(t *testing.T, station string, seq uint64) {
	t.Helper()
	b, err := json.Marshal(messages.RosterChanged{
		StationID: station, Seq: seq, Action: messages.ActionCheckIn, ChangedAt: time.Now(),
	})
	require.NoError(t, err)
	f.ch <- feedMsg{key: station, value: b}
}

func (f *fakeFeed) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-f.ch:
			if !ok {
				return context.Canceled
			}
			if err := handler([]byte(m.key), m.value); err != nil {
				return err
			}
		}
	}
}

func (f *fakeFeed) Close() error {
	f.closed = true
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestWatcher_InitialLoadAndFollow(t *testing.T) {
	store := &fakeSnapshotStore{}
	store.set(1, d("A", "Acme", "9:00", models.StatusAwaiting))
	feed := newFakeFeed()
	w := NewWatcher("STA", store, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return w.Stats().Total == 1 })
	require.Equal(t, "9:00", w.SelectedWave())

	store.set(2,
		d("A", "Acme", "9:00", models.StatusCheckedIn),
		d("B", "Acme", "10:00", models.StatusAwaiting),
	)
	feed.push(t, "STA", 2)

	waitFor(t, func() bool { return w.Stats().Total == 2 })
	require.Equal(t, 1, w.Stats().CheckedIn)
	_, seq := w.Snapshot()
	require.EqualValues(t, 2, seq)
	// An existing selection survives the reload.
	require.Equal(t, "9:00", w.SelectedWave())

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_StaleNotificationsDropped(t *testing.T) {
	store := &fakeSnapshotStore{}
	store.set(5, d("A", "Acme", "9:00", models.StatusAwaiting))
	feed := newFakeFeed()
	w := NewWatcher("STA", store, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	waitFor(t, func() bool { return w.Reloads() == 1 })

	// Notifications at or below the applied seq trigger no reload.
	feed.push(t, "STA", 3)
	feed.push(t, "STA", 5)
	waitFor(t, func() bool { return w.StaleDrops() == 2 })
	require.EqualValues(t, 1, w.Reloads())
}

func TestWatcher_IgnoresOtherStations(t *testing.T) {
	store := &fakeSnapshotStore{}
	store.set(1, d("A", "Acme", "9:00", models.StatusAwaiting))
	feed := newFakeFeed()
	w := NewWatcher("STA", store, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	waitFor(t, func() bool { return w.Reloads() == 1 })

	feed.push(t, "STB", 99)
	feed.push(t, "STA", 2)
	waitFor(t, func() bool { return w.Reloads() == 2 })
	_, seq := w.Snapshot()
	require.EqualValues(t, 1, seq) // store still at seq 1 for STA
}

func TestWatcher_SelectionFallsBackWhenWaveVanishes(t *testing.T) {
	store := &fakeSnapshotStore{}
	store.set(1,
		d("A", "Acme", "9:00", models.StatusAwaiting),
		d("B", "Acme", "10:00", models.StatusAwaiting),
	)
	feed := newFakeFeed()
	w := NewWatcher("STA", store, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	waitFor(t, func() bool { return w.Stats().Total == 2 })

	require.True(t, w.SelectWave("10:00"))
	require.False(t, w.SelectWave("23:45"))

	// The 10:00 wave disappears; selection falls back to the first bucket.
	store.set(2, d("A", "Acme", "9:00", models.StatusAwaiting))
	feed.push(t, "STA", 2)
	waitFor(t, func() bool { return w.SelectedWave() == "9:00" })

	// Roster emptied: no selection left.
	store.set(3)
	feed.push(t, "STA", 3)
	waitFor(t, func() bool { return w.SelectedWave() == "" })
}

func TestWatcher_NotifyObservesEveryGeneration(t *testing.T) {
	store := &fakeSnapshotStore{}
	store.set(1, d("A", "Acme", "9:00", models.StatusAwaiting))
	feed := newFakeFeed()

	var mu sync.Mutex
	var seen []int
	notify := func(station string, st *Stats) {
		mu.Lock()
		seen = append(seen, st.CheckedIn)
		mu.Unlock()
	}
	w := NewWatcher("STA", store, feed, notify)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	waitFor(t, func() bool { return w.Reloads() == 1 })

	store.set(2, d("A", "Acme", "9:00", models.StatusCheckedIn))
	feed.push(t, "STA", 2)
	waitFor(t, func() bool { return w.Reloads() == 2 })

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1}, seen)
}

func TestWatcher_UndecodableMessageSkipped(t *testing.T) {
	store := &fakeSnapshotStore{}
	store.set(1, d("A", "Acme", "9:00", models.StatusAwaiting))
	feed := newFakeFeed()
	w := NewWatcher("STA", store, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	waitFor(t, func() bool { return w.Reloads() == 1 })

	feed.ch <- feedMsg{key: "STA", value: []byte("not json")}
	store.set(2, d("A", "Acme", "9:00", models.StatusCheckedIn))
	feed.push(t, "STA", 2)

	waitFor(t, func() bool { return w.Reloads() == 2 })
	require.EqualValues(t, 1, w.decodeFails.Load())
}
