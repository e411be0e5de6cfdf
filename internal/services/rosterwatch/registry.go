package rosterwatch

import (
	"context"
	"log/slog"
	"sync"
)

// FeedFactory opens a change-feed subscription for one station's watcher.
// Each watcher owns its feed and closes it when stopped.
type FeedFactory func(stationID string) ChangeFeed

// Registry lazily starts one Watcher per station the first time that
// station's board is opened, and stops them all on shutdown.
type Registry struct {
	store   Snapshotter
	newFeed FeedFactory
	notify  func(string, *Stats)

	mu       sync.Mutex
	watchers map[string]*Watcher
	cancels  map[string]context.CancelFunc
	wg       sync.WaitGroup
	closed   bool
}

func NewRegistry(store Snapshotter, newFeed FeedFactory, notify func(string, *Stats)) *Registry {
	return &Registry{
		store:    store,
		newFeed:  newFeed,
		notify:   notify,
		watchers: make(map[string]*Watcher),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Get returns the station's watcher, starting it on first use. The first
// call loads the snapshot synchronously so callers never see the zero view
// of a roster that has data.
func (r *Registry) Get(ctx context.Context, stationID string) (*Watcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.watchers[stationID]; ok {
		return w, nil
	}
	if r.closed {
		return nil, context.Canceled
	}

	w := NewWatcher(stationID, r.store, r.newFeed(stationID), r.notify)
	if err := w.reload(ctx); err != nil {
		_ = w.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.watchers[stationID] = w
	r.cancels[stationID] = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := w.Run(runCtx); err != nil {
			slog.Error("station watcher stopped", "station", stationID, "err", err)
		}
	}()
	return w, nil
}

// Close stops every watcher and waits for their loops to exit.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	for id, cancel := range r.cancels {
		cancel()
		_ = r.watchers[id].Close()
	}
	r.mu.Unlock()
	r.wg.Wait()
}
