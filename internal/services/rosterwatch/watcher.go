package rosterwatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/wavecheck/wavecheck/internal/broker/messages"
	"github.com/wavecheck/wavecheck/internal/models"
	"github.com/wavecheck/wavecheck/internal/storage/pgroster"
)

// Snapshotter loads the authoritative roster state. Mutations never touch
// the watcher directly; the store is the single source of truth and the
// watcher re-derives everything from it.
type Snapshotter interface {
	LoadSnapshot(ctx context.Context, stationID string) (*pgroster.Snapshot, error)
}

// ChangeFeed delivers roster-change notifications until the context ends.
type ChangeFeed interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

// view is one immutable generation of derived state. Swapped whole so
// readers never observe counters from two different snapshots.
type view struct {
	seq     uint64
	drivers []models.DriverRecord
	stats   *Stats
}

// Watcher keeps an in-memory view of one station's roster in sync with the
// store. On every change notification it reloads the full snapshot and
// recomputes the statistics; notifications carrying a seq at or below the
// current view are dropped, so out-of-order deliveries cannot roll the
// board backwards.
type Watcher struct {
	stationID string
	store     Snapshotter
	feed      ChangeFeed

	cur atomic.Pointer[view]

	mu           sync.Mutex
	selectedWave string

	// notify, when set, observes every applied view. Used to fan changes
	// out to connected terminals.
	notify func(stationID string, stats *Stats)

	reloads     atomic.Uint64
	staleDrops  atomic.Uint64
	decodeFails atomic.Uint64
}

func NewWatcher(stationID string, store Snapshotter, feed ChangeFeed, notify func(string, *Stats)) *Watcher {
	w := &Watcher{
		stationID: stationID,
		store:     store,
		feed:      feed,
		notify:    notify,
	}
	w.cur.Store(&view{stats: Aggregate(nil)})
	return w
}

// Run performs the initial load and then follows the change feed until the
// context is cancelled. Feed errors after cancellation are expected and not
// reported.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.reload(ctx); err != nil {
		return errors.Wrap(err, "initial roster load")
	}

	err := w.feed.Consume(ctx, func(key, value []byte) error {
		if string(key) != w.stationID {
			return nil
		}
		var msg messages.RosterChanged
		if err := json.Unmarshal(value, &msg); err != nil {
			w.decodeFails.Add(1)
			slog.Warn("undecodable roster change dropped", "station", w.stationID, "err", err)
			return nil
		}
		if msg.Seq <= w.cur.Load().seq {
			w.staleDrops.Add(1)
			return nil
		}
		return w.reload(ctx)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Watcher) Close() error {
	return w.feed.Close()
}

// reload fetches the latest snapshot and swaps in the derived view, unless
// a newer one landed concurrently.
func (w *Watcher) reload(ctx context.Context) error {
	snap, err := w.store.LoadSnapshot(ctx, w.stationID)
	if err != nil {
		return err
	}
	next := &view{
		seq:     snap.Seq,
		drivers: snap.Drivers,
		stats:   Aggregate(snap.Drivers),
	}
	for {
		cur := w.cur.Load()
		if next.seq < cur.seq {
			w.staleDrops.Add(1)
			return nil
		}
		if w.cur.CompareAndSwap(cur, next) {
			break
		}
	}
	w.reloads.Add(1)
	w.reconcileSelection(next.stats)
	if w.notify != nil {
		w.notify(w.stationID, next.stats)
	}
	return nil
}

// reconcileSelection keeps the selected wave pointing at a bucket that
// still exists; when it vanished, selection falls back to the first bucket,
// or clears on an empty roster.
func (w *Watcher) reconcileSelection(st *Stats) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selectedWave != "" && st.Wave(w.selectedWave) != nil {
		return
	}
	if len(st.Waves) > 0 {
		w.selectedWave = st.Waves[0].StartTime
	} else {
		w.selectedWave = ""
	}
}

// SelectWave picks a wave bucket for the missing-drivers panel. Selecting a
// time absent from the current snapshot is rejected.
func (w *Watcher) SelectWave(startTime string) bool {
	if w.Stats().Wave(startTime) == nil {
		return false
	}
	w.mu.Lock()
	w.selectedWave = startTime
	w.mu.Unlock()
	return true
}

// SelectedWave returns the current selection, "" when the roster is empty.
func (w *Watcher) SelectedWave() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedWave
}

// Stats returns the latest derived statistics. Always non-nil.
func (w *Watcher) Stats() *Stats {
	return w.cur.Load().stats
}

// Snapshot returns the drivers and seq of the current view.
func (w *Watcher) Snapshot() ([]models.DriverRecord, uint64) {
	v := w.cur.Load()
	return v.drivers, v.seq
}

// Reloads reports how many snapshot generations have been applied.
func (w *Watcher) Reloads() uint64 { return w.reloads.Load() }

// StaleDrops reports how many notifications or loads were discarded as
// older than the applied view.
func (w *Watcher) StaleDrops() uint64 { return w.staleDrops.Load() }
