// Package websocket pushes roster/statistics updates to connected station
// terminals.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

type stationMessage struct {
	stationID string
	data      []byte
}

// Hub tracks connected terminals grouped by station and fans messages out
// to every terminal watching that station. A client whose send buffer is
// full is dropped rather than allowed to stall the rest.
type Hub struct {
	mu       sync.RWMutex
	stations map[string]map[*Client]struct{}

	broadcast  chan stationMessage
	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		stations:   make(map[string]map[*Client]struct{}),
		broadcast:  make(chan stationMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes registrations and broadcasts until the context ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.stations[c.stationID]
			if !ok {
				set = make(map[*Client]struct{})
				h.stations[c.stationID] = set
			}
			set[c] = struct{}{}
			n := len(set)
			h.mu.Unlock()
			slog.Info("terminal connected", "station", c.stationID, "clients", n)

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.stations[msg.stationID] {
				select {
				case c.send <- msg.data:
				default:
					// Slow consumer: disconnect instead of queueing forever.
					h.remove(c)
					slog.Warn("terminal dropped, send buffer full", "station", c.stationID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove deletes the client and closes its send channel. Callers hold mu.
func (h *Hub) remove(c *Client) {
	set, ok := h.stations[c.stationID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.stations, c.stationID)
	}
	close(c.send)
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	h.remove(c)
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.stations {
		for c := range set {
			close(c.send)
		}
	}
	h.stations = make(map[string]map[*Client]struct{})
}

// BroadcastToStation queues a JSON payload for every terminal watching a
// station. Payloads that fail to marshal are dropped with a log line.
func (h *Hub) BroadcastToStation(stationID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("broadcast payload marshal failed", "station", stationID, "err", err)
		return
	}
	h.broadcast <- stationMessage{stationID: stationID, data: data}
}

// ClientCount reports how many terminals watch a station.
func (h *Hub) ClientCount(stationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.stations[stationID])
}
