package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/wavecheck/wavecheck/internal/services/accounts"
)

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

func TestHub_BroadcastReachesOnlyStation(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := newClient("STA", nil, hub)
	b := newClient("STB", nil, hub)
	hub.register <- a
	hub.register <- b
	waitFor(t, func() bool { return hub.ClientCount("STA") == 1 && hub.ClientCount("STB") == 1 })

	hub.BroadcastToStation("STA", map[string]int{"total": 3})

	select {
	case msg := <-a.send:
		var got map[string]int
		require.NoError(t, json.Unmarshal(msg, &got))
		require.Equal(t, 3, got["total"])
	case <-time.After(time.Second):
		t.Fatal("station STA client got nothing")
	}

	select {
	case <-b.send:
		t.Fatal("station STB client should not receive STA broadcasts")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowConsumerDropped(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := newClient("STA", nil, hub)
	hub.register <- c
	waitFor(t, func() bool { return hub.ClientCount("STA") == 1 })

	// Nobody drains c.send; once the buffer is full the hub disconnects it.
	for i := 0; i < cap(c.send)+1; i++ {
		hub.BroadcastToStation("STA", map[string]int{"i": i})
	}
	waitFor(t, func() bool { return hub.ClientCount("STA") == 0 })
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := newClient("STA", nil, hub)
	hub.register <- c
	waitFor(t, func() bool { return hub.ClientCount("STA") == 1 })

	hub.unregister <- c
	waitFor(t, func() bool { return hub.ClientCount("STA") == 0 })

	// The send channel is closed exactly once.
	_, open := <-c.send
	require.False(t, open)
}

type fakeAuth struct{}

func (fakeAuth) Verify(ctx context.Context, token string) (*accounts.Identity, error) {
	switch token {
	case "elevated":
		return &accounts.Identity{AccountID: "a1", Role: "L4+"}, nil
	case "scoped":
		return &accounts.Identity{AccountID: "a2", Role: "Station", Stations: []string{"STA"}}, nil
	default:
		return nil, errors.New("bad token")
	}
}

func wsURL(t *testing.T, srv *httptest.Server, path string) string {
	t.Helper()
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHandler_EndToEnd(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	r := chi.NewRouter()
	r.Get("/ws/stations/{stationID}", Handler(hub, fakeAuth{}, []string{"*"}))
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(t, srv, "/ws/stations/STA?token=elevated"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitFor(t, func() bool { return hub.ClientCount("STA") == 1 })

	hub.BroadcastToStation("STA", map[string]string{"hello": "board"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"hello":"board"}`, string(msg))
}

func TestHandler_AuthFailures(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	r := chi.NewRouter()
	r.Get("/ws/stations/{stationID}", Handler(hub, fakeAuth{}, []string{"*"}))
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(t, srv, "/ws/stations/STA?token=wrong"), nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Station-scoped operator cannot watch a foreign station.
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(t, srv, "/ws/stations/STB?token=scoped"), nil)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(t, srv, "/ws/stations/STA?token=scoped"), nil)
	require.NoError(t, err)
	conn.Close()
}
