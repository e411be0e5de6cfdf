package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/wavecheck/wavecheck/internal/services/rosterwatch"
	"github.com/wavecheck/wavecheck/internal/websocket"
)

type stationAPIOpts struct {
	httpAddr string

	onListen func(httpAddr string)
}

type stationAPIDeps struct {
	api      http.Handler
	assets   http.Handler
	hub      *websocket.Hub
	watchers *rosterwatch.Registry
}

// splitHandler routes API and websocket traffic past the offline asset
// cache; everything else is a document or asset fetch.
func splitHandler(api, assets http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws/") {
			api.ServeHTTP(w, r)
			return
		}
		assets.ServeHTTP(w, r)
	})
}

func runStationAPI(ctx context.Context, opts stationAPIOpts, deps stationAPIDeps) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	if deps.hub != nil {
		go deps.hub.Run(ctx)
	}

	srv := &http.Server{Handler: splitHandler(deps.api, deps.assets)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if deps.watchers != nil {
			deps.watchers.Close()
		}
	}()

	slog.Info("station API listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
