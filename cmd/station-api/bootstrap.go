package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/wavecheck/wavecheck/config"
	"github.com/wavecheck/wavecheck/internal/api/stationapi"
	"github.com/wavecheck/wavecheck/internal/assetcache"
	"github.com/wavecheck/wavecheck/internal/broker/kafka"
	"github.com/wavecheck/wavecheck/internal/cache/rediscache"
	"github.com/wavecheck/wavecheck/internal/services/accounts"
	"github.com/wavecheck/wavecheck/internal/services/roster"
	"github.com/wavecheck/wavecheck/internal/services/rosterwatch"
	"github.com/wavecheck/wavecheck/internal/storage/pgroster"
	"github.com/wavecheck/wavecheck/internal/websocket"
)

type stationAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   stationAPIOpts
	deps   stationAPIDeps

	producer *kafka.Producer
	closeDB  func()
}

func mustBootstrapStationAPI() *stationAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse failed: %v", err))
	}

	httpAddr := cfg.WaveCheck.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.RosterChangedTopicName
	if topic == "" {
		topic = "roster.changed"
	}
	consumerGroup := cfg.WaveCheck.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "station-api"
	}
	if cfg.WaveCheck.JWTSecret == "" {
		panic("wavecheck.jwt_secret is required")
	}
	sessionTTL := time.Duration(cfg.WaveCheck.SessionTTLSeconds) * time.Second
	assetTTL := time.Duration(cfg.WaveCheck.AssetCacheTTLSeconds) * time.Second
	assetRoot := cfg.WaveCheck.AssetRoot
	if assetRoot == "" {
		assetRoot = "./web"
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	limiter := rediscache.NewRateLimiter(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)

	rosterSvc := roster.New(st, producer, topic)
	accountsSvc := accounts.New(st, rc, limiter, cfg.WaveCheck.JWTSecret, sessionTTL, int64(cfg.WaveCheck.LoginRateLimitPerMinute))

	hub := websocket.NewHub()
	// Each instance consumes the full change feed under its own group so
	// every running server keeps its own watchers current.
	instance := uuid.NewString()[:8]
	newFeed := func(stationID string) rosterwatch.ChangeFeed {
		group := fmt.Sprintf("%s-%s-%s", consumerGroup, stationID, instance)
		return kafka.NewConsumer(brokers, topic, group)
	}
	watchers := rosterwatch.NewRegistry(st, newFeed, func(stationID string, stats *rosterwatch.Stats) {
		hub.BroadcastToStation(stationID, map[string]interface{}{
			"type":  "stats",
			"stats": stats,
		})
	})

	api := stationapi.New(rosterSvc, watchers, accountsSvc, hub, cfg.WaveCheck.AllowedOrigins)
	assets := assetcache.NewHandler(http.FileServer(http.Dir(assetRoot)), rc, assetTTL)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &stationAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts:   stationAPIOpts{httpAddr: httpAddr},
		deps: stationAPIDeps{
			api:      api.Router(),
			assets:   assets,
			hub:      hub,
			watchers: watchers,
		},
		producer: producer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgroster.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgroster.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *stationAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *stationAPIApp) Run() error {
	return runStationAPI(a.ctx, a.opts, a.deps)
}
