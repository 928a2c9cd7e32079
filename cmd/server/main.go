// Package main provides the local development server. It exposes the core
// operations over REST on localhost, a WebSocket stream of domain events,
// and Prometheus metrics. Store, cache and event backends are selected from
// the environment: SQLite / Postgres, in-memory / Redis, none / Kafka.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/humancuration/cpc-core/internal/config"
	"github.com/humancuration/cpc-core/internal/db"
	"github.com/humancuration/cpc-core/internal/db/postgres"
	"github.com/humancuration/cpc-core/internal/events"
	"github.com/humancuration/cpc-core/internal/facade"
	"github.com/humancuration/cpc-core/internal/logging"
	"github.com/humancuration/cpc-core/internal/media"
	"github.com/humancuration/cpc-core/internal/social"
	"github.com/humancuration/cpc-core/internal/timeline"
)

func main() {
	cfg := config.LoadConfig()
	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logging.Error("Failed to open store", err, nil)
		os.Exit(1)
	}
	defer closeStore()

	cache, err := openCache(cfg)
	if err != nil {
		logging.Error("Failed to connect feed cache", err, nil)
		os.Exit(1)
	}

	hub := NewWSHub()
	publisher := buildPublisher(cfg, hub)
	defer publisher.Close()

	assembler := timeline.NewAssembler(store, cache, cfg.TimelineCacheHead)
	svc := social.NewService(store, assembler, publisher)
	core := facade.New(svc)

	thumbnails := media.NewQueue(cfg.ThumbnailQueueSize, cfg.ThumbnailWorkers)
	thumbnails.Start(ctx)
	defer thumbnails.Stop()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	addRoutes(r, core, thumbnails)
	r.GET("/ws", gin.WrapF(HandleWebSocket(hub)))

	logging.Info("CPC social core server starting", map[string]interface{}{
		"addr":     cfg.HTTPAddr,
		"postgres": cfg.UsePostgres(),
		"redis":    cfg.UseRedis(),
		"kafka":    cfg.UseKafka(),
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Error("Server stopped", err, nil)
		os.Exit(1)
	}
}

// openStore picks the configured backend. SQLite is the default; setting
// CPC_DATABASE_URL switches to Postgres.
func openStore(ctx context.Context, cfg *config.Config) (db.SocialRepository, func(), error) {
	if cfg.UsePostgres() {
		store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	migrator := db.NewEmbeddedMigrator(database.Write)
	if err := migrator.Initialize(); err != nil {
		database.Close()
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		database.Close()
		return nil, nil, err
	}
	repo := db.NewRepository(database)
	return repo, func() {
		repo.Close()
		database.Close()
	}, nil
}

// openCache picks the configured feed cache backend.
func openCache(cfg *config.Config) (timeline.Cache, error) {
	ttl := time.Duration(cfg.TimelineCacheTTLSeconds) * time.Second
	if cfg.UseRedis() {
		return timeline.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, ttl)
	}
	return timeline.NewMemoryCache(ttl), nil
}

// buildPublisher always includes the WebSocket hub; Kafka joins the fanout
// when brokers are configured.
func buildPublisher(cfg *config.Config, hub *WSHub) events.Publisher {
	if !cfg.UseKafka() {
		return hub
	}
	kafka := events.NewKafkaPublisher(cfg.Brokers(), cfg.KafkaTopic, cfg.KafkaAcks)
	return events.NewFanout(hub, kafka)
}
