// Package main seeds a development database with generated users, follow
// edges and posts, then reads one timeline back as a smoke check.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/humancuration/cpc-core/internal/config"
	"github.com/humancuration/cpc-core/internal/db"
	"github.com/humancuration/cpc-core/internal/db/postgres"
	"github.com/humancuration/cpc-core/internal/logging"
	"github.com/humancuration/cpc-core/internal/models"
	"github.com/humancuration/cpc-core/internal/social"
	"github.com/humancuration/cpc-core/internal/timeline"
)

func main() {
	users := flag.Int("users", 25, "number of users to create")
	maxPosts := flag.Int("posts", 8, "maximum posts per user")
	followProb := flag.Float64("follow-prob", 0.2, "probability of a follow edge per ordered user pair")
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	cfg := config.LoadConfig()
	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	assembler := timeline.NewAssembler(store, timeline.NewMemoryCache(time.Minute), cfg.TimelineCacheHead)
	svc := social.NewService(store, assembler, nil)

	start := time.Now()

	ids := make([]models.UUID, 0, *users)
	for i := 0; i < *users; i++ {
		user, err := svc.CreateUser(ctx, "")
		if err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		ids = append(ids, user.ID)
	}

	edges := 0
	for _, follower := range ids {
		for _, followed := range ids {
			if follower == followed || gofakeit.Float64Range(0, 1) >= *followProb {
				continue
			}
			if _, err := svc.Follow(ctx, follower, followed); err != nil {
				log.Fatalf("Failed to create follow edge: %v", err)
			}
			edges++
		}
	}

	posts := 0
	for _, author := range ids {
		n := gofakeit.Number(1, *maxPosts)
		for i := 0; i < n; i++ {
			body := gofakeit.Sentence(gofakeit.Number(5, 20))
			if _, err := svc.CreatePost(ctx, author, body); err != nil {
				log.Fatalf("Failed to create post: %v", err)
			}
			posts++
		}
	}

	log.Printf("Seeded %d users, %d follow edges, %d posts in %s",
		len(ids), edges, posts, time.Since(start).Round(time.Millisecond))

	// Read one feed back so a broken setup fails loudly here, not later.
	if len(ids) > 0 {
		entries, err := svc.Timeline(ctx, ids[0], timeline.Options{Limit: 10})
		if err != nil {
			log.Fatalf("Timeline smoke check failed: %v", err)
		}
		log.Printf("Timeline smoke check: user %s sees %d entries", ids[0], len(entries))
	}
}

// openStore picks the configured backend, matching the server's selection.
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
