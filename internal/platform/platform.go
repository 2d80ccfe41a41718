// Package platform regroupe l'amorçage partagé par le serveur et la CLI :
// logger, store (mémoire ou Postgres) et données de démonstration.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupiterclapton/atelier/config"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/ports"
)

func InitLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Env == "local" {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Env == "local" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// Store expose le Profile Store et le journal de réparation, portés par le même backend.
type Store struct {
	Profiles ports.ProfileStore
	Journal  ports.RepairJournal
	Close    func()
}

func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg.Store == config.StoreMemory {
		mem := repository.NewMemoryStore()
		if cfg.Env == "local" {
			SeedDemo(mem)
		}
		return &Store{Profiles: mem, Journal: mem, Close: func() {}}, nil
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DBUrl)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	// Instrumentation SQL (requêtes visibles dans Jaeger)
	dbConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	pg := repository.NewPostgresStore(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{Profiles: pg, Journal: pg, Close: pool.Close}, nil
}

// SeedDemo : jeu minimal pour essayer l'API en local sans base.
func SeedDemo(s *repository.MemoryStore) {
	for _, id := range []string{"alice", "bob", "carol"} {
		s.PutPerson(domain.NewPerson(id))
	}
	s.PutArtist(domain.NewArtist("atelier-carol", "carol"))

	artist := domain.NewArtist("studio-bob", "bob")
	artist.Artworks = domain.NewSet("nocturne")
	s.PutArtist(artist)
	s.PutArtwork(domain.NewArtwork("nocturne", artist.ID))
}
