package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/jupiterclapton/atelier/config"
	"github.com/jupiterclapton/atelier/internal/adapters/primary/events"
	"github.com/jupiterclapton/atelier/internal/adapters/primary/rest"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/cache"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/eventbroker"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/graphindex"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/security"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/telemetry"
	"github.com/jupiterclapton/atelier/internal/core/ports"
	"github.com/jupiterclapton/atelier/internal/core/services"
	"github.com/jupiterclapton/atelier/internal/platform"
)

func main() {
	// 1. Config & Logger
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	platform.InitLogger(cfg)
	slog.Info("🚀 Starting Atelier engagement service", "config", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Télémétrie (Tracing + Prometheus)
	tp, err := telemetry.InitTracer(ctx, "atelier", cfg.Env, cfg.OtelEndpoint)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	// 3. Infrastructure : Profile Store
	store, err := platform.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("Unable to open profile store", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("✅ Profile store ready", "store", cfg.Store)

	// 4. Infrastructure : Redis (idempotence), optionnel
	var idempotency ports.IdempotencyStore = cache.NewMemoryIdempotencyStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			slog.Warn("Failed to instrument redis", "error", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("Unable to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		idempotency = cache.NewRedisIdempotencyStore(rdb)
		slog.Info("✅ Connected to Redis")
	}

	// 5. Infrastructure : NATS JetStream, optionnel (sinon les événements restent en mémoire)
	var publisher ports.EventPublisher = eventbroker.NewRecorder()
	var js jetstream.JetStream
	if cfg.NatsUrl != "" {
		nc, err := nats.Connect(cfg.NatsUrl, nats.Name("atelier"))
		if err != nil {
			slog.Error("Unable to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()

		js, err = jetstream.New(nc)
		if err != nil {
			slog.Error("Unable to init JetStream", "error", err)
			os.Exit(1)
		}
		broker, err := eventbroker.NewNatsBroker(ctx, js)
		if err != nil {
			slog.Error("Unable to init event broker", "error", err)
			os.Exit(1)
		}
		publisher = broker
		slog.Info("✅ NATS JetStream connected")
	}

	// 6. Infrastructure : Neo4j (projection du graphe), optionnel
	var graph ports.GraphIndex
	if cfg.Neo4jURI != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
		if err != nil {
			slog.Error("Failed to create neo4j driver", "error", err)
			os.Exit(1)
		}
		defer driver.Close(context.Background())

		verifyCtx, verifyCancel := context.WithTimeout(ctx, 5*time.Second)
		err = driver.VerifyConnectivity(verifyCtx)
		verifyCancel()
		if err != nil {
			slog.Error("Failed to connect to Neo4j", "error", err)
			os.Exit(1)
		}

		index := graphindex.NewNeo4jIndex(driver)
		if err := index.EnsureSchema(ctx); err != nil {
			slog.Warn("Schema init failed (might be fine if already exists)", "error", err)
		}
		graph = index
		slog.Info("✅ Connected to Neo4j")

		if js != nil {
			consumer, err := events.NewEdgeProjector(index).Start(ctx, js)
			if err != nil {
				slog.Error("Unable to start graph projection consumer", "error", err)
				os.Exit(1)
			}
			defer consumer.Stop()
			slog.Info("🎧 Graph projection consumer started", "consumer", events.ConsumerName)
		}
	}

	// 7. Sécurité
	tokens, err := loadTokenValidator(cfg)
	if err != nil {
		slog.Error("Failed to init JWT validator", "error", err)
		os.Exit(1)
	}

	// 8. Wiring : Adapters -> Services
	policy := services.MirrorPolicy{
		MaxTries:        cfg.MirrorMaxTries,
		InitialInterval: cfg.MirrorInitialInterval,
		MaxInterval:     cfg.MirrorMaxInterval,
	}
	relationships := services.NewRelationshipService(store.Profiles, store.Journal, publisher, graph, metrics, policy)
	engagement := services.NewEngagementService(store.Profiles, publisher, metrics)
	repairs := services.NewRepairService(store.Profiles, store.Journal, metrics, cfg.RepairBatchSize)

	api := rest.NewServer(relationships, engagement, repairs, rest.Options{
		Tokens:             tokens,
		Idempotency:        idempotency,
		Gatherer:           registry,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSOrigins:        cfg.CORSOriginList(),
	})

	// 9. Serveur gRPC (health + reflection)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen", "port", cfg.GRPCPort, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	go func() {
		slog.Info("📡 gRPC health listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server error", "error", err)
		}
	}()

	// 10. Serveur HTTP
	srvHTTP := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("📡 HTTP listening", "port", cfg.HTTPPort)
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// 11. Arrêt propre
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("🛑 Shutting down server...")

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	slog.Info("👋 Server exited")
}

// loadTokenValidator lit la clé publique RS256. En local sans clé, une paire éphémère
// est générée et un token admin de développement est loggé.
func loadTokenValidator(cfg *config.Config) (ports.TokenValidator, error) {
	if cfg.JWTPublicKeyPath != "" {
		pem, err := os.ReadFile(cfg.JWTPublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		return security.NewJWTValidator(pem)
	}

	if cfg.Env != "local" {
		slog.Warn("No JWT public key configured: every authenticated route will answer 401")
		return nil, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	validator, err := security.NewJWTValidator(security.PublicKeyPEM(&key.PublicKey))
	if err != nil {
		return nil, err
	}

	issuer := security.NewJWTIssuerFromKey(key)
	for _, who := range []struct{ id, role string }{{"alice", ""}, {"bob", ""}, {"admin", ports.RoleAdmin}} {
		token, err := issuer.Issue(who.id, who.role, 12*time.Hour)
		if err != nil {
			return nil, err
		}
		slog.Info("🔑 Dev token (ephemeral key)", "user_id", who.id, "role", who.role, "token", token)
	}
	return validator, nil
}
