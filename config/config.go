package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const ConfigPathEnvVar = "CONFIG_PATH"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config : les clés koanf sont les noms des variables d'environnement en minuscules.
type Config struct {
	Env      string `koanf:"app_env"` // "local", "dev", "prod"
	HTTPPort string `koanf:"http_port"`
	GRPCPort string `koanf:"grpc_port"` // health + reflection

	// Infrastructure (vide = désactivé, sauf le store)
	Store         string `koanf:"store"` // "memory" ou "postgres"
	DBUrl         string `koanf:"db_url"`
	RedisAddr     string `koanf:"redis_addr"`
	NatsUrl       string `koanf:"nats_url"`
	Neo4jURI      string `koanf:"neo4j_uri"`
	Neo4jUser     string `koanf:"neo4j_user"`
	Neo4jPassword string `koanf:"neo4j_password"`

	// Sécurité
	JWTPublicKeyPath   string `koanf:"jwt_public_key_path"`
	RateLimitPerMinute int    `koanf:"rate_limit_per_minute"`
	CORSOrigins        string `koanf:"cors_origins"` // séparées par des virgules

	// Écriture du miroir
	MirrorMaxTries        uint          `koanf:"mirror_max_tries"`
	MirrorInitialInterval time.Duration `koanf:"mirror_initial_interval"`
	MirrorMaxInterval     time.Duration `koanf:"mirror_max_interval"`

	RepairBatchSize int `koanf:"repair_batch_size"`

	// Telemetry
	OtelEndpoint string `koanf:"otel_exporter_otlp_endpoint"` // URL du collecteur (Jaeger/Tempo)
}

func defaultConfig() Config {
	return Config{
		Env:                   "local",
		HTTPPort:              "8080",
		GRPCPort:              "50055", // Identité=50051, Graph=50052, Post=50053, Feed=50054
		Store:                 StoreMemory,
		RateLimitPerMinute:    120,
		CORSOrigins:           "*",
		MirrorMaxTries:        3,
		MirrorInitialInterval: 20 * time.Millisecond,
		MirrorMaxInterval:     200 * time.Millisecond,
		RepairBatchSize:       500,
		OtelEndpoint:          "localhost:4317",
	}
}

// Load empile : défauts -> fichier YAML optionnel (CONFIG_PATH) -> variables d'environnement.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// HTTP_PORT -> http_port
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
}

// Validate refuse de démarrer avec une config cassée.
func (c *Config) Validate() error {
	var errs []error
	if c.Store != StoreMemory && c.Store != StorePostgres {
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store))
	}
	if c.Store == StorePostgres && c.DBUrl == "" {
		errs = append(errs, errors.New("DB_URL is required when STORE=postgres"))
	}
	if c.Env == "prod" && c.JWTPublicKeyPath == "" {
		errs = append(errs, errors.New("JWT_PUBLIC_KEY_PATH is required in production"))
	}
	if c.Env == "prod" && c.Store == StoreMemory {
		errs = append(errs, errors.New("STORE=memory is not allowed in production"))
	}
	if c.MirrorMaxTries == 0 {
		errs = append(errs, errors.New("MIRROR_MAX_TRIES must be at least 1"))
	}
	if c.MirrorMaxInterval < c.MirrorInitialInterval {
		errs = append(errs, errors.New("MIRROR_MAX_INTERVAL must be >= MIRROR_INITIAL_INTERVAL"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) CORSOriginList() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// LogValue masque les secrets quand la config est loggée au démarrage.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("env", c.Env),
		slog.String("http_port", c.HTTPPort),
		slog.String("grpc_port", c.GRPCPort),
		slog.String("store", c.Store),
		slog.Bool("db", c.DBUrl != ""),
		slog.String("redis_addr", c.RedisAddr),
		slog.String("nats_url", c.NatsUrl),
		slog.String("neo4j_uri", c.Neo4jURI),
		slog.Bool("jwt", c.JWTPublicKeyPath != ""),
		slog.Uint64("mirror_max_tries", uint64(c.MirrorMaxTries)),
	)
}
