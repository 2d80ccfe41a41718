package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jupiterclapton/atelier/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "idempotency:"
	pendingMarker = "pending"
)

// RedisIdempotencyStore mémorise les réponses des POST rejouables (clé Idempotency-Key).
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Reserve : SET NX, un seul appelant gagne la clé. Le marqueur porte un TTL court,
// Save le remplace par la réponse avec le TTL de rejeu.
func (r *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, keyPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis reserve: %w", err)
	}
	return ok, nil
}

func (r *RedisIdempotencyStore) Load(ctx context.Context, key string) (*ports.StoredResponse, error) {
	val, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}
	if string(val) == pendingMarker {
		return nil, nil
	}

	var resp ports.StoredResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, fmt.Errorf("redis load: corrupted entry: %w", err)
	}
	return &resp, nil
}

func (r *RedisIdempotencyStore) Save(ctx context.Context, key string, resp ports.StoredResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return r.client.Set(ctx, keyPrefix+key, data, ttl).Err()
}

// Release libère la clé quand la requête a échoué (le client pourra réessayer).
func (r *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, keyPrefix+key).Err()
}
