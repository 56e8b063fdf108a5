package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const credentialKeyPrefix = "sma:session:"

// CredentialRedisRepository stores the credential bundle as one Redis hash per namespace.
type CredentialRedisRepository struct {
	client *redis.Client
	hash   string
}

// NewCredentialRedisRepository creates a Redis backed credential store.
func NewCredentialRedisRepository(client *redis.Client, namespace string) *CredentialRedisRepository {
	return &CredentialRedisRepository{client: client, hash: credentialKeyPrefix + namespace}
}

// Get returns the value for key; found is false when the field is absent.
func (r *CredentialRedisRepository) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.HGet(ctx, r.hash, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key.
func (r *CredentialRedisRepository) Put(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

// Delete removes key. HDEL on an absent field is a no-op.
func (r *CredentialRedisRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.hash, key).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", key, err)
	}
	return nil
}
