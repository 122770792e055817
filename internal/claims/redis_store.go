// Package claims is the authorization-claims side channel. Roles written
// here are what access tokens are minted from, so a role change only takes
// effect for a live session after the claims entry is rewritten and the
// session refreshes its token.
package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type roleClaim struct {
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisStore holds per-principal role claims in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "claims:"}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "claims:"}
}

func (s *RedisStore) key(principalID string) string {
	return s.prefix + principalID
}

// SetRoleClaim writes the role claim for a principal. The write is
// all-or-nothing; there is no partial application.
func (s *RedisStore) SetRoleClaim(ctx context.Context, principalID, role string) error {
	data, err := json.Marshal(roleClaim{Role: role, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal role claim: %w", err)
	}
	if err := s.client.Set(ctx, s.key(principalID), data, 0).Err(); err != nil {
		return fmt.Errorf("set role claim: %w", err)
	}
	return nil
}

// GetRoleClaim reads the role claim for a principal. A principal with no
// claim entry reports ok=false; callers fall back to the profile record.
func (s *RedisStore) GetRoleClaim(ctx context.Context, principalID string) (string, bool, error) {
	data, err := s.client.Get(ctx, s.key(principalID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get role claim: %w", err)
	}

	var claim roleClaim
	if err := json.Unmarshal([]byte(data), &claim); err != nil {
		return "", false, fmt.Errorf("unmarshal role claim: %w", err)
	}
	return claim.Role, true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
