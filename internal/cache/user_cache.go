package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"photoshare/internal/model"
)

// UserCache is a Redis-backed point cache for identity snapshots, keyed
// "user:<email>" with a fixed per-key TTL. It is the only shared mutable
// resource in the auth path; the Redis client handles concurrent access.
//
// Every backend failure is reported as a miss. A broken cache degrades
// resolve latency, never correctness.
type UserCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(ctx context.Context, redisURL string, ttl time.Duration) (*UserCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 900 * time.Second
	}

	return &UserCache{client: client, ttl: ttl}, nil
}

// Get returns the cached identity for email, or a miss if the entry is
// absent, expired, corrupt, or the cache is unreachable.
func (c *UserCache) Get(ctx context.Context, email string) (*model.User, bool) {
	data, err := c.client.Get(ctx, userKey(email)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("identity cache get failed, treating as miss", "error", err)
		return nil, false
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		// Corrupt entry. Drop it so the next resolve repopulates.
		c.client.Del(ctx, userKey(email))
		slog.Warn("identity cache entry corrupt, dropped", "email", email)
		return nil, false
	}

	return &user, true
}

// Set stores an identity snapshot, overwriting any existing entry for the
// same email. Write failures are logged and swallowed.
func (c *UserCache) Set(ctx context.Context, user model.User) {
	data, err := json.Marshal(user)
	if err != nil {
		slog.Warn("identity cache marshal failed", "email", user.Email, "error", err)
		return
	}

	if err := c.client.Set(ctx, userKey(user.Email), data, c.ttl).Err(); err != nil {
		slog.Warn("identity cache set failed", "email", user.Email, "error", err)
	}
}

func (c *UserCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *UserCache) Close() error {
	return c.client.Close()
}

func userKey(email string) string {
	return "user:" + email
}
