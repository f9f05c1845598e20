package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseLockScript deletes the lock only while it still holds the caller's token
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireLock acquires a distributed lock. The returned token must be passed to ReleaseLock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockName(lockKey), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a lock if it is still held with token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockName(lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// ClaimOnce records key and reports whether this is the first claim within ttl
func (c *Client) ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), time.Now().Unix(), ttl).Result()
}

func lockName(key string) string {
	return fmt.Sprintf("lock:%s", key)
}
