package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is a best-effort cross-instance lock
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// StateStore keeps short-lived OAuth state nonces
type StateStore interface {
	SaveState(ctx context.Context, nonce, shelterID string, ttl time.Duration) error
	// ConsumeState returns the shelter the nonce was issued for and deletes it
	ConsumeState(ctx context.Context, nonce string) (shelterID string, found bool, err error)
}

// RedisCache backs Locker and StateStore with Redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Println("Redis connection established")
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, "lock:"+key, time.Now().Unix(), ttl).Result()
}

func (c *RedisCache) Unlock(ctx context.Context, key string) error {
	return c.client.Del(ctx, "lock:"+key).Err()
}

func (c *RedisCache) SaveState(ctx context.Context, nonce, shelterID string, ttl time.Duration) error {
	return c.client.Set(ctx, "oauth_state:"+nonce, shelterID, ttl).Err()
}

func (c *RedisCache) ConsumeState(ctx context.Context, nonce string) (string, bool, error) {
	shelterID, err := c.client.GetDel(ctx, "oauth_state:"+nonce).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return shelterID, true, nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
