// Package cache wraps Redis for the two things the ranking pipeline
// needs a shared cache for: memoizing the ML client's three remote
// operations (importance, summary, embedding) and holding the
// at-least-once embedding backlog queue the embedding pipeline drains.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache is the minimal key/value surface the ML client and embedding
// pipeline depend on, kept narrow so a test double is trivial to
// write.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}

// Config configures the Redis connection.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// ErrCacheMiss is returned by Get when the key is absent, distinct
// from transport errors so callers can fall through to the remote
// ML call without treating a miss as TransientRemote.
var ErrCacheMiss = fmt.Errorf("cache: key not found")

// RedisCache implements Cache on top of go-redis/v8.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache dials Redis and verifies connectivity with a ping.
func NewRedisCache(cfg *Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect to redis: %w", err)
	}

	return &RedisCache{client: client, prefix: cfg.Prefix}, nil
}

func (r *RedisCache) fullKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

// Set marshals value as JSON and stores it with ttl (0 = no expiry).
func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.fullKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Get unmarshals the cached value into dest, returning ErrCacheMiss
// when the key is absent.
func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, r.fullKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		return fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}
	return nil
}

// Delete removes a key; deleting an absent key is not an error.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, r.fullKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: exists %s: %w", key, err)
	}
	return count > 0, nil
}

// Health pings Redis.
func (r *RedisCache) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// BacklogQueue is the at-least-once retry queue the embedding pipeline
// pushes a news ID onto when the remote embed call fails, so a later
// drain pass can retry it without replaying the whole Kafka topic.
type BacklogQueue struct {
	client *redis.Client
	key    string
}

// NewBacklogQueue wraps a single Redis list as a FIFO backlog.
func NewBacklogQueue(r *RedisCache, name string) *BacklogQueue {
	return &BacklogQueue{client: r.client, key: r.fullKey("backlog:" + name)}
}

// Push appends an ID to the back of the backlog.
func (q *BacklogQueue) Push(ctx context.Context, id string) error {
	return q.client.RPush(ctx, q.key, id).Err()
}

// Pop removes and returns the ID at the front of the backlog, or ""
// with redis.Nil wrapped into ErrCacheMiss when empty.
func (q *BacklogQueue) Pop(ctx context.Context) (string, error) {
	id, err := q.client.LPop(ctx, q.key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("cache: backlog pop: %w", err)
	}
	return id, nil
}

// Len reports the current backlog depth, used by the embedding
// pipeline's lag gauge.
func (q *BacklogQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: backlog len: %w", err)
	}
	return n, nil
}

// SingleFlightLock is a short-lived distributed lock guarding the
// embedding pipeline so two consumer instances never embed the same
// news item concurrently.
type SingleFlightLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// NewSingleFlightLock builds a lock scoped to one news ID.
func NewSingleFlightLock(r *RedisCache, newsID string, ttl time.Duration) *SingleFlightLock {
	return &SingleFlightLock{
		client: r.client,
		key:    r.fullKey("lock:embed:" + newsID),
		value:  fmt.Sprintf("%d", time.Now().UnixNano()),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock, returning false if another
// worker already holds it.
func (l *SingleFlightLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: acquire lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock if it is still held by this holder.
func (l *SingleFlightLock) Release(ctx context.Context) error {
	current, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("cache: release lock: %w", err)
	}
	if current == l.value {
		return l.client.Del(ctx, l.key).Err()
	}
	return nil
}
