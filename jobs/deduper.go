package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers completed job ids so redeliveries can be skipped. Keys
// are added only after a job finishes, so a worker that dies mid-job leaves
// the message eligible for redelivery.
type Deduper interface {
	// Seen reports whether key was already recorded.
	Seen(ctx context.Context, key string) (bool, error)
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, key string) (bool, error)
}

// RedisDeduper stores handled job ids in Redis so every worker instance
// shares the same view.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper namespacing keys with prefix.
func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	if prefix == "" {
		prefix = "jobs"
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisDeduper) key(id string) string {
	return r.prefix + ":" + id
}

func (r *RedisDeduper) Add(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(key), 1, r.ttl).Result()
}

func (r *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	return n > 0, err
}
