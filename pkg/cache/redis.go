package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces result entries so a shared Redis can host other
// workloads without key collisions.
const keyPrefix = "rampart:result:"

// Redis is the shared store for multi-instance deployments. SETNX gives the
// write-once guarantee atomically across instances: whichever instance
// finishes analyzing a fingerprint first wins, every later write is rejected.
type Redis struct {
	client *redis.Client
	ttl    time.Duration

	hits     atomic.Int64
	misses   atomic.Int64
	writes   atomic.Int64
	rejected atomic.Int64
}

// NewRedis connects and pings the server; a dead Redis at startup is a
// configuration error, not something to limp along with.
func NewRedis(addr, password string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	payload, err := r.client.Get(ctx, keyPrefix+fingerprint).Bytes()
	if err == redis.Nil {
		r.misses.Add(1)
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	r.hits.Add(1)
	return payload, nil
}

func (r *Redis) Put(ctx context.Context, fingerprint string, payload []byte) (bool, error) {
	stored, err := r.client.SetNX(ctx, keyPrefix+fingerprint, payload, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if stored {
		r.writes.Add(1)
	} else {
		r.rejected.Add(1)
	}
	return stored, nil
}

func (r *Redis) Delete(ctx context.Context, fingerprint string) (bool, error) {
	n, err := r.client.Del(ctx, keyPrefix+fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	var entries int64
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", 1000).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("redis scan: %w", err)
		}
		entries += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return Stats{
		Entries:  entries,
		Hits:     r.hits.Load(),
		Misses:   r.misses.Load(),
		Writes:   r.writes.Load(),
		Rejected: r.rejected.Load(),
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
