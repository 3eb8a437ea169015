package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/resilience"
)

// KV is the subset of the Redis client a RedisIndex needs.
type KV interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// RedisIndex keeps one channel in Redis under "<prefix>:blob:<channel>:<id>".
// Writes go through a circuit breaker so an unreachable server fails fast.
type RedisIndex struct {
	kv      KV
	prefix  string
	channel Channel
	breaker *resilience.Breaker
}

func NewRedisIndex(kv KV, prefix string, ch Channel, breaker *resilience.Breaker) *RedisIndex {
	if breaker == nil {
		breaker = resilience.NewBreaker("redis-blob-"+string(ch), resilience.BreakerConfig{})
	}
	return &RedisIndex{kv: kv, prefix: prefix, channel: ch, breaker: breaker}
}

func (r *RedisIndex) key(docID index.DocID) string {
	return fmt.Sprintf("%s:blob:%s:%d", r.prefix, r.channel, docID)
}

func (r *RedisIndex) Put(ctx context.Context, docID index.DocID, record []byte) error {
	return r.breaker.Execute(func() error {
		return r.kv.SetBytes(ctx, r.key(docID), record, 0)
	})
}

func (r *RedisIndex) Get(ctx context.Context, docID index.DocID) ([]byte, error) {
	data, err := r.kv.GetBytes(ctx, r.key(docID))
	if redis.IsNilError(err) {
		return nil, fmt.Errorf("blob for doc %d: %w", docID, apperrors.ErrNotFound)
	}
	return data, err
}

func (r *RedisIndex) Ping(ctx context.Context) error {
	return r.kv.Ping(ctx)
}

// Close is a no-op; the shared Redis client is closed by its owner.
func (r *RedisIndex) Close() error { return nil }
