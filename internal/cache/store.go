package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StringStore holds rendered strings such as assembled knowledge contexts.
// Implementations fail open: backend errors read as misses.
type StringStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
	Delete(ctx context.Context, key string) bool
	Clear(ctx context.Context) int
}

// MemoryStringStore is a StringStore over a process-local TTL map.
type MemoryStringStore struct {
	entries *TTL[string]
}

func NewMemoryStringStore(ttl time.Duration) *MemoryStringStore {
	return &MemoryStringStore{entries: NewTTL[string](ttl)}
}

func (s *MemoryStringStore) SetClock(now func() time.Time) { s.entries.SetClock(now) }

func (s *MemoryStringStore) Get(_ context.Context, key string) (string, bool) {
	return s.entries.Get(key)
}

func (s *MemoryStringStore) Set(_ context.Context, key, value string) {
	s.entries.Put(key, value)
}

func (s *MemoryStringStore) Delete(_ context.Context, key string) bool {
	return s.entries.Delete(key)
}

func (s *MemoryStringStore) Clear(context.Context) int {
	return s.entries.Clear()
}

func (s *MemoryStringStore) Sweep() int {
	return s.entries.Sweep()
}

// RedisStringStore shares entries between gateway instances.
type RedisStringStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStringStore(log *slog.Logger, client *redis.Client, prefix string, ttl time.Duration) *RedisStringStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStringStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: log.With(slog.String("component", "redis_cache")),
	}
}

func (s *RedisStringStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStringStore) Get(ctx context.Context, key string) (string, bool) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("redis get failed", slog.String("key", key), slog.Any("error", err))
		}
		return "", false
	}
	return value, true
}

func (s *RedisStringStore) Set(ctx context.Context, key, value string) {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		s.logger.Warn("redis set failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *RedisStringStore) Delete(ctx context.Context, key string) bool {
	removed, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		s.logger.Warn("redis delete failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return removed > 0
}

// Clear removes every key under the store prefix.
func (s *RedisStringStore) Clear(ctx context.Context) int {
	var (
		cursor  uint64
		removed int
	)
	match := s.prefix + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			s.logger.Warn("redis scan failed", slog.Any("error", err))
			return removed
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				s.logger.Warn("redis delete failed", slog.Any("error", err))
				return removed
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed
		}
	}
}

// NewRedisClient builds a client from address parts. An empty address
// returns nil.
func NewRedisClient(addr, password string, db int) *redis.Client {
	if strings.TrimSpace(addr) == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
