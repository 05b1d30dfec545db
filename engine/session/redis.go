package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each conversation as a Redis list of JSON turns.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Client    redis.Cmdable
	KeyPrefix string        // default "docqa:session:"
	TTL       time.Duration // default 24h, refreshed on every append
}

func NewRedisStore(cfg RedisConfig) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "docqa:session:"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &RedisStore{client: cfg.Client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("session: ping redis: %w", err)
	}
	return c, nil
}

func (s *RedisStore) key(id string) string { return s.keyPrefix + id }

func (s *RedisStore) History(ctx context.Context, id string, limit int) ([]domain.Turn, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	vals, err := s.client.LRange(ctx, s.key(id), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: lrange %s: %w", id, err)
	}
	turns := make([]domain.Turn, 0, len(vals))
	for _, v := range vals {
		var t domain.Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("session: decode turn %s: %w", id, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, id string, t domain.Turn) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("session: encode turn: %w", err)
	}
	key := s.key(id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: append %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("session: clear %s: %w", id, err)
	}
	return nil
}
