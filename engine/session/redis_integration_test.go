//go:build integration

package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func redisStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("DOCQA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("DOCQA_TEST_REDIS_URL not set")
	}
	c, err := DialRedis(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return NewRedisStore(RedisConfig{Client: c, KeyPrefix: "docqa:test:" + uuid.NewString() + ":", TTL: time.Minute})
}

func TestRedisStore(t *testing.T) {
	exerciseStore(t, redisStore(t))
}

func TestRedisStore_ConcurrentAppend(t *testing.T) {
	exerciseConcurrentAppend(t, redisStore(t))
}
