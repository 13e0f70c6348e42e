// Package kvtest connects tests to a scratch Redis database.
package kvtest

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"hyc/hyc-node/kv"
)

const TestRedisURL = "redis://localhost:6379/15"

// Setup flushes the test database and skips the test when Redis is unreachable.
func Setup(t testing.TB) *redis.Client {
	t.Helper()
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = TestRedisURL
	}

	client, err := kv.Connect(context.Background(), redisURL)
	if err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to flush Redis DB: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}
