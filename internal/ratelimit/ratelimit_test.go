package ratelimit

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis-backed test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 9})
	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush test db: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestLimiterFixedWindow(t *testing.T) {
	rdb := testRedis(t)
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	l := NewLimiter(rdb, map[string]int{ClassExtract: 3}, log)

	// Pin the clock so the whole test lands in one window.
	fixed := time.Date(2026, 5, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, ClassExtract); err != nil {
			t.Fatalf("call %d should be allowed: %v", i+1, err)
		}
	}

	err = l.Allow(ctx, ClassExtract)
	if !errorsx.IsLimit(err) {
		t.Fatalf("4th call should hit the limit, got %v", err)
	}
	var le *errorsx.LimitError
	if !errors.As(err, &le) {
		t.Fatal("expected *LimitError")
	}
	if le.RetryAfter <= 0 || le.RetryAfter > time.Minute {
		t.Fatalf("retry-after out of window: %s", le.RetryAfter)
	}

	// Next window resets the count.
	l.now = func() time.Time { return fixed.Add(time.Minute) }
	if err := l.Allow(ctx, ClassExtract); err != nil {
		t.Fatalf("new window should be allowed: %v", err)
	}
}

func TestLimiterUnconfiguredClassUnlimited(t *testing.T) {
	rdb := testRedis(t)
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	l := NewLimiter(rdb, map[string]int{}, log)

	for i := 0; i < 50; i++ {
		if err := l.Allow(context.Background(), ClassEmbed); err != nil {
			t.Fatalf("unconfigured class must be unlimited: %v", err)
		}
	}
}
