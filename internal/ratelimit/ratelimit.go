package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
)

// Call classes with independent vendor quotas.
const (
	ClassExtract = "extract"
	ClassEmbed   = "embed"
)

// Limiter enforces a fixed-window per-minute cap per call class, shared
// across workers through Redis. Hitting the cap yields a LimitError with
// the remaining window as the requeue delay, not a failure.
type Limiter struct {
	rdb    *redis.Client
	log    *logger.Logger
	limits map[string]int
	now    func() time.Time
}

func NewLimiter(rdb *redis.Client, limits map[string]int, baseLog *logger.Logger) *Limiter {
	return &Limiter{
		rdb:    rdb,
		log:    baseLog.With("service", "RateLimiter"),
		limits: limits,
		now:    time.Now,
	}
}

// Allow consumes one slot for class. Unknown classes and classes with no
// configured limit are unlimited. Redis being unreachable fails open: the
// vendor's own 429s still backstop us and an outage must not halt the
// pipeline.
func (l *Limiter) Allow(ctx context.Context, class string) error {
	limit, ok := l.limits[class]
	if !ok || limit <= 0 {
		return nil
	}
	if l.rdb == nil {
		return nil
	}

	now := l.now().UTC()
	window := now.Truncate(time.Minute)
	key := fmt.Sprintf("ratelimit:%s:%d", class, window.Unix())

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn("Rate limiter unavailable, failing open",
			"class", class,
			"error", err.Error(),
		)
		return nil
	}

	if count := incr.Val(); count > int64(limit) {
		retryAfter := window.Add(time.Minute).Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return &errorsx.LimitError{Class: class, RetryAfter: retryAfter}
	}
	return nil
}
