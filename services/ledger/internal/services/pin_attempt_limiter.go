package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AttemptLimiter gates PIN verification attempts.
type AttemptLimiter interface {
	Allow(ctx context.Context, accountID uuid.UUID) bool
}

// PinAttemptLimiter throttles PIN verification attempts per account. It keeps
// a local token bucket per account for the fast path and an atomic Redis
// counter so the cap holds across processes. A Redis outage degrades to
// local-only enforcement rather than locking cardholders out.
type PinAttemptLimiter struct {
	mu          sync.Mutex
	local       map[uuid.UUID]*rate.Limiter
	redisClient *redis.Client
	attemptRate int
	burst       int
	ttl         time.Duration
	logger      *zap.Logger
}

// NewPinAttemptLimiter creates a limiter; attemptRate=0 disables throttling.
func NewPinAttemptLimiter(redisClient *redis.Client, attemptRate, burst int, ttl time.Duration, logger *zap.Logger) *PinAttemptLimiter {
	return &PinAttemptLimiter{
		local:       make(map[uuid.UUID]*rate.Limiter),
		redisClient: redisClient,
		attemptRate: attemptRate,
		burst:       burst,
		ttl:         ttl,
		logger:      logger,
	}
}

// Allow reports whether the account may attempt another PIN verification.
func (l *PinAttemptLimiter) Allow(ctx context.Context, accountID uuid.UUID) bool {
	if l.attemptRate <= 0 {
		return true
	}

	// Local check first (fast path)
	if !l.limiterFor(accountID).Allow() {
		return false
	}

	// Distributed check via Redis atomic increment
	key := fmt.Sprintf("pin:attempts:%s", accountID)
	pipe := l.redisClient.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("redis attempt counter error; falling back to local", zap.Error(err))
		return true
	}

	count := incr.Val()
	if count > int64(l.burst) {
		l.logger.Warn("pin attempt limit exceeded",
			zap.String("account_id", accountID.String()),
			zap.Int64("count", count))
		return false
	}
	return true
}

func (l *PinAttemptLimiter) limiterFor(accountID uuid.UUID) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.local[accountID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.attemptRate), l.burst)
		l.local[accountID] = lim
	}
	return lim
}
