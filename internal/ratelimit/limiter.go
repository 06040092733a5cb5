package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lamontai/lamontai/pkg/models"
	"go.uber.org/zap"
)

// Route classes with distinct budgets per plan
const (
	ClassAPI      = "api"      // general API calls, per minute
	ClassGenerate = "generate" // article generation requests, per hour
)

// PlanLimiter enforces per-user request budgets derived from the user's plan.
// With Redis available, API calls use the distributed sliding window and
// generation requests use the distributed token bucket, which refills the
// hourly budget continuously instead of releasing it in one step. Without
// Redis it degrades to an advisory in-process window.
type PlanLimiter struct {
	redis  *RedisClient
	logger *zap.Logger

	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewPlanLimiter creates a limiter. redis may be nil for memory-only operation.
func NewPlanLimiter(redis *RedisClient, logger *zap.Logger) *PlanLimiter {
	return &PlanLimiter{
		redis:   redis,
		logger:  logger.Named("ratelimit"),
		windows: make(map[string][]time.Time),
	}
}

// budget returns the limit and window for a route class under a plan
func budget(plan models.Plan, class string) (int, time.Duration, error) {
	limits := models.GetPlanLimits(plan)
	switch class {
	case ClassAPI:
		return limits.APICallsPerMinute, time.Minute, nil
	case ClassGenerate:
		return limits.GenerationsPerHour, time.Hour, nil
	default:
		return 0, 0, fmt.Errorf("unknown rate limit class: %s", class)
	}
}

// Allow records one request for userID in the given class and reports whether
// it fits the plan's budget.
func (l *PlanLimiter) Allow(ctx context.Context, userID string, plan models.Plan, class string) (bool, models.RateLimitInfo, error) {
	limit, window, err := budget(plan, class)
	if err != nil {
		return false, models.RateLimitInfo{}, err
	}

	info := models.RateLimitInfo{
		Limit:   limit,
		Window:  window,
		ResetAt: time.Now().Add(window),
	}

	key := fmt.Sprintf("lamontai:ratelimit:%s:%s", class, userID)
	if l.redis != nil {
		var (
			allowed bool
			used    int
		)
		switch class {
		case ClassGenerate:
			refill := float64(limit) / window.Seconds()
			var left float64
			allowed, left, err = l.redis.TakeTokenBucket(ctx, key, limit, refill, 1)
			used = limit - int(left)
		default:
			var count int64
			allowed, count, err = l.redis.TakeSlidingWindow(ctx, key, window, limit, 1)
			used = int(count)
		}
		if err == nil {
			info.Used = used
			info.Remaining = max(0, limit-used)
			return allowed, info, nil
		}
		l.logger.Warn("Redis limiter failed, using in-process window", zap.Error(err))
	}

	allowed, used := l.allowLocal(key, limit, window)
	info.Used = used
	info.Remaining = max(0, limit-used)
	return allowed, info, nil
}

func (l *PlanLimiter) allowLocal(key string, limit int, window time.Duration) (bool, int) {
	now := time.Now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	times := l.windows[key]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		l.windows[key] = kept
		return false, len(kept)
	}
	kept = append(kept, now)
	l.windows[key] = kept
	return true, len(kept)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
