package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrBudgetExhausted is returned once the daily request budget is spent.
var ErrBudgetExhausted = errors.New("AI request budget exhausted")

// AIRateLimiter caps language model usage: a daily request budget plus a per-minute pace.
type AIRateLimiter struct {
	mu          sync.Mutex
	provider    string
	count       int
	maxDaily    int
	pace        *rate.Limiter
	resetTime   time.Time
	now         func() time.Time
	cacheHits   int
	cacheMisses int
}

// NewAIRateLimiter creates a limiter. maxDaily <= 0 means unlimited, perMinute <= 0 means unpaced.
func NewAIRateLimiter(provider string, maxDaily, perMinute int) *AIRateLimiter {
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute
	}
	rl := &AIRateLimiter{
		provider: provider,
		maxDaily: maxDaily,
		pace:     rate.NewLimiter(limit, burst),
		now:      time.Now,
	}
	rl.resetTime = rl.now().Add(24 * time.Hour)
	return rl
}

// Acquire reserves one request. It waits for the pace limiter and fails when the budget is spent.
func (rl *AIRateLimiter) Acquire(ctx context.Context) error {
	rl.mu.Lock()
	rl.checkReset()
	if rl.maxDaily > 0 && rl.count >= rl.maxDaily {
		rl.mu.Unlock()
		return fmt.Errorf("%s: %w (%d/%d)", rl.provider, ErrBudgetExhausted, rl.count, rl.maxDaily)
	}
	rl.count++
	rl.cacheMisses++
	rl.mu.Unlock()

	if err := rl.pace.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limiter: %w", rl.provider, err)
	}
	return nil
}

// RecordCacheHit counts a request answered without calling the provider.
func (rl *AIRateLimiter) RecordCacheHit() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cacheHits++
}

// GetCacheHitRate returns cache hit rate percentage
func (rl *AIRateLimiter) GetCacheHitRate() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.hitRate()
}

func (rl *AIRateLimiter) hitRate() float64 {
	total := rl.cacheHits + rl.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(rl.cacheHits) / float64(total) * 100
}

// GetStats returns current rate limiter statistics
func (rl *AIRateLimiter) GetStats() map[string]any {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]any{
		"provider":       rl.provider,
		"used":           rl.count,
		"limit":          rl.maxDaily,
		"cache_hits":     rl.cacheHits,
		"cache_misses":   rl.cacheMisses,
		"cache_hit_rate": rl.hitRate(),
		"reset_time":     rl.resetTime,
	}
}

// checkReset resets counters if reset time has passed. Caller holds mu.
func (rl *AIRateLimiter) checkReset() {
	if rl.now().After(rl.resetTime) {
		rl.count = 0
		rl.cacheHits = 0
		rl.cacheMisses = 0
		rl.resetTime = rl.now().Add(24 * time.Hour)
	}
}
