package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_DailyBudget(t *testing.T) {
	rl := NewAIRateLimiter("openai", 2, 0)
	ctx := context.Background()

	require.NoError(t, rl.Acquire(ctx))
	require.NoError(t, rl.Acquire(ctx))
	err := rl.Acquire(ctx)
	require.True(t, errors.Is(err, ErrBudgetExhausted))
	assert.Contains(t, err.Error(), "2/2")
}

func TestAcquire_ResetsAfterADay(t *testing.T) {
	now := time.Date(2025, 11, 24, 8, 0, 0, 0, time.UTC)
	rl := NewAIRateLimiter("gemini", 1, 0)
	rl.now = func() time.Time { return now }
	rl.resetTime = now.Add(24 * time.Hour)

	require.NoError(t, rl.Acquire(context.Background()))
	require.Error(t, rl.Acquire(context.Background()))

	now = now.Add(25 * time.Hour)
	require.NoError(t, rl.Acquire(context.Background()))
}

func TestAcquire_UnlimitedBudget(t *testing.T) {
	rl := NewAIRateLimiter("openai", 0, 0)
	for range 50 {
		require.NoError(t, rl.Acquire(context.Background()))
	}
	assert.Equal(t, 50, rl.GetStats()["used"])
}

func TestAcquire_PaceRespectsContext(t *testing.T) {
	rl := NewAIRateLimiter("openai", 0, 1)
	require.NoError(t, rl.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, rl.Acquire(ctx))
}

func TestCacheHitRate(t *testing.T) {
	rl := NewAIRateLimiter("openai", 0, 0)
	assert.Zero(t, rl.GetCacheHitRate())

	require.NoError(t, rl.Acquire(context.Background()))
	rl.RecordCacheHit()
	rl.RecordCacheHit()
	rl.RecordCacheHit()

	assert.InDelta(t, 75.0, rl.GetCacheHitRate(), 1e-9)
	stats := rl.GetStats()
	assert.Equal(t, 3, stats["cache_hits"])
	assert.Equal(t, 1, stats["cache_misses"])
}
