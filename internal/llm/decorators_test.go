package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deusflow/newsharvest/internal/cache"
	"github.com/deusflow/newsharvest/internal/llm"
	"github.com/deusflow/newsharvest/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider embeds each text as {len(text)} and records every batch.
type countingProvider struct {
	batches [][]string
	chats   int
	short   bool
}

func (p *countingProvider) Name() string { return "fake" }

func (p *countingProvider) Chat(context.Context, llm.ChatRequest) (llm.ChatResponse, error) {
	p.chats++
	return llm.ChatResponse{Content: "ok"}, nil
}

func (p *countingProvider) Embed(_ context.Context, texts []string) (llm.EmbedResponse, error) {
	p.batches = append(p.batches, texts)
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, []float32{float32(len(t))})
	}
	if p.short {
		out = out[:len(out)-1]
	}
	return llm.EmbedResponse{Vectors: out}, nil
}

func TestCachedEmbeddings_OnlyMissesReachProvider(t *testing.T) {
	next := &countingProvider{}
	c := cache.New(0)
	defer c.Close()
	stats := ratelimit.NewAIRateLimiter("fake", 0, 0)
	p := llm.NewCachedEmbeddings(next, c, time.Hour, "m", stats)

	first, err := p.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, first.Vectors)

	second, err := p.Embed(context.Background(), []string{"ccc", "a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3}, {1}, {2}}, second.Vectors)

	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, next.batches)
	assert.Equal(t, 2, stats.GetStats()["cache_hits"])

	_, err = p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, next.batches, 2)

	_, err = p.Chat(context.Background(), llm.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, next.chats)
}

func TestCachedEmbeddings_CountMismatch(t *testing.T) {
	c := cache.New(0)
	defer c.Close()
	p := llm.NewCachedEmbeddings(&countingProvider{short: true}, c, time.Hour, "m", nil)

	_, err := p.Embed(context.Background(), []string{"a", "b"})
	var pe *llm.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 0, c.Len())
}

func TestLimited_BudgetExhausted(t *testing.T) {
	next := &countingProvider{}
	p := llm.NewLimited(next, ratelimit.NewAIRateLimiter("fake", 2, 0))
	ctx := context.Background()

	_, err := p.Chat(ctx, llm.ChatRequest{})
	require.NoError(t, err)
	_, err = p.Embed(ctx, []string{"x"})
	require.NoError(t, err)

	_, err = p.Chat(ctx, llm.ChatRequest{})
	require.ErrorIs(t, err, ratelimit.ErrBudgetExhausted)
	assert.Equal(t, 1, next.chats)

	// Empty batches never touch the budget.
	_, err = p.Embed(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "fake", p.Name())
}
