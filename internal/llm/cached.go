package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/deusflow/newsharvest/internal/cache"
	"github.com/deusflow/newsharvest/internal/ratelimit"
)

// CachedEmbeddings remembers title embeddings so that titles compared again
// in later cycles do not cost a provider call. Chat is passed through.
type CachedEmbeddings struct {
	Provider
	cache *cache.Cache
	ttl   time.Duration
	model string
	stats *ratelimit.AIRateLimiter // optional, records cache hits
}

func NewCachedEmbeddings(next Provider, c *cache.Cache, ttl time.Duration, model string, stats *ratelimit.AIRateLimiter) *CachedEmbeddings {
	return &CachedEmbeddings{Provider: next, cache: c, ttl: ttl, model: model, stats: stats}
}

func (c *CachedEmbeddings) Embed(ctx context.Context, texts []string) (EmbedResponse, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingAt []int

	for i, t := range texts {
		if v, ok := c.cache.Get(cache.Key(c.model, t)); ok {
			vectors[i] = v.([]float32)
			if c.stats != nil {
				c.stats.RecordCacheHit()
			}
			continue
		}
		missing = append(missing, t)
		missingAt = append(missingAt, i)
	}

	if len(missing) == 0 {
		return EmbedResponse{Vectors: vectors}, nil
	}

	resp, err := c.Provider.Embed(ctx, missing)
	if err != nil {
		return EmbedResponse{}, err
	}
	if len(resp.Vectors) != len(missing) {
		return EmbedResponse{}, &ProviderError{
			Provider: c.Name(),
			Err:      fmt.Errorf("got %d vectors for %d inputs", len(resp.Vectors), len(missing)),
		}
	}

	for j, v := range resp.Vectors {
		vectors[missingAt[j]] = v
		c.cache.Set(cache.Key(c.model, missing[j]), v, c.ttl)
	}
	return EmbedResponse{Vectors: vectors, Usage: resp.Usage}, nil
}
