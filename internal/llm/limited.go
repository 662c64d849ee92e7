package llm

import (
	"context"

	"github.com/deusflow/newsharvest/internal/ratelimit"
)

// Limited spends one limiter slot per provider call.
type Limited struct {
	next    Provider
	limiter *ratelimit.AIRateLimiter
}

func NewLimited(next Provider, limiter *ratelimit.AIRateLimiter) *Limited {
	return &Limited{next: next, limiter: limiter}
}

func (l *Limited) Name() string { return l.next.Name() }

func (l *Limited) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := l.limiter.Acquire(ctx); err != nil {
		return ChatResponse{}, &ProviderError{Provider: l.next.Name(), Err: err}
	}
	return l.next.Chat(ctx, req)
}

func (l *Limited) Embed(ctx context.Context, texts []string) (EmbedResponse, error) {
	if len(texts) == 0 {
		return EmbedResponse{}, nil
	}
	if err := l.limiter.Acquire(ctx); err != nil {
		return EmbedResponse{}, &ProviderError{Provider: l.next.Name(), Err: err}
	}
	return l.next.Embed(ctx, texts)
}
