// Package llm is the language model contract used by the pipeline:
// chat completions for rewriting and embeddings for deduplication.
package llm

import (
	"context"
	"fmt"
	"net/http"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type ChatRequest struct {
	Messages    []Message
	Model       string // empty selects the provider default
	Temperature float32
	MaxTokens   int
	JSON        bool // ask for a JSON object reply
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type ChatResponse struct {
	Content string
	Usage   Usage
}

// EmbedResponse holds one vector per input text, in input order.
type EmbedResponse struct {
	Vectors [][]float32
	Usage   Usage
}

type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) (EmbedResponse, error)
}

// Provider is a model backend able to chat and embed.
type Provider interface {
	Chatter
	Embedder
	Name() string
}

// ProviderError is a failed provider call.
type ProviderError struct {
	Provider   string
	Code       string // provider specific error code, may be empty
	HTTPStatus int    // 0 when the call never got an HTTP answer
	Err        error
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the same call may succeed later.
func (e *ProviderError) Retryable() bool {
	return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= http.StatusInternalServerError
}
