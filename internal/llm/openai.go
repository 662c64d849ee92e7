package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

const openAIName = "openai"

type OpenAIOptions struct {
	APIKey         string
	BaseURL        string // optional, for proxies and compatible APIs
	ChatModel      string
	EmbeddingModel string
	HTTPClient     *http.Client
}

// OpenAI talks to the OpenAI API (or a compatible one) through go-openai.
type OpenAI struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
}

func NewOpenAI(opts OpenAIOptions) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAI{
		client:         openai.NewClientWithConfig(cfg),
		chatModel:      opts.ChatModel,
		embeddingModel: opts.EmbeddingModel,
	}
}

func (o *OpenAI) Name() string { return openAIName }

func (o *OpenAI) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.chatModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	creq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return ChatResponse{}, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, &ProviderError{Provider: openAIName, Err: errors.New("no choices in response")}
	}

	return ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (o *OpenAI) Embed(ctx context.Context, texts []string) (EmbedResponse, error) {
	if len(texts) == 0 {
		return EmbedResponse{}, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.embeddingModel),
	})
	if err != nil {
		return EmbedResponse{}, wrapOpenAIError(err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return EmbedResponse{}, &ProviderError{
				Provider: openAIName,
				Err:      fmt.Errorf("embedding index %d out of range for %d inputs", d.Index, len(texts)),
			}
		}
		vectors[d.Index] = d.Embedding
	}

	return EmbedResponse{
		Vectors: vectors,
		Usage: Usage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func wrapOpenAIError(err error) error {
	pe := &ProviderError{Provider: openAIName, Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		pe.HTTPStatus = apiErr.HTTPStatusCode
		pe.Code = apiErr.Type
		if code, ok := apiErr.Code.(string); ok && code != "" {
			pe.Code = code
		}
	case errors.As(err, &reqErr):
		pe.HTTPStatus = reqErr.HTTPStatusCode
	}
	return pe
}
