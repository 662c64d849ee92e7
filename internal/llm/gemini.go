package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const geminiName = "gemini"

type GeminiOptions struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
}

// Gemini talks to Google's generative language API.
type Gemini struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
}

func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{
		client:         client,
		chatModel:      opts.ChatModel,
		embeddingModel: opts.EmbeddingModel,
	}, nil
}

func (g *Gemini) Name() string { return geminiName }

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	name := req.Model
	if name == "" {
		name = g.chatModel
	}
	model := g.client.GenerativeModel(name)
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	system, history, last, err := splitConversation(req.Messages)
	if err != nil {
		return ChatResponse{}, &ProviderError{Provider: geminiName, Err: err}
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return ChatResponse{}, wrapGeminiError(err)
	}

	text := responseText(resp)
	if text == "" {
		return ChatResponse{}, &ProviderError{Provider: geminiName, Err: errors.New("no response from Gemini")}
	}

	out := ChatResponse{Content: text}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func (g *Gemini) Embed(ctx context.Context, texts []string) (EmbedResponse, error) {
	if len(texts) == 0 {
		return EmbedResponse{}, nil
	}

	em := g.client.EmbeddingModel(g.embeddingModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return EmbedResponse{}, wrapGeminiError(err)
	}

	vectors := make([][]float32, 0, len(res.Embeddings))
	for _, e := range res.Embeddings {
		if e == nil {
			vectors = append(vectors, nil)
			continue
		}
		vectors = append(vectors, e.Values)
	}
	return EmbedResponse{Vectors: vectors}, nil
}

// splitConversation maps chat messages onto Gemini's shape: system text goes
// to the system instruction, the final user turn is sent, the rest is history.
func splitConversation(messages []Message) (string, []*genai.Content, string, error) {
	var system []string
	var turns []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != RoleUser {
		return "", nil, "", errors.New("conversation must end with a user message")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(system, "\n\n"), history, turns[len(turns)-1].Content, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func wrapGeminiError(err error) error {
	pe := &ProviderError{Provider: geminiName, Err: err}

	var gErr *googleapi.Error
	var aErr *apierror.APIError
	switch {
	case errors.As(err, &gErr):
		pe.HTTPStatus = gErr.Code
		if len(gErr.Errors) > 0 {
			pe.Code = gErr.Errors[0].Reason
		}
	case errors.As(err, &aErr):
		if status := aErr.HTTPCode(); status > 0 {
			pe.HTTPStatus = status
		}
		pe.Code = aErr.Reason()
		if pe.Code == "" && aErr.GRPCStatus() != nil {
			pe.Code = aErr.GRPCStatus().Code().String()
		}
	}
	return pe
}
