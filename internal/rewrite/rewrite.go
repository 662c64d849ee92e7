// Package rewrite turns scraped articles into short posts in the target
// language and drops the ones the model judges off-topic.
package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/newsharvest/internal/article"
	"github.com/deusflow/newsharvest/internal/llm"
)

// ErrUnparsableReply is returned when the model reply is not the expected JSON object.
var ErrUnparsableReply = errors.New("unparsable model reply")

const maxPromptContent = 6000

type Options struct {
	Topic          string
	TargetLanguage string
	Model          string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration // per article, 0 = none
}

// Result is the parsed model reply.
type Result struct {
	Title    string
	Content  string
	Relevant bool
}

// Stats counts what happened to a batch.
type Stats struct {
	Rewritten  int
	Irrelevant int
	Failed     int // kept in original form
}

type Engine struct {
	chat   llm.Chatter
	opts   Options
	logger *slog.Logger
}

func NewEngine(chat llm.Chatter, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{chat: chat, opts: opts, logger: logger}
}

// Format rewrites every article. See FormatWithStats.
func (e *Engine) Format(ctx context.Context, articles []article.Article) []article.Article {
	out, _ := e.FormatWithStats(ctx, articles)
	return out
}

// FormatWithStats rewrites every article in order. Articles whose reply marks
// them as not relevant are dropped. When the call fails or the reply cannot be
// parsed the original article is kept.
func (e *Engine) FormatWithStats(ctx context.Context, articles []article.Article) ([]article.Article, Stats) {
	var stats Stats
	out := make([]article.Article, 0, len(articles))

	for _, a := range articles {
		res, err := e.Rewrite(ctx, a)
		if err != nil {
			stats.Failed++
			e.logger.Warn("Rewrite failed, keeping original", "link", a.Link, "error", err)
			out = append(out, a)
			continue
		}
		if !res.Relevant {
			stats.Irrelevant++
			e.logger.Info("Dropping irrelevant article", "link", a.Link, "title", a.Title)
			continue
		}
		stats.Rewritten++
		out = append(out, a.WithRewrite(res.Title, res.Content))
	}
	return out, stats
}

// Rewrite runs one chat round trip for a.
func (e *Engine) Rewrite(ctx context.Context, a article.Article) (Result, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Messages:    e.messages(a),
		Model:       e.opts.Model,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return Result{}, err
	}
	return ParseReply(resp.Content)
}

func (e *Engine) messages(a article.Article) []llm.Message {
	var sys strings.Builder
	fmt.Fprintf(&sys, `You are an editor of a news channel about %s.
Rewrite the article below in %s as a short, neutral news post.

Rules:
- Keep names of people, brands and organisations as they are.
- No introductions like "The article says that".
- Title up to 120 characters, content up to 700 characters.
- Set "relevant" to false when the article does not matter for the channel topic.
`, e.opts.Topic, e.opts.TargetLanguage)
	sys.WriteString(`
Reply with a single JSON object and nothing else:
{"title": "...", "content": "...", "relevant": true}`)

	user := fmt.Sprintf("Title: %s\n\nArticle:\n%s", a.Title, truncateContent(a.Content))

	return []llm.Message{
		{Role: llm.RoleSystem, Content: sys.String()},
		{Role: llm.RoleUser, Content: user},
	}
}

// truncateContent cuts on a rune boundary, preferring the end of a sentence.
func truncateContent(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= maxPromptContent {
		return content
	}
	cut := string([]rune(content)[:maxPromptContent])
	if idx := strings.LastIndex(cut, ". "); idx > maxPromptContent/5 {
		cut = cut[:idx+1]
	}
	return cut + "\n[TRUNCATED]"
}

type reply struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Relevant *bool  `json:"relevant"`
}

// ParseReply decodes the model reply. Markdown code fences and text around
// the JSON object are tolerated. Title and content must be non-blank and
// relevant must be present.
func ParseReply(s string) (Result, error) {
	body := stripFences(s)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var r reply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnparsableReply, err)
	}

	title := SanitizeAIText(r.Title)
	content := SanitizeAIText(r.Content)
	switch {
	case r.Relevant == nil:
		return Result{}, fmt.Errorf("%w: missing relevant", ErrUnparsableReply)
	case !*r.Relevant:
		return Result{Title: title, Content: content, Relevant: false}, nil
	case title == "":
		return Result{}, fmt.Errorf("%w: blank title", ErrUnparsableReply)
	case content == "":
		return Result{}, fmt.Errorf("%w: blank content", ErrUnparsableReply)
	}
	return Result{Title: title, Content: content, Relevant: true}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
