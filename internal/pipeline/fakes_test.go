package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/deusflow/newsharvest/internal/article"
	"github.com/deusflow/newsharvest/internal/browser"
	"github.com/deusflow/newsharvest/internal/imaging"
	"github.com/deusflow/newsharvest/internal/llm"
	"github.com/deusflow/newsharvest/internal/sources"
	"github.com/deusflow/newsharvest/internal/storage"
)

type fakeScraper struct {
	mu       sync.Mutex
	articles []article.Article
	err      error
	calls    int
	run      func(ctx context.Context) // optional hook
}

func (s *fakeScraper) Scrape(ctx context.Context, _ sources.Source) ([]article.Article, error) {
	s.mu.Lock()
	s.calls++
	run := s.run
	s.mu.Unlock()
	if run != nil {
		run(ctx)
	}
	return s.articles, s.err
}

func (s *fakeScraper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeModel embeds by table lookup and rewrites every article into Ukrainian.
type fakeModel struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	irrelevant map[string]bool
	embedCalls int
	chatCalls  int
	prompts    []string
}

func (m *fakeModel) Name() string { return "fake" }

func (m *fakeModel) Embed(_ context.Context, texts []string) (llm.EmbedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			return llm.EmbedResponse{}, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return llm.EmbedResponse{Vectors: out}, nil
}

func (m *fakeModel) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatCalls++
	for _, msg := range req.Messages {
		m.prompts = append(m.prompts, msg.Content)
	}

	user := req.Messages[len(req.Messages)-1].Content
	title := strings.TrimPrefix(strings.SplitN(user, "\n", 2)[0], "Title: ")
	reply, _ := json.Marshal(map[string]any{
		"title":    "Новина: " + title,
		"content":  "Текст новини про " + title + ".",
		"relevant": !m.irrelevant[title],
	})
	return llm.ChatResponse{Content: string(reply)}, nil
}

func (m *fakeModel) sentPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *fakeModel) counts() (embed, chat int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls, m.chatCalls
}

type sentPhoto struct {
	chatID, photo, caption string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentPhoto
}

func (s *fakeSender) SendPhoto(_ context.Context, chatID, photo, caption, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentPhoto{chatID, photo, caption})
	return nil
}

func (s *fakeSender) photos() []sentPhoto {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentPhoto(nil), s.sent...)
}

type failingProcessor struct{}

func (failingProcessor) Process(context.Context, []imaging.Item) (*imaging.Response, error) {
	return nil, fmt.Errorf("%w: connection refused", imaging.ErrTransport)
}

// brokenStore fails every read and insert but accepts status updates.
type brokenStore struct {
	storage.Store
}

var errStoreDown = errors.New("store down")

func (brokenStore) InsertArticle(context.Context, article.Article) (int64, error) {
	return 0, errStoreDown
}

func (brokenStore) ExistingLinks(context.Context, []string) (map[string]bool, error) {
	return nil, errStoreDown
}

func (brokenStore) RecentTitles(context.Context, time.Time) ([]string, error) {
	return nil, errStoreDown
}

// siteLauncher serves fixed HTML per URL through goquery.
type siteLauncher struct {
	pages map[string]string
}

func (l *siteLauncher) NewPage(context.Context) (browser.Page, error) {
	return &sitePage{pages: l.pages}, nil
}

type sitePage struct {
	pages map[string]string
	doc   *goquery.Document
}

func (p *sitePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	html, ok := p.pages[url]
	if !ok {
		return fmt.Errorf("navigate %s: not found", url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	p.doc = doc
	return nil
}

func (p *sitePage) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	if p.doc.Find(selector).Length() == 0 {
		return context.DeadlineExceeded
	}
	return nil
}

func (p *sitePage) InnerHTML(_ context.Context, selector string) ([]string, error) {
	return browser.InnerHTMLOf(p.doc.Selection, selector)
}

func (p *sitePage) Text(_ context.Context, selector string) ([]string, error) {
	return browser.TextOf(p.doc.Selection, selector)
}

func (p *sitePage) Attribute(_ context.Context, selector, attr string) (string, error) {
	return browser.AttributeOf(p.doc.Selection, selector, attr)
}

func (p *sitePage) Screenshot(context.Context) ([]byte, error) { return nil, nil }

func (p *sitePage) Close() error { return nil }
