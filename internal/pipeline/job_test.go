package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/deusflow/newsharvest/internal/article"
	"github.com/deusflow/newsharvest/internal/config"
	"github.com/deusflow/newsharvest/internal/dedup"
	"github.com/deusflow/newsharvest/internal/delivery"
	"github.com/deusflow/newsharvest/internal/imaging"
	"github.com/deusflow/newsharvest/internal/logger"
	"github.com/deusflow/newsharvest/internal/metrics"
	"github.com/deusflow/newsharvest/internal/pipeline"
	"github.com/deusflow/newsharvest/internal/rewrite"
	"github.com/deusflow/newsharvest/internal/sources"
	"github.com/deusflow/newsharvest/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	scraper pipeline.Scraper
	model   *fakeModel
	store   storage.Store
	sender  *fakeSender
	metrics *metrics.Metrics
	images  imaging.Processor
	now     func() time.Time
}

func newHarness(t *testing.T, scraper pipeline.Scraper) *harness {
	t.Helper()
	fs := storage.NewFileStore(filepath.Join(t.TempDir(), "articles.json"), 0)
	require.NoError(t, fs.Load())
	return &harness{
		scraper: scraper,
		model:   &fakeModel{vectors: map[string][]float32{}, irrelevant: map[string]bool{}},
		store:   fs,
		sender:  &fakeSender{},
		metrics: metrics.New(),
	}
}

func (h *harness) job(src sources.Source) *pipeline.Job {
	l := logger.Nop()
	return pipeline.NewJob(src, pipeline.Deps{
		Scraper:  h.scraper,
		Dedup:    dedup.NewEngine(h.model, dedup.DefaultThreshold, l),
		Rewriter: rewrite.NewEngine(h.model, rewrite.Options{Topic: "news for Ukrainians in Poland", TargetLanguage: "Ukrainian"}, l),
		Store:    h.store,
		Images:   imaging.NewReconciler(h.images, h.store, l),
		Delivery: delivery.NewDeliverer(h.sender, delivery.Options{
			ChatID:          "@news",
			RequiredCharset: config.UkrainianAlphabet,
		}, l),
		Metrics: h.metrics,
		Logger:  l,
		Now:     h.now,
	})
}

func source() sources.Source {
	return sources.Source{ID: 1, Key: "main", Name: "Main", URL: "https://news.example.pl/", Strategy: "main_news", Status: sources.StatusActive}
}

func scraped(title, link string) article.Article {
	return article.Article{
		Source:  "main",
		Title:   title,
		Link:    link,
		Content: "Treść artykułu o " + title,
		Created: time.Now().UnixMilli(),
		Image:   "https://img.example.pl/" + filepath.Base(link) + ".jpg",
	}
}

func TestJob_Run_FullCycle(t *testing.T) {
	ctx := context.Background()
	sc := &fakeScraper{articles: []article.Article{
		scraped("Sejm uchwalił budżet 2026", "https://news.example.pl/a"),
		scraped("Nowe przepisy", "https://news.example.pl/b"),
		scraped("Stary artykuł", "https://news.example.pl/c"),
	}}
	h := newHarness(t, sc)
	h.model.vectors = map[string][]float32{
		"Sejm uchwalił budżet 2026": {1, 0, 0},
		"Sejm uchwalił budżet":      {1, 0, 0},
		"Nowe przepisy":             {0, 1, 0},
		"Stary artykuł":             {0, 0, 1},
	}

	// c was stored by an earlier cycle, the budget story came from elsewhere.
	_, err := h.store.InsertArticle(ctx, scraped("Stary artykuł", "https://news.example.pl/c"))
	require.NoError(t, err)
	_, err = h.store.InsertArticle(ctx, scraped("Sejm uchwalił budżet", "https://other.example.pl/x"))
	require.NoError(t, err)

	rep, err := h.job(source()).Run(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, rep.CycleID)
	assert.Equal(t, pipeline.StageIdle, rep.Stage)
	assert.Equal(t, 3, rep.Scraped)
	assert.Equal(t, 1, rep.KnownLinks)
	assert.Equal(t, 1, rep.Duplicates)
	assert.Equal(t, 1, rep.Rewritten)
	assert.Equal(t, 1, rep.Persisted)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 1, rep.Published)

	photos := h.sender.photos()
	require.Len(t, photos, 1)
	assert.Equal(t, "@news", photos[0].chatID)
	assert.Equal(t, "https://img.example.pl/b.jpg", photos[0].photo)
	assert.Contains(t, photos[0].caption, "*Новина: Nowe przepisy*")

	stored, err := h.store.ArticlesByIDs(ctx, []int64{3})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Новина: Nowe przepisy", stored[0].Title)
	assert.Equal(t, article.StatusPublished, stored[0].Status)
	assert.Equal(t, "https://news.example.pl/b", stored[0].Link)

	stats := h.metrics.GetStats()
	assert.Equal(t, int64(3), stats["articles_scraped"])
	assert.Equal(t, int64(2), stats["duplicates_filtered"])
	assert.Equal(t, int64(1), stats["messages_sent"])
	assert.Equal(t, true, stats["is_healthy"])
}

func TestJob_Run_ScrapeErrorAbortsCycle(t *testing.T) {
	sc := &fakeScraper{err: errors.New("listing page: timeout")}
	h := newHarness(t, sc)

	rep, err := h.job(source()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing page: timeout")
	assert.Equal(t, pipeline.StageScraping, rep.Stage)

	embeds, chats := h.model.counts()
	assert.Zero(t, embeds)
	assert.Zero(t, chats)
	assert.Equal(t, false, h.metrics.GetStats()["is_healthy"])
}

func TestJob_Run_EmptyScrapeShortCircuits(t *testing.T) {
	h := newHarness(t, &fakeScraper{})

	rep, err := h.job(source()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageScraping, rep.Stage)

	embeds, chats := h.model.counts()
	assert.Zero(t, embeds)
	assert.Zero(t, chats)
	assert.Empty(t, h.sender.photos())
}

func TestJob_Run_AllIrrelevant(t *testing.T) {
	h := newHarness(t, &fakeScraper{articles: []article.Article{
		scraped("Wyniki meczu", "https://news.example.pl/sport"),
	}})
	h.model.irrelevant["Wyniki meczu"] = true

	rep, err := h.job(source()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageRewriting, rep.Stage)
	assert.Equal(t, 1, rep.Irrelevant)

	stats, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats["total_items"])
}

func TestJob_Run_ReconcileErrorAbortsBeforeDelivery(t *testing.T) {
	h := newHarness(t, &fakeScraper{articles: []article.Article{
		scraped("Nowe przepisy", "https://news.example.pl/b"),
	}})
	h.images = failingProcessor{}

	rep, err := h.job(source()).Run(context.Background())
	require.ErrorIs(t, err, imaging.ErrTransport)
	assert.Equal(t, pipeline.StageReconcilingImages, rep.Stage)
	assert.Equal(t, 1, rep.Persisted)
	assert.Empty(t, h.sender.photos())

	stored, err := h.store.ArticlesByIDs(context.Background(), []int64{1})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, article.StatusNew, stored[0].Status)
}

func TestJob_Run_StorageFailuresDegrade(t *testing.T) {
	h := newHarness(t, &fakeScraper{articles: []article.Article{
		scraped("Nowe przepisy", "https://news.example.pl/b"),
	}})
	h.store = brokenStore{Store: h.store}

	rep, err := h.job(source()).Run(context.Background())
	require.NoError(t, err)

	// No stored titles to compare against, so no embeddings are requested.
	embeds, _ := h.model.counts()
	assert.Zero(t, embeds)
	assert.Equal(t, 0, rep.Persisted)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 0, rep.Published)
}

func TestJob_Run_PerSourceThreshold(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeScraper{articles: []article.Article{
		scraped("Podwyżki cen prądu", "https://news.example.pl/p"),
	}})
	h.model.vectors = map[string][]float32{
		"Podwyżki cen prądu": {3, 4},
		"Ceny prądu w górę":  {4, 3}, // cosine 0.96
	}
	_, err := h.store.InsertArticle(ctx, scraped("Ceny prądu w górę", "https://other.example.pl/p"))
	require.NoError(t, err)

	src := source()
	src.SimilarityThreshold = 0.99

	rep, err := h.job(src).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Duplicates)
	assert.Equal(t, 1, rep.Sent)
}

func TestJob_Run_InstructionsStayOutOfPrompts(t *testing.T) {
	h := newHarness(t, &fakeScraper{articles: []article.Article{
		scraped("Nowe przepisy", "https://news.example.pl/b"),
	}})
	src := source()
	src.Instructions = []sources.Instruction{{Text: "Always mention Kraków.", Status: sources.StatusActive}}

	rep, err := h.job(src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rewritten)

	prompts := h.model.sentPrompts()
	require.NotEmpty(t, prompts)
	for _, p := range prompts {
		assert.NotContains(t, p, "Kraków")
	}
}
