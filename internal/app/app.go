// Package app builds the harvester from configuration: every collaborator is
// constructed once here and injected into the pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/deusflow/newsharvest/internal/browser"
	"github.com/deusflow/newsharvest/internal/cache"
	"github.com/deusflow/newsharvest/internal/config"
	"github.com/deusflow/newsharvest/internal/dedup"
	"github.com/deusflow/newsharvest/internal/delivery"
	"github.com/deusflow/newsharvest/internal/imaging"
	"github.com/deusflow/newsharvest/internal/llm"
	"github.com/deusflow/newsharvest/internal/metrics"
	"github.com/deusflow/newsharvest/internal/pipeline"
	"github.com/deusflow/newsharvest/internal/ratelimit"
	"github.com/deusflow/newsharvest/internal/retry"
	"github.com/deusflow/newsharvest/internal/rewrite"
	"github.com/deusflow/newsharvest/internal/scraper"
	"github.com/deusflow/newsharvest/internal/sources"
	"github.com/deusflow/newsharvest/internal/storage"
	"github.com/deusflow/newsharvest/internal/telegram"
)

// fileStoreRetention bounds the JSON store when no database is configured.
const fileStoreRetention = 7 * 24 * time.Hour

// ErrUnknownSource is returned by RunOnce for a key missing from the registry.
var ErrUnknownSource = errors.New("unknown source")

type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *sources.Registry
	store    storage.Store
	limiter  *ratelimit.AIRateLimiter
	metrics  *metrics.Metrics
	deps     pipeline.Deps
	closers  []func() error
}

// New wires the application. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger, metrics: metrics.Global}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry, err = sources.LoadRegistry(cfg.SourcesConfigPath)
	if err != nil {
		return nil, err
	}

	a.store, err = OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	provider, embeddingModel, err := a.newProvider(ctx)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	rc := retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true}

	launcher := browser.NewChromeLauncher(browser.ChromeOptions{
		Headless: cfg.BrowserHeadless,
		ExecPath: cfg.ChromePath,
	})
	sc := scraper.New().Register(scraper.MainNewsTag, scraper.NewMainNews(scraper.MainNewsOptions{
		Launcher:        launcher,
		Location:        loc,
		StalenessWindow: cfg.StalenessWindow,
		Delay:           cfg.ScrapeDelay,
		PageTimeout:     cfg.PageTimeout,
		SelectorTimeout: cfg.SelectorTimeout,
		ScreenshotDir:   cfg.ScreenshotDir,
		Logger:          logger,
	}))

	for _, src := range a.registry.Active() {
		if !slices.Contains(sc.Tags(), src.Strategy) {
			logger.Warn("Source uses an unregistered strategy, its cycles will fail", "source", src.Key, "strategy", src.Strategy)
		}
	}

	// A nil interface, not a nil *imaging.Client, disables reconciliation.
	var processor imaging.Processor
	if cfg.ImageAPIURL != "" {
		processor = imaging.NewClient(cfg.ImageAPIURL, cfg.ImageAPIToken, cfg.RequestTimeout, rc)
	} else {
		logger.Info("IMAGE_API_URL not set, image reconciliation disabled")
	}

	tg := telegram.NewClient(cfg.TelegramToken, rc, telegram.WithLogger(logger))

	a.deps = pipeline.Deps{
		Scraper: sc,
		Dedup:   dedup.NewEngine(provider, cfg.SimilarityThreshold, logger),
		Rewriter: rewrite.NewEngine(provider, rewrite.Options{
			Topic:          cfg.Topic,
			TargetLanguage: cfg.TargetLanguage,
			Temperature:    cfg.LLMTemperature,
			MaxTokens:      cfg.LLMMaxTokens,
			Timeout:        cfg.RequestTimeout,
		}, logger),
		Store:  a.store,
		Images: imaging.NewReconciler(processor, a.store, logger),
		Delivery: delivery.NewDeliverer(tg, delivery.Options{
			ChatID:          cfg.TelegramChatID,
			CaptionMaxRunes: cfg.CaptionMaxRunes,
			RequiredCharset: cfg.RequiredCharset,
		}, logger),
		Metrics:       a.metrics,
		Logger:        logger,
		DedupLookback: cfg.DedupLookback,
	}

	logger.Info("Application ready",
		"provider", provider.Name(),
		"embedding_model", embeddingModel,
		"sources", len(a.registry.Active()),
		"strategies", sc.Tags())
	return a, nil
}

// newProvider builds the configured model backend wrapped in the request
// budget and the embedding cache.
func (a *App) newProvider(ctx context.Context) (llm.Provider, string, error) {
	cfg := a.cfg

	var base llm.Provider
	var embeddingModel string
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		g, err := llm.NewGemini(ctx, llm.GeminiOptions{
			APIKey:         cfg.GeminiAPIKey,
			ChatModel:      cfg.GeminiChatModel,
			EmbeddingModel: cfg.GeminiEmbeddingModel,
		})
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, g.Close)
		base, embeddingModel = g, cfg.GeminiEmbeddingModel
	case config.ProviderOpenAI:
		base = llm.NewOpenAI(llm.OpenAIOptions{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.OpenAIChatModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
		})
		embeddingModel = cfg.OpenAIEmbeddingModel
	default:
		return nil, "", fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}

	a.limiter = ratelimit.NewAIRateLimiter(base.Name(), cfg.MaxLLMRequests, cfg.LLMRequestsPerMinute)
	embeddings := cache.New(time.Hour)
	a.closers = append(a.closers, func() error { embeddings.Close(); return nil })

	limited := llm.NewLimited(base, a.limiter)
	return llm.NewCachedEmbeddings(limited, embeddings, cfg.EmbeddingCacheTTL, embeddingModel, a.limiter), embeddingModel, nil
}

// OpenStore returns the Postgres store when DATABASE_URL is set and the JSON
// file store otherwise.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Using PostgreSQL storage")
		return pg, nil
	}

	fs := storage.NewFileStore(cfg.StoreFilePath, fileStoreRetention)
	if err := fs.Load(); err != nil {
		return nil, err
	}
	logger.Info("Using file storage", "path", cfg.StoreFilePath)
	return fs, nil
}

func (a *App) Registry() *sources.Registry { return a.registry }

func (a *App) Store() storage.Store { return a.store }

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// LimiterStats reports LLM budget usage.
func (a *App) LimiterStats() map[string]any {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.GetStats()
}

// Jobs returns one job per active source.
func (a *App) Jobs() []*pipeline.Job {
	var jobs []*pipeline.Job
	for _, src := range a.registry.Active() {
		jobs = append(jobs, pipeline.NewJob(src, a.deps))
	}
	return jobs
}

// Scheduler returns a scheduler over every active source.
func (a *App) Scheduler() *pipeline.Scheduler {
	return pipeline.NewScheduler(a.Jobs(), a.cfg.PollInterval, a.cfg.RunOnStart, a.logger)
}

// RunOnce runs a single cycle for the source with the given key, active or not.
func (a *App) RunOnce(ctx context.Context, key string) (pipeline.Report, error) {
	src, ok := a.registry.ByKey(key)
	if !ok {
		return pipeline.Report{}, fmt.Errorf("%w %q", ErrUnknownSource, key)
	}
	return pipeline.NewJob(src, a.deps).Run(ctx)
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
