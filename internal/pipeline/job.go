// Package pipeline runs the harvest cycle of a source and schedules it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/newsharvest/internal/article"
	"github.com/deusflow/newsharvest/internal/dedup"
	"github.com/deusflow/newsharvest/internal/delivery"
	"github.com/deusflow/newsharvest/internal/imaging"
	"github.com/deusflow/newsharvest/internal/metrics"
	"github.com/deusflow/newsharvest/internal/rewrite"
	"github.com/deusflow/newsharvest/internal/sources"
	"github.com/deusflow/newsharvest/internal/storage"
	"github.com/google/uuid"
)

type Stage string

const (
	StageScraping          Stage = "scraping"
	StageDeduplicating     Stage = "deduplicating"
	StageRewriting         Stage = "rewriting"
	StagePersisting        Stage = "persisting"
	StageReconcilingImages Stage = "reconciling_images"
	StageDelivering        Stage = "delivering"
	StageIdle              Stage = "idle"
)

// Scraper extracts recent articles of a source. *scraper.Scraper implements it.
type Scraper interface {
	Scrape(ctx context.Context, src sources.Source) ([]article.Article, error)
}

// Deps are the collaborators shared by every job.
type Deps struct {
	Scraper       Scraper
	Dedup         *dedup.Engine
	Rewriter      *rewrite.Engine
	Store         storage.Store
	Images        *imaging.Reconciler
	Delivery      *delivery.Deliverer
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	DedupLookback time.Duration
	Now           func() time.Time
}

// Report describes one cycle.
type Report struct {
	CycleID       string
	Source        string
	Stage         Stage // last stage entered; StageIdle when the cycle ran to the end
	Scraped       int
	KnownLinks    int
	Duplicates    int
	Rewritten     int
	Irrelevant    int
	RewriteFailed int
	Persisted     int
	ImagesUpdated int
	Sent          int
	Skipped       int
	SendFailed    int
	Published     int
	Duration      time.Duration
}

// Job is the harvest cycle of one source.
type Job struct {
	src  sources.Source
	deps Deps
}

func NewJob(src sources.Source, deps Deps) *Job {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Global
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DedupLookback <= 0 {
		deps.DedupLookback = 48 * time.Hour
	}
	return &Job{src: src, deps: deps}
}

func (j *Job) Source() sources.Source { return j.src }

// Run executes scrape, dedup, rewrite, persist, image reconciliation and
// delivery in order. An empty batch ends the cycle early without error.
// Scrape and image reconciliation failures abort the cycle.
func (j *Job) Run(ctx context.Context) (rep Report, err error) {
	start := time.Now()
	rep = Report{CycleID: uuid.NewString(), Source: j.src.Key}
	log := j.deps.Logger.With("source", j.src.Key, "cycle_id", rep.CycleID)
	m := j.deps.Metrics

	defer func() {
		rep.Duration = time.Since(start)
		m.RecordCycle(j.src.Key, rep.Duration, err)
		if err != nil {
			log.Error("Cycle failed", "stage", rep.Stage, "error", err, "duration", rep.Duration)
			return
		}
		log.Info("Cycle finished", "stage", rep.Stage, "scraped", rep.Scraped, "sent", rep.Sent, "duration", rep.Duration)
	}()

	rep.Stage = StageScraping
	batch, err := j.deps.Scraper.Scrape(ctx, j.src)
	if err != nil {
		return rep, fmt.Errorf("scrape %s: %w", j.src.Key, err)
	}
	rep.Scraped = len(batch)
	m.Add(j.src.Key, metrics.StageScraped, len(batch))
	if len(batch) == 0 {
		log.Info("No fresh articles")
		return rep, nil
	}

	rep.Stage = StageDeduplicating
	batch = j.dropKnownLinks(ctx, log, batch, &rep)
	if len(batch) > 0 {
		before := len(batch)
		existing := j.recentTitles(ctx, log)
		engine := j.deps.Dedup.WithThreshold(j.src.ThresholdOr(j.deps.Dedup.Threshold()))
		batch = engine.Filter(ctx, batch, existing)
		rep.Duplicates = before - len(batch)
	}
	m.Add(j.src.Key, metrics.StageDuplicate, rep.KnownLinks+rep.Duplicates)
	if len(batch) == 0 {
		log.Info("Everything already seen")
		return rep, nil
	}

	rep.Stage = StageRewriting
	batch, stats := j.deps.Rewriter.FormatWithStats(ctx, batch)
	rep.Rewritten, rep.Irrelevant, rep.RewriteFailed = stats.Rewritten, stats.Irrelevant, stats.Failed
	m.Add(j.src.Key, metrics.StageRewritten, stats.Rewritten)
	m.Add(j.src.Key, metrics.StageIrrelevant, stats.Irrelevant)
	m.Add(j.src.Key, metrics.StageRewriteFail, stats.Failed)
	if len(batch) == 0 {
		log.Info("Nothing relevant left after rewrite")
		return rep, nil
	}

	rep.Stage = StagePersisting
	batch = j.persist(ctx, log, batch)
	rep.Persisted = len(article.IDs(batch))
	m.Add(j.src.Key, metrics.StagePersisted, rep.Persisted)

	rep.Stage = StageReconcilingImages
	batch, rep.ImagesUpdated, err = j.deps.Images.ReconcileWithCount(ctx, batch)
	if err != nil {
		return rep, fmt.Errorf("reconcile images: %w", err)
	}
	m.Add(j.src.Key, metrics.StageReconciled, rep.ImagesUpdated)
	if len(batch) == 0 {
		return rep, nil
	}

	rep.Stage = StageDelivering
	res := j.deps.Delivery.Deliver(ctx, batch)
	rep.Sent, rep.Skipped, rep.SendFailed = res.Sent, res.Skipped, res.Failed
	m.Add(j.src.Key, metrics.StageSent, res.Sent)
	m.Add(j.src.Key, metrics.StageSkipped, res.Skipped)
	m.Add(j.src.Key, metrics.StageSendFailed, res.Failed)

	if ids := article.IDs(res.Delivered); len(ids) > 0 {
		n, uerr := j.deps.Store.UpdateStatus(ctx, ids, article.StatusPublished)
		if uerr != nil {
			log.Warn("Failed to mark articles as published", "ids", ids, "error", uerr)
		}
		rep.Published = int(n)
	}

	rep.Stage = StageIdle
	return rep, nil
}

// dropKnownLinks removes articles whose link is already stored. A storage
// error keeps the whole batch.
func (j *Job) dropKnownLinks(ctx context.Context, log *slog.Logger, batch []article.Article, rep *Report) []article.Article {
	links := make([]string, len(batch))
	for i, a := range batch {
		links[i] = a.Link
	}
	known, err := j.deps.Store.ExistingLinks(ctx, links)
	if err != nil {
		log.Warn("Failed to check stored links", "error", err)
		return batch
	}

	out := make([]article.Article, 0, len(batch))
	for _, a := range batch {
		if known[a.Link] {
			rep.KnownLinks++
			continue
		}
		out = append(out, a)
	}
	return out
}

func (j *Job) recentTitles(ctx context.Context, log *slog.Logger) []string {
	titles, err := j.deps.Store.RecentTitles(ctx, j.deps.Now().Add(-j.deps.DedupLookback))
	if err != nil {
		log.Warn("Failed to load recent titles, comparing against none", "error", err)
		return nil
	}
	return titles
}

func (j *Job) persist(ctx context.Context, log *slog.Logger, batch []article.Article) []article.Article {
	out := make([]article.Article, 0, len(batch))
	for _, a := range batch {
		a = a.WithStatus(article.StatusNew)
		id, err := j.deps.Store.InsertArticle(ctx, a)
		if err != nil {
			log.Warn("Failed to persist article", "link", a.Link, "error", err)
			out = append(out, a)
			continue
		}
		out = append(out, a.WithID(id))
	}
	return out
}
