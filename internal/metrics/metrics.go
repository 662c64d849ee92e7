package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	articlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsharvest_articles_total",
		Help: "Articles passing through each pipeline stage.",
	}, []string{"source", "stage"})

	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsharvest_cycles_total",
		Help: "Pipeline cycles by outcome.",
	}, []string{"source", "outcome"})

	cycleSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsharvest_cycle_duration_seconds",
		Help:    "Duration of one pipeline cycle.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"source"})
)

// Stage labels for articlesTotal.
const (
	StageScraped     = "scraped"
	StageDuplicate   = "duplicate"
	StageRewritten   = "rewritten"
	StageIrrelevant  = "irrelevant"
	StageRewriteFail = "rewrite_failed"
	StagePersisted   = "persisted"
	StageReconciled  = "image_reconciled"
	StageSent        = "sent"
	StageSkipped     = "skipped"
	StageSendFailed  = "send_failed"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	ArticlesScraped    int64
	DuplicatesFiltered int64
	RewriteFailures    int64
	ArticlesIrrelevant int64
	ImagesReconciled   int64
	MessagesSent       int64
	MessagesSkipped    int64
	SendFailures       int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

// Add bumps the counter behind stage by n for source.
func (m *Metrics) Add(source, stage string, n int) {
	if n <= 0 {
		return
	}
	articlesTotal.WithLabelValues(source, stage).Add(float64(n))

	m.mu.Lock()
	defer m.mu.Unlock()
	v := int64(n)
	switch stage {
	case StageScraped:
		m.ArticlesScraped += v
	case StageDuplicate:
		m.DuplicatesFiltered += v
	case StageRewriteFail:
		m.RewriteFailures += v
	case StageIrrelevant:
		m.ArticlesIrrelevant += v
	case StageReconciled:
		m.ImagesReconciled += v
	case StageSent:
		m.MessagesSent += v
	case StageSkipped:
		m.MessagesSkipped += v
	case StageSendFailed:
		m.SendFailures += v
	}
}

// RecordCycle stores the outcome of one pipeline run.
func (m *Metrics) RecordCycle(source string, duration time.Duration, err error) {
	cycleSeconds.WithLabelValues(source).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	m.LastRunTime = time.Now()

	if err != nil {
		cyclesTotal.WithLabelValues(source, "error").Inc()
		m.LastError = err.Error()
		m.LastErrorTime = m.LastRunTime
		m.IsHealthy = false
		return
	}
	cyclesTotal.WithLabelValues(source, "ok").Inc()
	m.IsHealthy = true
}

func (m *Metrics) GetStats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"articles_scraped":           m.ArticlesScraped,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"rewrite_failures":           m.RewriteFailures,
		"articles_irrelevant":        m.ArticlesIrrelevant,
		"images_reconciled":          m.ImagesReconciled,
		"messages_sent":              m.MessagesSent,
		"messages_skipped":           m.MessagesSkipped,
		"send_failures":              m.SendFailures,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"processing_count":           m.ProcessingCount,
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
