// Package dedup drops articles whose title is semantically close to a title
// already seen, using embedding cosine similarity.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/deusflow/newsharvest/internal/article"
	"github.com/deusflow/newsharvest/internal/llm"
)

const DefaultThreshold = 0.75

// ErrMalformedVectors reports an embedding response that cannot be compared.
var ErrMalformedVectors = errors.New("malformed embedding vectors")

// Cosine returns dot(a,b)/(|a||b|), or 0 when either vector has zero magnitude.
// It panics when the vectors differ in length.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("dedup: cosine of vectors with lengths %d and %d", len(a), len(b)))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type Engine struct {
	embedder  llm.Embedder
	threshold float64
	logger    *slog.Logger
}

func NewEngine(embedder llm.Embedder, threshold float64, logger *slog.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: embedder, threshold: threshold, logger: logger}
}

func (e *Engine) Threshold() float64 { return e.threshold }

// WithThreshold returns a copy of the engine using threshold, or e itself when threshold is not positive.
func (e *Engine) WithThreshold(threshold float64) *Engine {
	if threshold <= 0 || threshold == e.threshold {
		return e
	}
	c := *e
	c.threshold = threshold
	return &c
}

// Verdicts reports, per new title, whether it duplicates any existing title.
// Titles must be non-blank.
func (e *Engine) Verdicts(ctx context.Context, newTitles, existingTitles []string) ([]bool, error) {
	newVecs, err := e.embed(ctx, newTitles)
	if err != nil {
		return nil, fmt.Errorf("embed new titles: %w", err)
	}
	oldVecs, err := e.embed(ctx, existingTitles)
	if err != nil {
		return nil, fmt.Errorf("embed existing titles: %w", err)
	}
	if len(newVecs) == 0 || len(oldVecs) == 0 {
		return make([]bool, len(newVecs)), nil
	}
	if dn, do := len(newVecs[0]), len(oldVecs[0]); dn != do {
		return nil, fmt.Errorf("%w: new titles have %d dimensions, existing %d", ErrMalformedVectors, dn, do)
	}

	verdicts := make([]bool, len(newVecs))
	for i, nv := range newVecs {
		best := math.Inf(-1)
		for _, ov := range oldVecs {
			if s := Cosine(nv, ov); s > best {
				best = s
			}
		}
		verdicts[i] = best >= e.threshold
	}
	return verdicts, nil
}

// Filter returns the articles whose titles are not near-duplicates of
// existingTitles, in input order. When either side has no usable titles or
// the embedding call fails, articles are returned unchanged.
func (e *Engine) Filter(ctx context.Context, articles []article.Article, existingTitles []string) []article.Article {
	var candidates []int
	var newTitles []string
	for i, a := range articles {
		if !article.Blank(a.Title) {
			candidates = append(candidates, i)
			newTitles = append(newTitles, strings.TrimSpace(a.Title))
		}
	}

	var oldTitles []string
	for _, t := range existingTitles {
		if !article.Blank(t) {
			oldTitles = append(oldTitles, strings.TrimSpace(t))
		}
	}

	if len(newTitles) == 0 || len(oldTitles) == 0 {
		return articles
	}

	verdicts, err := e.Verdicts(ctx, newTitles, oldTitles)
	if err != nil {
		e.logger.Warn("Similarity check failed, keeping all articles", "error", err)
		return articles
	}

	drop := make(map[int]bool, len(candidates))
	for j, dup := range verdicts {
		if dup {
			drop[candidates[j]] = true
			e.logger.Debug("Dropping near-duplicate", "title", articles[candidates[j]].Title)
		}
	}

	out := make([]article.Article, 0, len(articles)-len(drop))
	for i, a := range articles {
		if !drop[i] {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(resp.Vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d titles", ErrMalformedVectors, len(resp.Vectors), len(texts))
	}
	for i, v := range resp.Vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector for title %d", ErrMalformedVectors, i)
		}
		if len(v) != len(resp.Vectors[0]) {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrMalformedVectors, i, len(v), len(resp.Vectors[0]))
		}
	}
	return resp.Vectors, nil
}
