// Package scraper turns a configured source into freshly published articles.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/deusflow/newsharvest/internal/article"
	"github.com/deusflow/newsharvest/internal/sources"
)

// ErrUnknownStrategy is returned for a source whose strategy tag is not registered.
var ErrUnknownStrategy = errors.New("unknown extraction strategy")

// Strategy extracts recent articles from one kind of site.
//
// Individual article failures are logged and skipped. An error means the
// whole source could not be read this cycle.
type Strategy interface {
	Scrape(ctx context.Context, src sources.Source) ([]article.Article, error)
}

// Scraper dispatches a source to the strategy registered under its tag.
type Scraper struct {
	strategies map[string]Strategy
}

func New() *Scraper {
	return &Scraper{strategies: make(map[string]Strategy)}
}

// Register adds a strategy under tag, replacing any previous one.
func (s *Scraper) Register(tag string, strategy Strategy) *Scraper {
	s.strategies[tag] = strategy
	return s
}

// Tags lists registered strategy tags, sorted.
func (s *Scraper) Tags() []string {
	tags := make([]string, 0, len(s.strategies))
	for tag := range s.strategies {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func (s *Scraper) Scrape(ctx context.Context, src sources.Source) ([]article.Article, error) {
	strategy, ok := s.strategies[src.Strategy]
	if !ok {
		return nil, fmt.Errorf("source %q: %w %q", src.Key, ErrUnknownStrategy, src.Strategy)
	}
	return strategy.Scrape(ctx, src)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
