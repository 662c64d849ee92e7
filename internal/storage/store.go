// Package storage persists harvested articles.
package storage

import (
	"context"
	"time"

	"github.com/deusflow/newsharvest/internal/article"
)

// Store is the article table. Postgres and a JSON file implement it.
type Store interface {
	// InsertArticle writes a and returns the generated identifier.
	InsertArticle(ctx context.Context, a article.Article) (int64, error)
	// UpdateImage sets the image of one article and returns rows affected.
	UpdateImage(ctx context.Context, id int64, image string) (int64, error)
	// UpdateStatus sets the status of the given articles and returns rows affected.
	UpdateStatus(ctx context.Context, ids []int64, status string) (int64, error)
	// ArticlesByIDs returns the stored articles in the order of ids, skipping unknown ones.
	ArticlesByIDs(ctx context.Context, ids []int64) ([]article.Article, error)
	// RecentTitles returns titles of articles stored at or after since.
	RecentTitles(ctx context.Context, since time.Time) ([]string, error)
	// ExistingLinks reports which of links are already stored.
	ExistingLinks(ctx context.Context, links []string) (map[string]bool, error)
	Stats(ctx context.Context) (map[string]int, error)
	RecentArticles(ctx context.Context, limit int) ([]article.Article, error)
	Close() error
}

const defaultRecentLimit = 10
