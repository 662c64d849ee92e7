package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/deusflow/newsharvest/internal/article"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const articleColumns = `id, link, content, created, title, image, status, source`

// Postgres stores articles in PostgreSQL.
type Postgres struct {
	db *sqlx.DB
}

type articleRow struct {
	ID      int64          `db:"id"`
	Link    string         `db:"link"`
	Content string         `db:"content"`
	Created time.Time      `db:"created"`
	Title   string         `db:"title"`
	Image   sql.NullString `db:"image"`
	Status  string         `db:"status"`
	Source  string         `db:"source"`
}

func (r articleRow) article() article.Article {
	return article.Article{
		ID:      r.ID,
		Source:  r.Source,
		Title:   r.Title,
		Link:    r.Link,
		Content: r.Content,
		Created: r.Created.UnixMilli(),
		Image:   r.Image.String,
		Status:  r.Status,
	}
}

// NewPostgres connects, checks the connection and creates the schema if missing.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	p := NewPostgresFromDB(db)
	if err := p.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func NewPostgresFromDB(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		link TEXT NOT NULL,
		content TEXT NOT NULL,
		created TIMESTAMPTZ NOT NULL,
		title TEXT NOT NULL,
		image TEXT,
		status VARCHAR(20) NOT NULL DEFAULT 'New',
		source VARCHAR(100) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_articles_link ON articles(link);
	CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at);
	`
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (p *Postgres) InsertArticle(ctx context.Context, a article.Article) (int64, error) {
	status := a.Status
	if status == "" {
		status = article.StatusNew
	}
	query := `
		INSERT INTO articles (link, content, created, title, image, status, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err := p.db.QueryRowxContext(ctx, query,
		a.Link, a.Content, time.UnixMilli(a.Created), a.Title, nullString(a.Image), status, a.Source,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert article: %w", err)
	}
	return id, nil
}

func (p *Postgres) UpdateImage(ctx context.Context, id int64, image string) (int64, error) {
	query := `UPDATE articles SET image = $1, updated_at = NOW() WHERE id = $2`
	res, err := p.db.ExecContext(ctx, query, image, id)
	if err != nil {
		return 0, fmt.Errorf("failed to update image of article %d: %w", id, err)
	}
	return res.RowsAffected()
}

func (p *Postgres) UpdateStatus(ctx context.Context, ids []int64, status string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `UPDATE articles SET status = $1, updated_at = NOW() WHERE id = ANY($2)`
	res, err := p.db.ExecContext(ctx, query, status, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to update status: %w", err)
	}
	return res.RowsAffected()
}

func (p *Postgres) ArticlesByIDs(ctx context.Context, ids []int64) ([]article.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = ANY($1)`

	var rows []articleRow
	if err := p.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to select articles: %w", err)
	}

	byID := make(map[int64]article.Article, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.article()
	}
	out := make([]article.Article, 0, len(rows))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (p *Postgres) RecentTitles(ctx context.Context, since time.Time) ([]string, error) {
	query := `SELECT title FROM articles WHERE created_at >= $1 ORDER BY created_at DESC`
	var titles []string
	if err := p.db.SelectContext(ctx, &titles, query, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to select recent titles: %w", err)
	}
	return titles, nil
}

func (p *Postgres) ExistingLinks(ctx context.Context, links []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(links) == 0 {
		return found, nil
	}
	query := `SELECT DISTINCT link FROM articles WHERE link = ANY($1)`
	var stored []string
	if err := p.db.SelectContext(ctx, &stored, query, pq.Array(links)); err != nil {
		return nil, fmt.Errorf("failed to check links: %w", err)
	}
	for _, l := range stored {
		found[l] = true
	}
	return found, nil
}

// Stats returns article counts overall, by status and by source.
func (p *Postgres) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	var total int
	if err := p.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM articles`); err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}
	stats["total_items"] = total

	var last24h int
	if err := p.db.GetContext(ctx, &last24h, `SELECT COUNT(*) FROM articles WHERE created_at > NOW() - INTERVAL '24 hours'`); err != nil {
		return nil, fmt.Errorf("failed to count recent articles: %w", err)
	}
	stats["last_24h"] = last24h

	type group struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	var byStatus []group
	if err := p.db.SelectContext(ctx, &byStatus, `SELECT status AS key, COUNT(*) AS count FROM articles GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to group by status: %w", err)
	}
	for _, g := range byStatus {
		stats["status_"+g.Key] = g.Count
	}

	var bySource []group
	if err := p.db.SelectContext(ctx, &bySource, `SELECT source AS key, COUNT(*) AS count FROM articles GROUP BY source`); err != nil {
		return nil, fmt.Errorf("failed to group by source: %w", err)
	}
	for _, g := range bySource {
		stats["source_"+g.Key] = g.Count
	}

	return stats, nil
}

// RecentArticles returns the most recently stored articles, newest first.
func (p *Postgres) RecentArticles(ctx context.Context, limit int) ([]article.Article, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	query := `SELECT ` + articleColumns + ` FROM articles ORDER BY created_at DESC, id DESC LIMIT $1`

	var rows []articleRow
	if err := p.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to select recent articles: %w", err)
	}
	out := make([]article.Article, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.article())
	}
	return out, nil
}

func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
