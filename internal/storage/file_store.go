package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/newsharvest/internal/article"
)

// storedArticle is one record of the JSON file.
type storedArticle struct {
	article.Article
	InsertedAt time.Time `json:"inserted_at"`
}

// FileStore keeps articles in memory and mirrors them to a JSON file after
// every write. Used when no database is configured.
type FileStore struct {
	filePath  string
	retention time.Duration
	items     map[int64]storedArticle
	nextID    int64
	now       func() time.Time
	mu        sync.RWMutex
}

// NewFileStore creates a store backed by filePath. Records older than
// retention are dropped on Load; retention <= 0 keeps everything.
func NewFileStore(filePath string, retention time.Duration) *FileStore {
	return &FileStore{
		filePath:  filePath,
		retention: retention,
		items:     make(map[int64]storedArticle),
		nextID:    1,
		now:       time.Now,
	}
}

// Load reads existing records. A missing or empty file is an empty store.
func (fs *FileStore) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var records []storedArticle
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal store file: %w", err)
	}

	cutoff := time.Time{}
	if fs.retention > 0 {
		cutoff = fs.now().Add(-fs.retention)
	}
	for _, r := range records {
		if r.ID >= fs.nextID {
			fs.nextID = r.ID + 1
		}
		if r.InsertedAt.Before(cutoff) {
			continue
		}
		fs.items[r.ID] = r
	}
	return nil
}

// save writes every record to disk, ordered by id. Caller holds mu.
func (fs *FileStore) save() error {
	records := make([]storedArticle, 0, len(fs.items))
	for _, r := range fs.items {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	if err := os.WriteFile(fs.filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}

func (fs *FileStore) InsertArticle(_ context.Context, a article.Article) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	id := fs.nextID
	a.ID = id
	if a.Status == "" {
		a.Status = article.StatusNew
	}
	fs.items[id] = storedArticle{Article: a, InsertedAt: fs.now()}
	if err := fs.save(); err != nil {
		delete(fs.items, id)
		return 0, err
	}
	fs.nextID++
	return id, nil
}

func (fs *FileStore) UpdateImage(_ context.Context, id int64, image string) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	r, ok := fs.items[id]
	if !ok {
		return 0, nil
	}
	prev := r
	r.Image = image
	fs.items[id] = r
	if err := fs.save(); err != nil {
		fs.items[id] = prev
		return 0, err
	}
	return 1, nil
}

func (fs *FileStore) UpdateStatus(_ context.Context, ids []int64, status string) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prev := make(map[int64]storedArticle, len(ids))
	for _, id := range ids {
		r, ok := fs.items[id]
		if !ok {
			continue
		}
		if _, seen := prev[id]; !seen {
			prev[id] = r
		}
		r.Status = status
		fs.items[id] = r
	}
	if len(prev) == 0 {
		return 0, nil
	}
	if err := fs.save(); err != nil {
		for id, r := range prev {
			fs.items[id] = r
		}
		return 0, err
	}
	return int64(len(prev)), nil
}

func (fs *FileStore) ArticlesByIDs(_ context.Context, ids []int64) ([]article.Article, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var out []article.Article
	for _, id := range ids {
		if r, ok := fs.items[id]; ok {
			out = append(out, r.Article)
		}
	}
	return out, nil
}

func (fs *FileStore) RecentTitles(_ context.Context, since time.Time) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var titles []string
	for _, r := range fs.sorted() {
		if !r.InsertedAt.Before(since) {
			titles = append(titles, r.Title)
		}
	}
	return titles, nil
}

func (fs *FileStore) ExistingLinks(_ context.Context, links []string) (map[string]bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	want := make(map[string]bool, len(links))
	for _, l := range links {
		want[l] = true
	}
	found := make(map[string]bool)
	for _, r := range fs.items {
		if want[r.Link] {
			found[r.Link] = true
		}
	}
	return found, nil
}

func (fs *FileStore) Stats(context.Context) (map[string]int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	stats := map[string]int{"total_items": len(fs.items)}
	dayAgo := fs.now().Add(-24 * time.Hour)
	for _, r := range fs.items {
		if r.InsertedAt.After(dayAgo) {
			stats["last_24h"]++
		}
		stats["status_"+r.Status]++
		stats["source_"+r.Source]++
	}
	return stats, nil
}

func (fs *FileStore) RecentArticles(_ context.Context, limit int) ([]article.Article, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var out []article.Article
	for _, r := range fs.sorted() {
		if len(out) == limit {
			break
		}
		out = append(out, r.Article)
	}
	return out, nil
}

func (fs *FileStore) Close() error { return nil }

// sorted returns records newest first. Caller holds mu.
func (fs *FileStore) sorted() []storedArticle {
	records := make([]storedArticle, 0, len(fs.items))
	for _, r := range fs.items {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].InsertedAt.Equal(records[j].InsertedAt) {
			return records[i].InsertedAt.After(records[j].InsertedAt)
		}
		return records[i].ID > records[j].ID
	})
	return records
}
