// Package article holds the article value passed between pipeline stages.
//
// Stages never modify an Article in place: every transform returns a copy,
// so a stage failing halfway through a batch cannot leave earlier items half-edited.
package article

import (
	"strings"
	"time"
)

const (
	StatusNew       = "New"
	StatusPublished = "Published"
)

// Article is one harvested news item.
type Article struct {
	ID      int64  `json:"id,omitempty"` // 0 until written to storage
	Source  string `json:"source"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Content string `json:"content"`
	Created int64  `json:"created"` // epoch milliseconds
	Image   string `json:"image,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Persisted reports whether the article carries a storage identifier.
func (a Article) Persisted() bool {
	return a.ID != 0
}

func (a Article) CreatedTime() time.Time {
	return time.UnixMilli(a.Created)
}

func (a Article) WithRewrite(title, content string) Article {
	a.Title = title
	a.Content = content
	return a
}

func (a Article) WithImage(image string) Article {
	a.Image = image
	return a
}

func (a Article) WithID(id int64) Article {
	a.ID = id
	return a
}

func (a Article) WithStatus(status string) Article {
	a.Status = status
	return a
}

// Titles returns the titles of articles, in order.
func Titles(articles []Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.Title
	}
	return out
}

// IDs returns identifiers of persisted articles, in order.
func IDs(articles []Article) []int64 {
	var out []int64
	for _, a := range articles {
		if a.Persisted() {
			out = append(out, a.ID)
		}
	}
	return out
}

// Blank reports whether s is empty after trimming whitespace.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
