package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deusflow/newsharvest/internal/article"
	"github.com/deusflow/newsharvest/internal/browser"
	"github.com/deusflow/newsharvest/internal/sources"
)

// MainNewsTag is the strategy tag of portals with a "main news" block on the listing page.
const MainNewsTag = "main_news"

// Selectors locate the parts of a main-news portal.
type Selectors struct {
	Marker        string // listing region, also the "page is rendered" signal
	Date          string
	Title         string
	Body          string
	Image         string // element carrying a content attribute, usually og:image
	ImageFallback string // img element carrying src
}

var DefaultSelectors = Selectors{
	Marker:        ".main-news",
	Date:          ".article-date",
	Title:         "h1",
	Body:          ".article-body p",
	Image:         `meta[property="og:image"]`,
	ImageFallback: "article img",
}

// with applies per-source overrides by selector name.
func (s Selectors) with(overrides map[string]string) Selectors {
	for name, v := range overrides {
		if v == "" {
			continue
		}
		switch name {
		case "marker":
			s.Marker = v
		case "date":
			s.Date = v
		case "title":
			s.Title = v
		case "body":
			s.Body = v
		case "image":
			s.Image = v
		case "image_fallback":
			s.ImageFallback = v
		}
	}
	return s
}

type MainNewsOptions struct {
	Launcher        browser.Launcher
	Location        *time.Location
	StalenessWindow time.Duration
	Delay           time.Duration // pause between article navigations
	PageTimeout     time.Duration
	SelectorTimeout time.Duration
	Exclude         []string
	ScreenshotDir   string // when set, a screenshot is saved there if the listing never renders
	Now             func() time.Time
	Logger          *slog.Logger
}

// MainNews walks the links of a portal's main-news block, newest first,
// and stops at the first article older than the staleness window.
type MainNews struct {
	opts  MainNewsOptions
	sleep func(context.Context, time.Duration) error
}

func NewMainNews(opts MainNewsOptions) *MainNews {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.StalenessWindow <= 0 {
		opts.StalenessWindow = 3 * time.Hour
	}
	if opts.Exclude == nil {
		opts.Exclude = DefaultExclude
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &MainNews{opts: opts, sleep: sleepCtx}
}

func (m *MainNews) Scrape(ctx context.Context, src sources.Source) ([]article.Article, error) {
	log := m.opts.Logger.With("source", src.Key)
	sel := DefaultSelectors.with(src.Selectors)

	page, err := m.opts.Launcher.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Warn("Failed to close browser page", "error", cerr)
		}
	}()

	if err := page.Navigate(ctx, src.URL, m.opts.PageTimeout); err != nil {
		return nil, fmt.Errorf("listing page: %w", err)
	}
	if err := page.WaitVisible(ctx, sel.Marker, m.opts.SelectorTimeout); err != nil {
		m.saveScreenshot(ctx, page, src.Key, log)
		return nil, fmt.Errorf("listing page: %w", err)
	}
	fragments, err := page.InnerHTML(ctx, sel.Marker)
	if err != nil {
		return nil, fmt.Errorf("listing page: %w", err)
	}

	exclude := append(append([]string{}, m.opts.Exclude...), src.Exclude...)
	links := ExtractLinks(fragments, exclude)
	log.Info("Discovered article links", "count", len(links))

	window := src.StalenessOr(m.opts.StalenessWindow)
	visited := make(map[string]bool, len(links))
	var out []article.Article

	for _, link := range links {
		if visited[link] {
			continue
		}
		if len(visited) > 0 {
			if err := m.sleep(ctx, m.opts.Delay); err != nil {
				return nil, err
			}
		}
		visited[link] = true

		created, err := m.articleDate(ctx, page, sel, link)
		if err != nil {
			log.Warn("Skipping article", "link", link, "error", err)
			continue
		}

		if age := m.opts.Now().Sub(time.UnixMilli(created)); age > window {
			log.Info("Reached stale article, stopping scan", "link", link, "age", age.Round(time.Minute), "window", window)
			break
		}

		a, err := m.extract(ctx, page, sel, link)
		if err != nil {
			log.Warn("Failed to extract article", "link", link, "error", err)
			continue
		}
		a.Source = src.Key
		a.Created = created
		out = append(out, a)
		log.Debug("Extracted article", "link", link, "title", a.Title, "chars", len(a.Content))
	}

	return out, nil
}

func (m *MainNews) articleDate(ctx context.Context, page browser.Page, sel Selectors, link string) (int64, error) {
	if err := page.Navigate(ctx, link, m.opts.PageTimeout); err != nil {
		return 0, err
	}
	texts, err := page.Text(ctx, sel.Date)
	if err != nil {
		return 0, fmt.Errorf("date: %w", err)
	}
	return ParseDate(firstNonEmpty(texts), m.opts.Location)
}

func (m *MainNews) extract(ctx context.Context, page browser.Page, sel Selectors, link string) (article.Article, error) {
	titles, err := page.Text(ctx, sel.Title)
	if err != nil {
		return article.Article{}, fmt.Errorf("title: %w", err)
	}
	title := firstNonEmpty(titles)
	if title == "" {
		return article.Article{}, errors.New("title: empty")
	}

	paragraphs, err := page.Text(ctx, sel.Body)
	if err != nil {
		return article.Article{}, fmt.Errorf("body: %w", err)
	}
	content := cleanParagraphs(paragraphs)
	if content == "" {
		return article.Article{}, errors.New("body: empty after cleanup")
	}

	image, err := page.Attribute(ctx, sel.Image, "content")
	if err != nil && sel.ImageFallback != "" {
		image, err = page.Attribute(ctx, sel.ImageFallback, "src")
	}
	if err != nil {
		image = ""
	}

	return article.Article{
		Title:   title,
		Link:    link,
		Content: content,
		Image:   image,
	}, nil
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// saveScreenshot keeps a picture of a listing page that did not render.
func (m *MainNews) saveScreenshot(ctx context.Context, page browser.Page, key string, log *slog.Logger) {
	if m.opts.ScreenshotDir == "" {
		return
	}
	png, err := page.Screenshot(ctx)
	if err != nil {
		log.Warn("Failed to take screenshot", "error", err)
		return
	}
	path := filepath.Join(m.opts.ScreenshotDir, fmt.Sprintf("%s-%d.png", key, m.opts.Now().Unix()))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		log.Warn("Failed to save screenshot", "path", path, "error", err)
		return
	}
	log.Info("Saved listing screenshot", "path", path)
}
