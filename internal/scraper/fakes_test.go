package scraper_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/deusflow/newsharvest/internal/browser"
)

// fakeLauncher serves canned HTML per URL.
type fakeLauncher struct {
	mu        sync.Mutex
	pages     map[string]string
	launchErr error
	opened    int
	closed    int
	visits    []string
}

func newFakeLauncher(pages map[string]string) *fakeLauncher {
	return &fakeLauncher{pages: pages}
}

func (l *fakeLauncher) NewPage(context.Context) (browser.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.opened++
	return &fakePage{launcher: l}, nil
}

func (l *fakeLauncher) visited() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.visits...)
}

type fakePage struct {
	launcher *fakeLauncher
	doc      *goquery.Document
}

func (p *fakePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	p.launcher.mu.Lock()
	defer p.launcher.mu.Unlock()
	p.launcher.visits = append(p.launcher.visits, url)

	html, ok := p.launcher.pages[url]
	if !ok {
		p.doc = nil
		return fmt.Errorf("navigate %s: net::ERR_NAME_NOT_RESOLVED", url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	p.doc = doc
	return nil
}

func (p *fakePage) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	if p.doc == nil || p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("wait for %q: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

func (p *fakePage) InnerHTML(_ context.Context, selector string) ([]string, error) {
	if p.doc == nil {
		return nil, errors.New("no document")
	}
	return browser.InnerHTMLOf(p.doc.Selection, selector)
}

func (p *fakePage) Text(_ context.Context, selector string) ([]string, error) {
	if p.doc == nil {
		return nil, errors.New("no document")
	}
	return browser.TextOf(p.doc.Selection, selector)
}

func (p *fakePage) Attribute(_ context.Context, selector, attr string) (string, error) {
	if p.doc == nil {
		return "", errors.New("no document")
	}
	return browser.AttributeOf(p.doc.Selection, selector, attr)
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func (p *fakePage) Close() error {
	p.launcher.mu.Lock()
	defer p.launcher.mu.Unlock()
	p.launcher.closed++
	return nil
}

func listingHTML(links ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><nav><a href="https://news.example.pl/menu">Menu</a></nav><section class="main-news">`)
	for _, l := range links {
		fmt.Fprintf(&b, `<article><a href="%s">headline</a></article>`, l)
	}
	b.WriteString(`</section></body></html>`)
	return b.String()
}

func articleHTML(title, date, image string, paragraphs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><head>`)
	if image != "" {
		fmt.Fprintf(&b, `<meta property="og:image" content="%s">`, image)
	}
	fmt.Fprintf(&b, `</head><body><article><h1>%s</h1><span class="article-date">%s</span><div class="article-body">`, title, date)
	for _, p := range paragraphs {
		fmt.Fprintf(&b, `<p>%s</p>`, p)
	}
	b.WriteString(`</div></article></body></html>`)
	return b.String()
}
