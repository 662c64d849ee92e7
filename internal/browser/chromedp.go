package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// ChromeOptions configures the chromedp launcher.
type ChromeOptions struct {
	Headless  bool
	ExecPath  string
	UserAgent string
}

// ChromeLauncher starts one Chrome process per page.
type ChromeLauncher struct {
	opts ChromeOptions
}

func NewChromeLauncher(opts ChromeOptions) *ChromeLauncher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &ChromeLauncher{opts: opts}
}

// NewPage launches Chrome. The process lives until the returned page is closed.
func (l *ChromeLauncher) NewPage(ctx context.Context) (Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.UserAgent(l.opts.UserAgent),
		chromedp.WindowSize(1366, 900),
	)
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser so later timeouts only bound single actions.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &chromePage{
		ctx: tabCtx,
		close: func() {
			tabCancel()
			allocCancel()
		},
	}, nil
}

type chromePage struct {
	ctx   context.Context
	close func()
}

// bind ties a caller context and optional timeout to the tab context.
func (p *chromePage) bind(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		return runCtx, func() { tcancel(); stop(); cancel() }
	}
	return runCtx, func() { stop(); cancel() }
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel := p.bind(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := p.bind(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// document snapshots the rendered DOM so selectors never block on missing nodes.
func (p *chromePage) document(ctx context.Context) (*goquery.Document, error) {
	runCtx, cancel := p.bind(ctx, 0)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *chromePage) InnerHTML(ctx context.Context, selector string) ([]string, error) {
	doc, err := p.document(ctx)
	if err != nil {
		return nil, err
	}
	return InnerHTMLOf(doc.Selection, selector)
}

func (p *chromePage) Text(ctx context.Context, selector string) ([]string, error) {
	doc, err := p.document(ctx)
	if err != nil {
		return nil, err
	}
	return TextOf(doc.Selection, selector)
}

func (p *chromePage) Attribute(ctx context.Context, selector, attr string) (string, error) {
	doc, err := p.document(ctx)
	if err != nil {
		return "", err
	}
	return AttributeOf(doc.Selection, selector, attr)
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := p.bind(ctx, 0)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 85)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (p *chromePage) Close() error {
	p.close()
	return nil
}
