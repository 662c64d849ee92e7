// Package browser wraps the headless browser used to render news pages.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a selector matches nothing.
var ErrNotFound = errors.New("element not found")

// Page is one browser tab.
type Page interface {
	// Navigate loads url and waits for the load event, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitVisible blocks until selector is rendered, bounded by timeout.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// InnerHTML returns the inner HTML of every element matching selector.
	InnerHTML(ctx context.Context, selector string) ([]string, error)
	// Text returns the trimmed text of every element matching selector.
	Text(ctx context.Context, selector string) ([]string, error)
	// Attribute returns attr of the first element matching selector.
	Attribute(ctx context.Context, selector, attr string) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher starts a fresh browser page. Callers must Close the page.
type Launcher interface {
	NewPage(ctx context.Context) (Page, error)
}
