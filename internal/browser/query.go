package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// InnerHTMLOf returns the inner HTML of every match of selector under root.
func InnerHTMLOf(root *goquery.Selection, selector string) ([]string, error) {
	nodes := root.Find(selector)
	if nodes.Length() == 0 {
		return nil, fmt.Errorf("%q: %w", selector, ErrNotFound)
	}
	out := make([]string, 0, nodes.Length())
	var firstErr error
	nodes.Each(func(_ int, s *goquery.Selection) {
		html, err := s.Html()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		out = append(out, html)
	})
	return out, firstErr
}

// TextOf returns the trimmed text of every match of selector under root.
func TextOf(root *goquery.Selection, selector string) ([]string, error) {
	nodes := root.Find(selector)
	if nodes.Length() == 0 {
		return nil, fmt.Errorf("%q: %w", selector, ErrNotFound)
	}
	out := make([]string, 0, nodes.Length())
	nodes.Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out, nil
}

// AttributeOf returns attr of the first match of selector that carries it.
func AttributeOf(root *goquery.Selection, selector, attr string) (string, error) {
	nodes := root.Find(selector)
	for i := range nodes.Length() {
		if v, ok := nodes.Eq(i).Attr(attr); ok {
			return strings.TrimSpace(v), nil
		}
	}
	return "", fmt.Errorf("%q[%s]: %w", selector, attr, ErrNotFound)
}
