package scraper

import (
	"html"
	"regexp"
	"strings"
)

// DefaultExclude drops feed endpoints from link discovery.
var DefaultExclude = []string{"/rss", "rss.", ".xml", "/feed"}

var hrefPattern = regexp.MustCompile(`(?i)href\s*=\s*["'](https?://[^"'\s>]+)["']`)

// ExtractLinks returns every absolute http(s) href in the fragments, in order,
// minus links containing any exclude substring (case-insensitive).
func ExtractLinks(fragments []string, exclude []string) []string {
	var links []string
	for _, fragment := range fragments {
		for _, m := range hrefPattern.FindAllStringSubmatch(fragment, -1) {
			link := html.UnescapeString(m[1])
			if excluded(link, exclude) {
				continue
			}
			links = append(links, link)
		}
	}
	return links
}

func excluded(link string, exclude []string) bool {
	lower := strings.ToLower(link)
	for _, e := range exclude {
		if e != "" && strings.Contains(lower, strings.ToLower(e)) {
			return true
		}
	}
	return false
}
