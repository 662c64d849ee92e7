package scraper

import (
	"strings"
)

// junkPhrases are boilerplate fragments news portals mix into article bodies.
var junkPhrases = []string{
	"Czytaj także:", "Czytaj też:", "Zobacz także:", "Zobacz też:", "Czytaj więcej",
	"Udostępnij", "Skomentuj", "Obserwuj nas", "Subskrybuj", "Zaloguj się",
}

var junkIndicators = []string{
	"reklama", "cookie", "rodo", "newsletter", "polityka prywatności", "kliknij tutaj",
}

const minParagraphLen = 20

// cleanParagraphs joins body paragraphs into plain text, dropping boilerplate.
func cleanParagraphs(paragraphs []string) string {
	var kept []string
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")

		for _, phrase := range junkPhrases {
			p = strings.ReplaceAll(p, phrase, "")
		}
		p = strings.TrimSpace(p)
		if len(p) < minParagraphLen {
			continue
		}

		lower := strings.ToLower(p)
		isJunk := false
		for _, indicator := range junkIndicators {
			if strings.Contains(lower, indicator) {
				isJunk = true
				break
			}
		}
		if isJunk {
			continue
		}

		kept = append(kept, p)
	}
	return strings.Join(kept, "\n\n")
}
