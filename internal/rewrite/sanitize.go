package rewrite

import (
	"regexp"
	"strings"
)

// Models sometimes append a note about the text being machine translated.
var (
	disclaimerLine      = regexp.MustCompile(`(?im)^\s*(note|примітка|uwaga)\s*:.*$`)
	disclaimerBracketed = regexp.MustCompile(`(?i)[\(\[]\s*(note|примітка|uwaga)\s*:[^\)\]]*[\)\]]`)
	blankLines          = regexp.MustCompile(`\n{3,}`)
)

// SanitizeAIText strips translation disclaimers and tidies whitespace.
func SanitizeAIText(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = disclaimerBracketed.ReplaceAllString(s, "")
	s = disclaimerLine.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
