package delivery

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "…"

// markdownV2Specials must be escaped anywhere in MarkdownV2 text.
const markdownV2Specials = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdownV2 backslash-escapes every MarkdownV2 special character.
func EscapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripEmphasis removes characters the model may use as markdown emphasis.
func stripEmphasis(s string) string {
	return strings.NewReplacer("*", "", "_", "").Replace(s)
}

// BuildCaption renders "*title*\n\ncontent" in MarkdownV2 within maxRunes.
// When too long the content is shortened on the raw text, never inside an
// escape sequence, and ends with an ellipsis. The title is never cut; when
// the title alone does not fit with any content, the caption is the title.
func BuildCaption(title, content string, maxRunes int) string {
	title = EscapeMarkdownV2(strings.TrimSpace(stripEmphasis(title)))
	raw := []rune(strings.TrimSpace(stripEmphasis(content)))

	head := "*" + title + "*"
	full := head + "\n\n" + EscapeMarkdownV2(string(raw))
	if utf8.RuneCountInString(full) <= maxRunes {
		return full
	}

	budget := maxRunes - utf8.RuneCountInString(head+"\n\n"+ellipsis)
	if budget <= 0 {
		return head
	}

	// Take raw runes while their escaped width fits the budget.
	used, n := 0, 0
	for _, r := range raw {
		w := 1
		if strings.ContainsRune(markdownV2Specials, r) {
			w = 2
		}
		if used+w > budget {
			break
		}
		used += w
		n++
	}
	cut := strings.TrimRight(string(raw[:n]), " \n\t")
	if cut == "" {
		return head
	}
	return head + "\n\n" + EscapeMarkdownV2(cut) + ellipsis
}
