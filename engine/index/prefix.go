package index

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/WessleyAI/docqa/engine/domain"
)

// embedPrefix returns the part of text sent to the embedding model: at most
// max runes, cut after the last sentence end inside the budget when that
// keeps at least half of it. Otherwise the cut is a plain rune cut.
func embedPrefix(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	prefix := domain.Truncate(text, max)
	if cut := lastSentenceEnd(prefix); cut > 0 && utf8.RuneCountInString(prefix[:cut]) >= max/2 {
		return strings.TrimSpace(prefix[:cut])
	}
	return prefix
}

// lastSentenceEnd returns the byte offset just past the last sentence
// terminator in s, or 0. A terminator is a newline, or '.', '!' or '?'
// followed by whitespace.
func lastSentenceEnd(s string) int {
	end := 0
	var prev rune
	prevEnd := 0
	for i, r := range s {
		if prev == '.' || prev == '!' || prev == '?' {
			if unicode.IsSpace(r) {
				end = prevEnd
			}
		}
		if r == '\n' {
			end = i + 1
		}
		prev = r
		prevEnd = i + utf8.RuneLen(r)
	}
	return end
}
