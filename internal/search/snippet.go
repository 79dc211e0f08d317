package search

import (
	"strings"
	"unicode"

	"github.com/streed/snap-notes/internal/constants"
)

// Snippet returns up to SnippetLength runes of text around the first
// occurrence of any term, with whitespace collapsed. Without a match it
// returns the start of the text.
func Snippet(text string, terms []string) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) <= constants.SnippetLength {
		return string(runes)
	}

	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	start := 0
	if pos := firstMatch(lower, terms); pos > constants.SnippetContextLead {
		start = pos - constants.SnippetContextLead
	}
	end := start + constants.SnippetLength
	if end > len(runes) {
		end = len(runes)
		start = max(0, end-constants.SnippetLength)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(strings.TrimSpace(string(runes[start:end])))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}

func firstMatch(lower []rune, terms []string) int {
	best := -1
	for _, term := range terms {
		needle := []rune(term)
		for i := 0; i+len(needle) <= len(lower); i++ {
			if best >= 0 && i >= best {
				break
			}
			if runesEqual(lower[i:i+len(needle)], needle) {
				best = i
				break
			}
		}
	}
	return best
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
