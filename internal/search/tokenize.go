package search

import (
	"math"
	"strings"
	"unicode"

	"github.com/streed/snap-notes/internal/constants"
)

// Tokenize lowercases text and splits it on anything that is not a letter or
// digit. Tokens shorter than MinTokenLength runes are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= constants.MinTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// termFrequencies returns each term's share of the token stream and the
// total token count.
func termFrequencies(text string) (map[string]float64, int) {
	tokens := Tokenize(text)
	counts := make(map[string]int)
	for _, t := range tokens {
		counts[t]++
	}
	tf := make(map[string]float64, len(counts))
	for term, n := range counts {
		tf[term] = float64(n) / float64(len(tokens))
	}
	return tf, len(tokens)
}

// queryTerms returns the distinct tokens of a query, in first-seen order.
func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range Tokenize(query) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}

// idf is ln(1 + N/df). It is positive for every term that occurs at all.
func idf(total, df int) float64 {
	if df <= 0 || total <= 0 {
		return 0
	}
	return math.Log(1 + float64(total)/float64(df))
}
