package search

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"quarterly", "review", "q3", "2025", "über"},
		Tokenize("Quarterly-Review: Q3 (2025) a Über!"))
	assert.Empty(t, Tokenize("  -- ! "))
}

func TestTermFrequencies(t *testing.T) {
	tf, n := termFrequencies("go go rust")
	assert.Equal(t, 3, n)
	assert.InDelta(t, 2.0/3, tf["go"], 1e-12)
	assert.InDelta(t, 1.0/3, tf["rust"], 1e-12)
}

func TestQueryTermsDedupes(t *testing.T) {
	assert.Equal(t, []string{"review", "notes"}, queryTerms("Review notes review"))
}

func TestIDF(t *testing.T) {
	assert.Zero(t, idf(10, 0))
	assert.Greater(t, idf(10, 1), idf(10, 5))
	assert.Greater(t, idf(1, 1), 0.0)
}

func TestSnippet(t *testing.T) {
	short := "Quarterly   review\n\nnotes"
	assert.Equal(t, "Quarterly review notes", Snippet(short, nil))

	long := strings.Repeat("filler ", 40) + "The KEYWORD appears here " + strings.Repeat("tail ", 40)
	s := Snippet(long, []string{"keyword"})
	assert.Contains(t, s, "KEYWORD")
	assert.True(t, strings.HasPrefix(s, "..."))
	assert.True(t, strings.HasSuffix(s, "..."))
	assert.LessOrEqual(t, len([]rune(s)), 150+6)

	noMatch := Snippet(long, []string{"absent"})
	assert.True(t, strings.HasPrefix(noMatch, "filler"))
}

func TestParseDate(t *testing.T) {
	from, err := ParseDate("2025-08-04", false, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 4, 0, 0, 0, 0, time.UTC), from)

	to, err := ParseDate("2025-08-04", true, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 4, 23, 59, 59, 0, time.UTC), to)

	exact, err := ParseDate("2025-08-04T14:25:12Z", true, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 4, 14, 25, 12, 0, time.UTC), exact)

	empty, err := ParseDate("  ", false, nil)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	_, err = ParseDate("last tuesday", false, time.UTC)
	assert.Error(t, err)
}
