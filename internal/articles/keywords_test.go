package articles_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lamontai/lamontai/internal/articles"
	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Best CRM Software 2026":     "best-crm-software-2026",
		"  Trailing   spaces  ":      "trailing-spaces",
		"Ünicode & symbols!":         "ünicode-symbols",
		"already-slugged":            "already-slugged",
		"UPPER_case_With_Underscore": "upper-case-with-underscore",
	}
	for in, want := range cases {
		assert.Equal(t, want, articles.Slugify(in), "input %q", in)
	}
}

func TestDedupeKeywords(t *testing.T) {
	out := articles.DedupeKeywords([]string{
		"crm software",
		"crm softwares", // edit distance 1, dropped
		"CRM Software",  // case-insensitive duplicate, dropped
		"email marketing",
		"  ",
	}, 2)
	assert.Equal(t, []string{"crm software", "email marketing"}, out)
}

func TestDedupeKeywordsKeepsDistinct(t *testing.T) {
	out := articles.DedupeKeywords([]string{"seo audit", "link building"}, 2)
	assert.Len(t, out, 2)
}

func TestWordCount(t *testing.T) {
	html := "<p>One two three four five.</p>"
	assert.Equal(t, 5, articles.WordCount(html))
	assert.Equal(t, 0, articles.WordCount("<p></p>"))
}

func TestMetaDescription(t *testing.T) {
	html := "<p>" + strings.Repeat("word ", 60) + "</p>"
	meta := articles.MetaDescription(html, 160)
	assert.LessOrEqual(t, len(meta), 160)
	assert.NotContains(t, meta, "<")

	short := articles.MetaDescription("<p>Short intro.</p>", 160)
	assert.Equal(t, "Short intro.", short)
}

func TestMetaDescriptionKeepsRunesIntact(t *testing.T) {
	// CJK prose has no spaces, so the cut cannot land on a word boundary
	html := "<p>" + strings.Repeat("日本語の記事", 20) + "</p>"
	meta := articles.MetaDescription(html, 160)
	assert.LessOrEqual(t, len(meta), 160)
	assert.True(t, utf8.ValidString(meta))
	assert.NotEmpty(t, meta)
}

func TestTitleFromKeyword(t *testing.T) {
	assert.Equal(t, "Best Crm Software", articles.TitleFromKeyword("best crm software"))
}
