package articles

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/microcosm-cc/bluemonday"
)

// stripPolicy removes all markup, leaving plain text
var stripPolicy = bluemonday.StrictPolicy()

// Slugify turns a title into a URL slug
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// DedupeKeywords drops keywords that are near-duplicates of an earlier one.
// Two keywords are considered duplicates when their edit distance is at most
// maxDistance after case folding.
func DedupeKeywords(keywords []string, maxDistance int) []string {
	var kept []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		folded := strings.ToLower(kw)
		dup := false
		for _, existing := range kept {
			if levenshtein.ComputeDistance(strings.ToLower(existing), folded) <= maxDistance {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, kw)
		}
	}
	return kept
}

// WordCount counts words in the text content of an HTML fragment
func WordCount(html string) int {
	return len(strings.Fields(stripPolicy.Sanitize(html)))
}

// MetaDescription derives a meta description from article HTML, cut at a
// word boundary within maxLen bytes. Text with no space in range, such as
// CJK prose, is cut on a rune boundary instead.
func MetaDescription(html string, maxLen int) string {
	text := strings.Join(strings.Fields(stripPolicy.Sanitize(html)), " ")
	if len(text) <= maxLen {
		return text
	}
	cut := strings.LastIndex(text[:maxLen], " ")
	if cut <= 0 {
		cut = maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
	}
	return text[:cut]
}

// TitleFromKeyword builds a default article title from a keyword
func TitleFromKeyword(keyword string) string {
	words := strings.Fields(keyword)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
