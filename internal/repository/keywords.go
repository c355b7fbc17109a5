package repository

import (
	"strings"
	"unicode"

	"github.com/bbalet/stopwords"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const keywordMaxLen = 32

// stopwordLangs is the closed multilingual list the normalization pipeline
// filters against: English, Italian, French articles, prepositions, and
// conjunctions.
var stopwordLangs = []string{"en", "it", "fr"}

var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldASCII(s string) string {
	out, _, err := transform.String(asciiFold, s)
	if err != nil {
		return s
	}
	return out
}

// generateKeywords derives the set of keyword entry ids ("keyword/" +
// normalized token) a tag's title/artist/album produce. Stop-words are
// stripped before splitting so common function words never become
// search keys.
func generateKeywords(tag CompleteTag) []string {
	joined := strings.Join([]string{tag.Title, tag.Artist, tag.Album}, " ")
	for _, lang := range stopwordLangs {
		joined = stopwords.CleanString(joined, lang, false)
	}
	joined = strings.Join(strings.Fields(joined), " ")

	seen := make(map[string]struct{})
	var out []string
	for _, token := range strings.Fields(joined) {
		k := normalizeToken(token)
		if k == "" {
			continue
		}
		id := "keyword/" + k
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func normalizeToken(token string) string {
	t := foldASCII(strings.ToLower(token))
	if len(t) > keywordMaxLen {
		t = t[:keywordMaxLen]
	}
	return t
}

// normalizeQueryToken applies the same casing/folding pass a stored
// keyword went through, without the stop-word strip (SearchFor matches
// substrings, including ones a stop-word filter would have dropped).
func normalizeQueryToken(token string) string {
	return normalizeToken(token)
}
