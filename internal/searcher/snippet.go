package searcher

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	snippetRadius = 100
	snippetMax    = 240
	untitled      = "(без заголовка)"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// queryWords lower-cases and splits the raw query, keeping words longer
// than one rune.
func queryWords(query string) []string {
	var out []string
	for _, w := range strings.Fields(lowerRunes(query)) {
		if utf8.RuneCountInString(w) > 1 {
			out = append(out, w)
		}
	}
	return out
}

// lowerRunes lower-cases rune by rune so rune offsets match the input.
func lowerRunes(s string) string {
	return strings.Map(unicode.ToLower, s)
}

// buildSnippet cuts a window of snippetRadius runes around the first query
// word found in text, or the start of text, collapses whitespace, trims to
// snippetMax runes and wraps every query word occurrence in <b></b>.
func buildSnippet(text string, words []string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	runes := []rune(text)
	lower := lowerRunes(text)

	start, end := 0, len(runes)
	for _, w := range words {
		if idx := strings.Index(lower, w); idx >= 0 {
			at := utf8.RuneCountInString(lower[:idx])
			start = max(0, at-snippetRadius)
			end = min(len(runes), at+snippetRadius)
			break
		}
	}

	snippet := strings.TrimSpace(whitespaceRegex.ReplaceAllString(string(runes[start:end]), " "))
	if utf8.RuneCountInString(snippet) > snippetMax {
		snippet = string([]rune(snippet)[:snippetMax]) + "..."
	}
	return highlight(snippet, words)
}

// highlight wraps matches case-insensitively in one pass, longest words
// first, so inserted tags are never matched again.
func highlight(snippet string, words []string) string {
	if len(words) == 0 {
		return snippet
	}
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile("(?i)(?:" + strings.Join(quoted, "|") + ")")
	if err != nil {
		return snippet
	}
	return re.ReplaceAllString(snippet, "<b>${0}</b>")
}
