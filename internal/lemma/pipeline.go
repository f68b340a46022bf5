package lemma

import (
	"errors"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	repeatedSpaceRegex = regexp.MustCompile(`\s+`)
	latinWordRegex     = regexp.MustCompile(`^[a-z]+$`)
)

// Pipeline extracts lemmas from markup. It is safe for concurrent use.
type Pipeline struct {
	analyzer   Analyzer
	policyPool sync.Pool
	logger     *slog.Logger
}

func NewPipeline(analyzer Analyzer) *Pipeline {
	return &Pipeline{
		analyzer: analyzer,
		policyPool: sync.Pool{
			New: func() any {
				p := bluemonday.StrictPolicy()
				p.AddSpaceWhenStrippingTag(true)
				return p
			},
		},
		logger: slog.Default().With("component", "lemma-pipeline"),
	}
}

// Text strips all markup from content and collapses whitespace.
func (p *Pipeline) Text(content string) string {
	policy := p.policyPool.Get().(*bluemonday.Policy)
	defer p.policyPool.Put(policy)

	clean := repeatedSpaceRegex.ReplaceAllString(policy.Sanitize(content), " ")
	return strings.TrimSpace(html.UnescapeString(clean))
}

// Title returns the trimmed text of the first <title> element, or "".
func (p *Pipeline) Title(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	title := doc.Find("title").First().Text()
	return strings.TrimSpace(repeatedSpaceRegex.ReplaceAllString(title, " "))
}

// Lemmas counts the base forms of every content word in content.
func (p *Pipeline) Lemmas(content string) map[string]int {
	counts := make(map[string]int)
	p.each(content, func(lemma string) {
		counts[lemma]++
	})
	return counts
}

// SearchLemmas returns the distinct base forms of text in first-seen order.
func (p *Pipeline) SearchLemmas(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	p.each(text, func(lemma string) {
		if _, ok := seen[lemma]; ok {
			return
		}
		seen[lemma] = struct{}{}
		out = append(out, lemma)
	})
	return out
}

func (p *Pipeline) each(content string, fn func(lemma string)) {
	for _, token := range Tokens(p.Text(content)) {
		tags, err := p.analyzer.Tags(token)
		if err != nil {
			p.skip(token, err)
			continue
		}
		if IsFunctional(tags) {
			continue
		}
		forms, err := p.analyzer.BaseForms(token)
		if err != nil {
			p.skip(token, err)
			continue
		}
		for _, form := range forms {
			if form != "" {
				fn(form)
			}
		}
	}
}

func (p *Pipeline) skip(token string, err error) {
	if errors.Is(err, ErrMalformedToken) {
		p.logger.Debug("skipping malformed token", "token", token)
		return
	}
	p.logger.Warn("morphology lookup failed", "token", token, "error", err)
}

// Tokens splits text on whitespace, keeps only letters, lower-cases and
// drops empty and purely Latin tokens.
func Tokens(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		word := strings.ToLower(strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) {
				return r
			}
			return -1
		}, field))
		if word == "" || latinWordRegex.MatchString(word) {
			continue
		}
		out = append(out, word)
	}
	return out
}
