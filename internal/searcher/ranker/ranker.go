// Package ranker turns absolute page scores into relative relevance and
// orders them.
package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher/executor"
)

type ScoredPage struct {
	PageID   int64
	Absolute float64
	Relative float64
	Matched  int
}

// Rank computes relative = norm(abs) * (1 + w*matched/queryLemmas) / (1 + w),
// where norm scales the best page to 1, and sorts descending with ties
// broken by page ID. A page matching every query lemma with the top
// absolute score gets exactly 1.
func Rank(scores map[int64]*executor.PageScore, queryLemmas int, coverageWeight float64) []ScoredPage {
	if len(scores) == 0 {
		return nil
	}
	if queryLemmas <= 0 {
		queryLemmas = 1
	}
	if coverageWeight < 0 {
		coverageWeight = 0
	}

	first := true
	var maxAbs float64
	for _, s := range scores {
		if first || s.Absolute > maxAbs {
			maxAbs = s.Absolute
			first = false
		}
	}

	out := make([]ScoredPage, 0, len(scores))
	for _, s := range scores {
		coverage := float64(min(s.Matched, queryLemmas)) / float64(queryLemmas)
		out = append(out, ScoredPage{
			PageID:   s.PageID,
			Absolute: s.Absolute,
			Matched:  s.Matched,
			Relative: normalize(s.Absolute, maxAbs) * (1 + coverageWeight*coverage) / (1 + coverageWeight),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Relative != out[j].Relative {
			return out[i].Relative > out[j].Relative
		}
		return out[i].PageID < out[j].PageID
	})
	return out
}

// normalize maps abs into (0, 1] relative to the best score. Ranks can be
// zero or negative on tiny sites where ln(total/(df+1)) <= 0.
func normalize(abs, best float64) float64 {
	switch {
	case best > 0:
		return abs / best
	case best < 0:
		return best / abs
	case abs == 0:
		return 1
	default:
		return 0
	}
}

// Page applies offset and limit.
func Page(ranked []ScoredPage, offset, limit int) []ScoredPage {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ranked) {
		return nil
	}
	end := len(ranked)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return ranked[offset:end]
}
