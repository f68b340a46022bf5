// Package executor combines the posting lists of the query lemmas into
// candidate pages with their absolute rank.
package executor

import (
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
)

// LemmaPostings pairs a stored lemma with its postings.
type LemmaPostings struct {
	Lemma    model.Lemma
	Postings []model.Posting
}

// PageScore is a candidate page: the sum of its posting ranks and the
// number of distinct lemmas it matched.
type PageScore struct {
	PageID   int64
	Absolute float64
	Matched  int
}

// Intersect keeps the pages present in every list, starting from the first
// (rarest) one.
func Intersect(lists []LemmaPostings) map[int64]*PageScore {
	if len(lists) == 0 {
		return map[int64]*PageScore{}
	}
	candidates := make(map[int64]struct{}, len(lists[0].Postings))
	for _, p := range lists[0].Postings {
		candidates[p.PageID] = struct{}{}
	}
	for _, lp := range lists[1:] {
		if len(candidates) == 0 {
			break
		}
		pageSet := make(map[int64]struct{}, len(lp.Postings))
		for _, p := range lp.Postings {
			pageSet[p.PageID] = struct{}{}
		}
		for pageID := range candidates {
			if _, ok := pageSet[pageID]; !ok {
				delete(candidates, pageID)
			}
		}
	}
	return accumulate(lists, func(pageID int64) bool {
		_, ok := candidates[pageID]
		return ok
	})
}

// Union keeps every page present in at least one list.
func Union(lists []LemmaPostings) map[int64]*PageScore {
	return accumulate(lists, func(int64) bool { return true })
}

func accumulate(lists []LemmaPostings, keep func(pageID int64) bool) map[int64]*PageScore {
	scores := make(map[int64]*PageScore)
	for _, lp := range lists {
		for _, p := range lp.Postings {
			if !keep(p.PageID) {
				continue
			}
			s, ok := scores[p.PageID]
			if !ok {
				s = &PageScore{PageID: p.PageID}
				scores[p.PageID] = s
			}
			s.Absolute += p.Rank
			s.Matched++
		}
	}
	return scores
}
