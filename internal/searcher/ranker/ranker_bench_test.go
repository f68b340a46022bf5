package ranker

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher/executor"
)

func BenchmarkRank(b *testing.B) {
	for _, numPages := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("pages_%d", numPages), func(b *testing.B) {
			scores := make(map[int64]*executor.PageScore, numPages)
			for i := 0; i < numPages; i++ {
				scores[int64(i)] = &executor.PageScore{
					PageID:   int64(i),
					Absolute: float64(i%17) + 1,
					Matched:  i%3 + 1,
				}
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = Page(Rank(scores, 3, 1.0), 0, 20)
			}
		})
	}
}
