package semantic

import (
	"slices"

	"github.com/kailas-cloud/fedsearch/internal/db"
)

// rrfK is the Reciprocal Rank Fusion constant (Cormack et al. 2009).
const rrfK = 60

// fuseRRF merges a vector and a keyword ranking: score(d) = sum of 1/(k + rank_i(d)).
// A key present in both rankings keeps the vector entry's fields. Ties keep the key order stable.
func fuseRRF(knn, text []db.SearchEntry, topK int) []db.SearchEntry {
	type scored struct {
		entry db.SearchEntry
		score float64
		first int
	}

	merged := make(map[string]*scored, len(knn)+len(text))
	order := 0
	add := func(list []db.SearchEntry) {
		for rank, e := range list {
			s := 1.0 / float64(rrfK+rank+1)
			if existing, ok := merged[e.Key]; ok {
				existing.score += s
				continue
			}
			merged[e.Key] = &scored{entry: e, score: s, first: order}
			order++
		}
	}
	add(knn)
	add(text)

	all := make([]*scored, 0, len(merged))
	for _, s := range merged {
		all = append(all, s)
	}
	slices.SortFunc(all, func(a, b *scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return a.first - b.first
	})

	if len(all) > topK {
		all = all[:topK]
	}
	out := make([]db.SearchEntry, len(all))
	for i, s := range all {
		out[i] = s.entry
		out[i].Score = s.score
	}
	return out
}
