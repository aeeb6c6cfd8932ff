package priorart

import (
	"sort"
	"strings"
)

// Dedupe collapses hits sharing an application number into the hit with the
// smallest distance, then orders the survivors by ascending distance.
//
// Hits with a blank identifier are dropped. On equal distances the hit seen
// first wins, and the sort is stable so ties keep first-seen order. Ranks are
// assigned from the output position. The input is not modified.
func Dedupe(hits []RawHit) []CandidatePatent {
	best := make(map[string]int, len(hits))
	out := make([]CandidatePatent, 0, len(hits))

	for _, h := range hits {
		id := strings.TrimSpace(h.Metadata.ApplicationNumber)
		if id == "" {
			continue
		}
		if i, seen := best[id]; seen {
			if h.Distance < out[i].Distance {
				out[i].RawHit = h
			}
			continue
		}
		best[id] = len(out)
		out = append(out, CandidatePatent{RawHit: h})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	for i := range out {
		out[i].Rank = i
	}
	return out
}

// AsHits strips ranks from candidates.
func AsHits(candidates []CandidatePatent) []RawHit {
	hits := make([]RawHit, len(candidates))
	for i, c := range candidates {
		hits[i] = c.RawHit
	}
	return hits
}
