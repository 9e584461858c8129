package search

import (
	"sort"

	"github.com/mvp-joe/project-atlas/internal/storage"
)

// RRFConstant is the reciprocal-rank-fusion smoothing parameter. k=60 is
// the empirically validated standard (Azure AI Search, OpenSearch).
const RRFConstant = 60

// Method names used in score and contribution maps.
const (
	MethodLexical = "lexical"
	MethodVector  = "vector"
)

// RankedList is one backend's rank-ordered candidates with its fusion
// weight.
type RankedList struct {
	Method string
	Weight float64
	Chunks []storage.ScoredChunk
}

// Candidate is a fused search candidate. Contribution holds each method's
// share of the fused score; MethodScores the raw backend scores.
type Candidate struct {
	Chunk        storage.ScoredChunk
	RRFScore     float64
	MethodScores map[string]float64
	Contribution map[string]float64
	RerankScore  *float64
}

// FuseRRF combines ranked lists into one ordering by weighted reciprocal
// rank: score(d) = sum over methods of weight * 1/(k + rank). A single
// list skips fusion and scores 1/(k + rank) unweighted. Ties break by
// fused score, then by the largest individual contribution, then by chunk
// id for determinism.
func FuseRRF(lists []RankedList) []*Candidate {
	byID := make(map[string]*Candidate)
	var order []*Candidate
	single := len(lists) == 1

	for _, list := range lists {
		for i, sc := range list.Chunks {
			contrib := 1.0 / float64(RRFConstant+i+1)
			if !single {
				contrib *= list.Weight
			}

			cand, ok := byID[sc.ID]
			if !ok {
				cand = &Candidate{
					Chunk:        sc,
					MethodScores: make(map[string]float64),
					Contribution: make(map[string]float64),
				}
				byID[sc.ID] = cand
				order = append(order, cand)
			}
			cand.RRFScore += contrib
			cand.Contribution[list.Method] = contrib
			cand.MethodScores[list.Method] = sc.Score
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if ac, bc := maxContribution(a), maxContribution(b); ac != bc {
			return ac > bc
		}
		return a.Chunk.ID < b.Chunk.ID
	})
	return order
}

func maxContribution(c *Candidate) float64 {
	var max float64
	for _, v := range c.Contribution {
		if v > max {
			max = v
		}
	}
	return max
}
