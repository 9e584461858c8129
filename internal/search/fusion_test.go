package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-atlas/internal/storage"
)

func scored(id string, score float64) storage.ScoredChunk {
	return storage.ScoredChunk{ID: id, Name: id, Score: score}
}

func TestFuseRRF_WeightedBothMethods(t *testing.T) {
	t.Parallel()

	// c1 is lexical rank 1 and vector rank 3:
	// 0.4/(60+1) + 0.6/(60+3) = 0.00656 + 0.00952 = 0.01608.
	lists := []RankedList{
		{Method: MethodLexical, Weight: 0.4, Chunks: []storage.ScoredChunk{
			scored("c1", 0.9), scored("c2", 0.8), scored("c3", 0.7),
		}},
		{Method: MethodVector, Weight: 0.6, Chunks: []storage.ScoredChunk{
			scored("c4", 0.95), scored("c2", 0.85), scored("c1", 0.75),
		}},
	}

	fused := FuseRRF(lists)
	require.Len(t, fused, 4)

	byID := map[string]*Candidate{}
	for _, c := range fused {
		byID[c.Chunk.ID] = c
	}

	c1 := byID["c1"]
	assert.InDelta(t, 0.01608, c1.RRFScore, 1e-5)
	assert.InDelta(t, 0.4/61.0, c1.Contribution[MethodLexical], 1e-9)
	assert.InDelta(t, 0.6/63.0, c1.Contribution[MethodVector], 1e-9)
	assert.InDelta(t, 0.9, c1.MethodScores[MethodLexical], 1e-9)
	assert.InDelta(t, 0.75, c1.MethodScores[MethodVector], 1e-9)

	// Contributions sum to the fused score for every candidate.
	for id, c := range byID {
		var sum float64
		for _, v := range c.Contribution {
			sum += v
		}
		assert.InDelta(t, c.RRFScore, sum, 1e-12, id)
	}

	// c2 appears at rank 2 in both lists and outranks c1.
	c2 := byID["c2"]
	assert.Greater(t, c2.RRFScore, c1.RRFScore)
	assert.Equal(t, "c2", fused[0].Chunk.ID)
}

func TestFuseRRF_SingleMethodSkipsWeights(t *testing.T) {
	t.Parallel()

	lists := []RankedList{
		{Method: MethodLexical, Weight: 0.4, Chunks: []storage.ScoredChunk{
			scored("c1", 0.9), scored("c2", 0.5),
		}},
	}

	fused := FuseRRF(lists)
	require.Len(t, fused, 2)
	assert.InDelta(t, 1.0/61.0, fused[0].RRFScore, 1e-9)
	assert.InDelta(t, 1.0/62.0, fused[1].RRFScore, 1e-9)
}

func TestFuseRRF_DeterministicTieBreak(t *testing.T) {
	t.Parallel()

	// Mirrored ranks under equal weights give a and b bitwise-identical
	// fused scores and equal best contributions; the chunk id decides.
	lists := []RankedList{
		{Method: MethodLexical, Weight: 0.5, Chunks: []storage.ScoredChunk{
			scored("a", 0.9), scored("b", 0.8), scored("z", 0.1),
		}},
		{Method: MethodVector, Weight: 0.5, Chunks: []storage.ScoredChunk{
			scored("b", 0.9), scored("a", 0.8), scored("z", 0.1),
		}},
	}

	fused := FuseRRF(lists)
	require.Len(t, fused, 3)
	assert.Equal(t, fused[0].RRFScore, fused[1].RRFScore)
	assert.Equal(t, "a", fused[0].Chunk.ID)
	assert.Equal(t, "b", fused[1].Chunk.ID)
	assert.Equal(t, "z", fused[2].Chunk.ID)
}

func TestMaxContribution(t *testing.T) {
	t.Parallel()

	c := &Candidate{Contribution: map[string]float64{
		MethodLexical: 0.01,
		MethodVector:  0.004,
	}}
	assert.InDelta(t, 0.01, maxContribution(c), 1e-12)
	assert.Zero(t, maxContribution(&Candidate{Contribution: map[string]float64{}}))
}

func TestFuseRRF_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, FuseRRF(nil))
	assert.Empty(t, FuseRRF([]RankedList{{Method: MethodLexical, Weight: 1}}))
}
