package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-atlas/internal/storage"
)

// reversingReranker scores documents so the original order inverts.
type reversingReranker struct{ calls int }

func (r *reversingReranker) Rerank(_ context.Context, _ string, docs []string) ([]float64, error) {
	r.calls++
	scores := make([]float64, len(docs))
	for i := range docs {
		scores[i] = float64(i)
	}
	return scores, nil
}

func candidates(ids ...string) []*Candidate {
	out := make([]*Candidate, len(ids))
	for i, id := range ids {
		out[i] = &Candidate{
			Chunk:        scored(id, 0.5),
			RRFScore:     1.0 / float64(RRFConstant+i+1),
			Contribution: map[string]float64{},
			MethodScores: map[string]float64{},
		}
	}
	return out
}

func TestApplyRerank_ReordersHeadKeepsTail(t *testing.T) {
	t.Parallel()

	cands := candidates("c1", "c2", "c3", "c4", "c5")
	rr := &reversingReranker{}

	out, err := applyRerank(context.Background(), rr, "query", cands, 3)
	require.NoError(t, err)
	require.Len(t, out, 5)

	// Head inverted by cross-encoder score, tail untouched in RRF order.
	assert.Equal(t, "c3", out[0].Chunk.ID)
	assert.Equal(t, "c2", out[1].Chunk.ID)
	assert.Equal(t, "c1", out[2].Chunk.ID)
	assert.Equal(t, "c4", out[3].Chunk.ID)
	assert.Equal(t, "c5", out[4].Chunk.ID)

	for _, c := range out[:3] {
		assert.NotNil(t, c.RerankScore, c.Chunk.ID)
	}
	for _, c := range out[3:] {
		assert.Nil(t, c.RerankScore, c.Chunk.ID)
	}
	assert.Equal(t, 1, rr.calls)
}

func TestApplyRerank_PoolLargerThanCandidates(t *testing.T) {
	t.Parallel()

	cands := candidates("c1", "c2")
	out, err := applyRerank(context.Background(), &reversingReranker{}, "query", cands, 30)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c2", out[0].Chunk.ID)
}

func TestApplyRerank_EmptyInput(t *testing.T) {
	t.Parallel()

	out, err := applyRerank(context.Background(), &reversingReranker{}, "query", nil, 30)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDocumentPreview(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", rerankPreviewBytes+100)
	got := documentPreview("api.users.save", long)
	assert.True(t, strings.HasPrefix(got, "api.users.save\n"))
	assert.Len(t, got, len("api.users.save\n")+rerankPreviewBytes)

	assert.Equal(t, "body", documentPreview("", "body"))
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	cands := candidates("c1", "c2", "c3", "c4", "c5")

	page := paginate(cands, 0, 2)
	require.Len(t, page, 2)
	assert.Equal(t, "c1", page[0].Chunk.ID)

	page = paginate(cands, 3, 10)
	require.Len(t, page, 2)
	assert.Equal(t, "c4", page[0].Chunk.ID)

	assert.Empty(t, paginate(cands, 5, 10))
	assert.Empty(t, paginate(cands, 99, 10))
}

func TestFilterVectorNoise(t *testing.T) {
	t.Parallel()

	out := filterVectorNoise([]storage.ScoredChunk{
		scored("keep1", 0.9), scored("drop", 0.05), scored("keep2", 0.1),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "keep1", out[0].ID)
	assert.Equal(t, "keep2", out[1].ID)
}
