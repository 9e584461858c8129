package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/embed"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

// Test Plan:
// 1. Requests with no query or no enabled method fail validation.
// 2. Hybrid requests fuse both backends by weighted reciprocal rank and
//    report pool sizes and effective weights in the metadata.
// 3. Vector candidates below the similarity threshold are dropped before
//    fusion.
// 4. A failed backend degrades to partial results instead of an error.
// 5. The query embedding prefers the caller's code-domain vector; without
//    one the query is embedded in the text domain, and an embedding
//    failure skips the vector branch entirely.
// 6. Offset/limit paging assigns absolute ranks.
// 7. AutoWeights picks the code-leaning split for symbol-shaped queries.

type fakeSearcher struct {
	lexical    []storage.ScoredChunk
	lexicalErr error
	vector     []storage.ScoredChunk
	vectorErr  error

	lastDomain    storage.EmbeddingDomain
	lastEmbedding []float32
}

func (f *fakeSearcher) LexicalSearchChunks(_ context.Context, _ string, _ float64, _ storage.SearchFilters, _ int) ([]storage.ScoredChunk, error) {
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return f.lexical, nil
}

func (f *fakeSearcher) VectorSearchChunks(_ context.Context, embedding []float32, domain storage.EmbeddingDomain, _ storage.SearchFilters, _, _ int) ([]storage.ScoredChunk, error) {
	f.lastEmbedding = embedding
	f.lastDomain = domain
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vector, nil
}

type fakeEmbedder struct {
	emb   embed.Embeddings
	err   error
	calls int
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, _ string, _ embed.Domain) (embed.Embeddings, error) {
	f.calls++
	if f.err != nil {
		return embed.Embeddings{}, f.err
	}
	return f.emb, nil
}

func chunk(id string, score float64) storage.ScoredChunk {
	return storage.ScoredChunk{ID: id, Name: "fn_" + id, FilePath: id + ".py", Score: score}
}

func newTestEngine(store *fakeSearcher, embedder Embedder) *Engine {
	return NewEngine(store, nil, embedder, nil, zap.NewNop())
}

func hybridRequest(query string) Request {
	return Request{
		Query:         query,
		EmbeddingCode: []float32{0.1, 0.2},
		EnableLexical: true,
		EnableVector:  true,
	}
}

func TestSearchValidation(t *testing.T) {
	e := newTestEngine(&fakeSearcher{}, nil)

	_, err := e.Search(context.Background(), Request{EnableLexical: true})
	assert.ErrorContains(t, err, "query")

	_, err = e.Search(context.Background(), Request{Query: "auth"})
	assert.ErrorContains(t, err, "at least one")
}

func TestSearchFusesBothBackends(t *testing.T) {
	store := &fakeSearcher{
		lexical: []storage.ScoredChunk{chunk("a", 0.9), chunk("b", 0.5)},
		vector:  []storage.ScoredChunk{chunk("b", 0.8), chunk("c", 0.7)},
	}
	e := newTestEngine(store, nil)

	resp, err := e.Search(context.Background(), hybridRequest("token refresh"))
	require.NoError(t, err)

	// b appears in both lists: 0.4/62 + 0.6/61 beats every single-list
	// contribution at the default weights.
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "b", resp.Results[0].ID)
	assert.Equal(t, "c", resp.Results[1].ID)
	assert.Equal(t, "a", resp.Results[2].ID)

	assert.Contains(t, resp.Results[0].MethodScores, MethodLexical)
	assert.Contains(t, resp.Results[0].MethodScores, MethodVector)

	meta := resp.Metadata
	assert.Equal(t, DefaultLexicalWeight, meta.LexicalWeight)
	assert.Equal(t, DefaultVectorWeight, meta.VectorWeight)
	assert.Equal(t, 2, meta.PoolSizes["lexical"])
	assert.Equal(t, 2, meta.PoolSizes["vector"])
	assert.Equal(t, 3, meta.PoolSizes["fused"])
	assert.False(t, meta.CacheHit)
}

func TestSearchDropsVectorNoise(t *testing.T) {
	store := &fakeSearcher{
		vector: []storage.ScoredChunk{chunk("a", 0.6), chunk("noise", 0.05), chunk("b", 0.3)},
	}
	e := newTestEngine(store, nil)

	resp, err := e.Search(context.Background(), Request{
		Query:         "anything",
		EmbeddingCode: []float32{0.1},
		EnableVector:  true,
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a", resp.Results[0].ID)
	assert.Equal(t, "b", resp.Results[1].ID)
	assert.Equal(t, 2, resp.Metadata.PoolSizes["vector"])
}

func TestSearchDegradesOnBackendFailure(t *testing.T) {
	store := &fakeSearcher{
		lexicalErr: errors.New("connection reset"),
		vector:     []storage.ScoredChunk{chunk("a", 0.8)},
	}
	e := newTestEngine(store, nil)

	resp, err := e.Search(context.Background(), hybridRequest("resilience"))
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a", resp.Results[0].ID)
	assert.Equal(t, 0, resp.Metadata.PoolSizes["lexical"])
}

func TestSearchQueryEmbedding(t *testing.T) {
	t.Run("code vector preferred", func(t *testing.T) {
		store := &fakeSearcher{vector: []storage.ScoredChunk{chunk("a", 0.5)}}
		e := newTestEngine(store, nil)

		_, err := e.Search(context.Background(), Request{
			Query:         "q",
			EmbeddingText: []float32{1},
			EmbeddingCode: []float32{2},
			EnableVector:  true,
		})
		require.NoError(t, err)
		assert.Equal(t, storage.DomainCode, store.lastDomain)
		assert.Equal(t, []float32{2}, store.lastEmbedding)
	})

	t.Run("query embedded on demand", func(t *testing.T) {
		store := &fakeSearcher{vector: []storage.ScoredChunk{chunk("a", 0.5)}}
		embedder := &fakeEmbedder{emb: embed.Embeddings{Text: []float32{3}}}
		e := newTestEngine(store, embedder)

		resp, err := e.Search(context.Background(), Request{
			Query: "q", EnableVector: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, embedder.calls)
		assert.Equal(t, storage.DomainText, store.lastDomain)
		assert.Len(t, resp.Results, 1)
	})

	t.Run("embedding failure skips vector branch", func(t *testing.T) {
		store := &fakeSearcher{
			lexical: []storage.ScoredChunk{chunk("a", 0.5)},
			vector:  []storage.ScoredChunk{chunk("b", 0.5)},
		}
		embedder := &fakeEmbedder{err: errors.New("model loading")}
		e := newTestEngine(store, embedder)

		resp, err := e.Search(context.Background(), Request{
			Query: "q", EnableLexical: true, EnableVector: true,
		})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "a", resp.Results[0].ID)
	})
}

func TestSearchPaging(t *testing.T) {
	store := &fakeSearcher{
		lexical: []storage.ScoredChunk{
			chunk("a", 0.9), chunk("b", 0.8), chunk("c", 0.7), chunk("d", 0.6),
		},
	}
	e := newTestEngine(store, nil)

	resp, err := e.Search(context.Background(), Request{
		Query: "page", EnableLexical: true, TopK: 2, Offset: 1,
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "b", resp.Results[0].ID)
	assert.Equal(t, 2, resp.Results[0].Rank)
	assert.Equal(t, 3, resp.Results[1].Rank)
	assert.Equal(t, 4, resp.Metadata.TotalResults)

	resp, err = e.Search(context.Background(), Request{
		Query: "page past the end", EnableLexical: true, TopK: 10, Offset: 50,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearchAutoWeights(t *testing.T) {
	store := &fakeSearcher{lexical: []storage.ScoredChunk{chunk("a", 0.9)}}
	e := newTestEngine(store, nil)

	resp, err := e.Search(context.Background(), Request{
		Query:         "client.fetch(url).then(parse)",
		EnableLexical: true,
		AutoWeights:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.3, resp.Metadata.LexicalWeight)
	assert.Equal(t, 0.7, resp.Metadata.VectorWeight)
}
