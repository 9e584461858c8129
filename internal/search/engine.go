// Package search implements hybrid retrieval over indexed chunks: trigram
// lexical and vector similarity candidates fused by weighted reciprocal
// rank, optionally re-scored by a cross-encoder. Answers are cached for
// thirty seconds.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/project-atlas/internal/cache"
	"github.com/mvp-joe/project-atlas/internal/embed"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

const (
	// DefaultTopK is the result count when the caller does not ask.
	DefaultTopK = 10
	// DefaultCandidatePool is how many candidates each backend contributes.
	DefaultCandidatePool = 100

	// lexicalSimilarityCut drops trigram matches below this similarity.
	lexicalSimilarityCut = 0.1
	// vectorSimilarityThreshold drops semantic noise so exact lexical
	// matches are not buried by weak neighbors.
	vectorSimilarityThreshold = 0.1
	// defaultEfSearch is the HNSW search breadth.
	defaultEfSearch = 100
)

// Embedder turns the query into vectors when the caller supplies none.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string, domain embed.Domain) (embed.Embeddings, error)
}

// ChunkSearcher is the storage surface the engine queries. *storage.Store
// satisfies it.
type ChunkSearcher interface {
	LexicalSearchChunks(ctx context.Context, query string, minSimilarity float64, filters storage.SearchFilters, limit int) ([]storage.ScoredChunk, error)
	VectorSearchChunks(ctx context.Context, embedding []float32, domain storage.EmbeddingDomain, filters storage.SearchFilters, limit, efSearch int) ([]storage.ScoredChunk, error)
}

// Request is one hybrid search invocation. Zero values take the documented
// defaults; weights of zero mean 0.4 lexical / 0.6 vector unless
// AutoWeights is set.
type Request struct {
	Query         string
	EmbeddingText []float32
	EmbeddingCode []float32
	Filters       storage.SearchFilters

	TopK   int
	Offset int

	EnableLexical bool
	EnableVector  bool
	LexicalWeight float64
	VectorWeight  float64
	AutoWeights   bool

	EnableRerank   bool
	RerankPoolSize int
	CandidatePool  int
}

// Result is one fused hit with its scoring breakdown.
type Result struct {
	ID         string `json:"id"`
	FilePath   string `json:"file_path"`
	Language   string `json:"language"`
	ChunkType  string `json:"chunk_type"`
	Name       string `json:"name"`
	NamePath   string `json:"name_path"`
	SourceCode string `json:"source_code"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Repository string `json:"repository"`

	RRFScore     float64            `json:"rrf_score"`
	Rank         int                `json:"rank"`
	MethodScores map[string]float64 `json:"method_scores,omitempty"`
	Contribution map[string]float64 `json:"contribution,omitempty"`
	RerankScore  *float64           `json:"rerank_score,omitempty"`
}

// Metadata reports how the answer was produced.
type Metadata struct {
	TotalTimeMs   float64            `json:"total_time_ms"`
	StageTimesMs  map[string]float64 `json:"stage_times_ms"`
	PoolSizes     map[string]int     `json:"pool_sizes"`
	LexicalWeight float64            `json:"lexical_weight"`
	VectorWeight  float64            `json:"vector_weight"`
	TotalResults  int                `json:"total_results"`
	CacheHit      bool               `json:"cache_hit"`
}

// Response is the search answer.
type Response struct {
	Results  []Result `json:"results"`
	Metadata Metadata `json:"metadata"`
}

// Engine runs the hybrid pipeline. Backends degrade independently: a failed
// branch logs and contributes nothing rather than failing the search.
type Engine struct {
	store    ChunkSearcher
	cache    *cache.SharedCache
	embedder Embedder
	reranker Reranker
	logger   *zap.Logger
}

func NewEngine(store ChunkSearcher, shared *cache.SharedCache, embedder Embedder, reranker Reranker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, cache: shared, embedder: embedder, reranker: reranker, logger: logger}
}

// Search validates the request, fans out the enabled backends in parallel,
// fuses, optionally reranks, and pages the answer.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if req.Query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if !req.EnableLexical && !req.EnableVector {
		return nil, fmt.Errorf("at least one search method must be enabled")
	}

	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}
	if req.CandidatePool <= 0 {
		req.CandidatePool = DefaultCandidatePool
	}
	lexW, vecW := req.LexicalWeight, req.VectorWeight
	if req.AutoWeights {
		lexW, vecW = AutoWeights(req.Query)
	} else if lexW == 0 && vecW == 0 {
		lexW, vecW = DefaultLexicalWeight, DefaultVectorWeight
	}

	key := cache.SearchKey(req.Query, req.Filters.Repository, req.TopK)
	if raw, ok := e.cache.Get(ctx, key); ok {
		var resp Response
		if err := json.Unmarshal(raw, &resp); err == nil {
			resp.Metadata.CacheHit = true
			return &resp, nil
		}
	}

	var lexical, vector []storage.ScoredChunk
	var lexicalMs, vectorMs float64
	vectorRan := false

	g, gctx := errgroup.WithContext(ctx)
	if req.EnableLexical {
		g.Go(func() error {
			t0 := time.Now()
			res, err := e.store.LexicalSearchChunks(gctx, req.Query, lexicalSimilarityCut, req.Filters, req.CandidatePool)
			lexicalMs = msSince(t0)
			if err != nil {
				e.logger.Warn("lexical search degraded", zap.Error(err))
				return nil
			}
			lexical = res
			return nil
		})
	}
	if req.EnableVector {
		g.Go(func() error {
			t0 := time.Now()
			defer func() { vectorMs = msSince(t0) }()

			emb, domain := e.queryEmbedding(gctx, req)
			if emb == nil {
				return nil
			}
			vectorRan = true
			res, err := e.store.VectorSearchChunks(gctx, emb, domain, req.Filters, req.CandidatePool, defaultEfSearch)
			if err != nil {
				e.logger.Warn("vector search degraded", zap.Error(err))
				return nil
			}
			vector = filterVectorNoise(res)
			return nil
		})
	}
	_ = g.Wait() // branches degrade instead of erroring
	stageMs := map[string]float64{"lexical": lexicalMs, "vector": vectorMs}

	t0 := time.Now()
	var lists []RankedList
	if req.EnableLexical {
		lists = append(lists, RankedList{Method: MethodLexical, Weight: lexW, Chunks: lexical})
	}
	if vectorRan {
		lists = append(lists, RankedList{Method: MethodVector, Weight: vecW, Chunks: vector})
	}
	fused := FuseRRF(lists)
	stageMs["fusion"] = msSince(t0)

	if req.EnableRerank && e.reranker != nil && len(fused) > 0 {
		t0 = time.Now()
		reranked, err := applyRerank(ctx, e.reranker, req.Query, fused, req.RerankPoolSize)
		stageMs["rerank"] = msSince(t0)
		if err != nil {
			e.logger.Warn("rerank degraded, keeping fused order", zap.Error(err))
		} else {
			fused = reranked
		}
	}

	page := paginate(fused, req.Offset, req.TopK)
	results := make([]Result, len(page))
	for i, c := range page {
		results[i] = Result{
			ID:           c.Chunk.ID,
			FilePath:     c.Chunk.FilePath,
			Language:     c.Chunk.Language,
			ChunkType:    c.Chunk.ChunkType,
			Name:         c.Chunk.Name,
			NamePath:     c.Chunk.NamePath,
			SourceCode:   c.Chunk.SourceCode,
			StartLine:    c.Chunk.StartLine,
			EndLine:      c.Chunk.EndLine,
			Repository:   c.Chunk.Repository,
			RRFScore:     c.RRFScore,
			Rank:         req.Offset + i + 1,
			MethodScores: c.MethodScores,
			Contribution: c.Contribution,
			RerankScore:  c.RerankScore,
		}
	}

	resp := &Response{
		Results: results,
		Metadata: Metadata{
			TotalTimeMs:  msSince(start),
			StageTimesMs: stageMs,
			PoolSizes: map[string]int{
				"lexical": len(lexical),
				"vector":  len(vector),
				"fused":   len(fused),
			},
			LexicalWeight: lexW,
			VectorWeight:  vecW,
			TotalResults:  len(fused),
		},
	}

	if data, err := json.Marshal(resp); err == nil {
		e.cache.Set(ctx, key, data, cache.SearchTTL)
	}
	return resp, nil
}

// queryEmbedding picks the vector the similarity query runs on: the
// caller's code-domain vector wins, then the text-domain one, then a
// text-domain embedding of the query itself.
func (e *Engine) queryEmbedding(ctx context.Context, req Request) ([]float32, storage.EmbeddingDomain) {
	if len(req.EmbeddingCode) > 0 {
		return req.EmbeddingCode, storage.DomainCode
	}
	if len(req.EmbeddingText) > 0 {
		return req.EmbeddingText, storage.DomainText
	}
	if e.embedder == nil {
		return nil, storage.DomainText
	}
	emb, err := e.embedder.GenerateEmbedding(ctx, req.Query, embed.DomainText)
	if err != nil {
		e.logger.Warn("query embedding failed, vector search skipped", zap.Error(err))
		return nil, storage.DomainText
	}
	return emb.Text, storage.DomainText
}

// filterVectorNoise drops candidates under the similarity threshold and
// re-ranks the survivors contiguously.
func filterVectorNoise(chunks []storage.ScoredChunk) []storage.ScoredChunk {
	kept := chunks[:0]
	for _, c := range chunks {
		if c.Score >= vectorSimilarityThreshold {
			kept = append(kept, c)
		}
	}
	return kept
}

func paginate(cands []*Candidate, offset, limit int) []*Candidate {
	if offset >= len(cands) {
		return nil
	}
	end := offset + limit
	if end > len(cands) {
		end = len(cands)
	}
	return cands[offset:end]
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
