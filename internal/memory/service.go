// Package memory stores developer notes, decisions, and conversation
// summaries alongside the code index. Records are embedded in the text
// domain and retrieved by the same lexical-plus-vector hybrid the chunk
// search uses. Deletion is two-phase: a soft delete hides the record,
// purge removes the row.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/project-atlas/internal/embed"
	"github.com/mvp-joe/project-atlas/internal/search"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

const (
	// MaxTitleLength bounds titles; anything longer belongs in content.
	MaxTitleLength = 200

	// DefaultMemoryType is used when the caller does not classify.
	DefaultMemoryType = "note"

	DefaultListLimit = 20
	MaxListLimit     = 100

	defaultSearchLimit = 10
	candidatePool      = 50

	lexicalSimilarityCut      = 0.1
	vectorSimilarityThreshold = 0.1
	searchEfSearch            = 100
)

var (
	ErrNotFound   = errors.New("memory not found")
	ErrNotDeleted = errors.New("memory is not soft-deleted")
)

// Store is the persistence surface the service needs.
type Store interface {
	InsertMemory(ctx context.Context, m *storage.Memory) error
	UpdateMemory(ctx context.Context, m *storage.Memory) (bool, error)
	GetMemory(ctx context.Context, id string) (*storage.Memory, error)
	SoftDeleteMemory(ctx context.Context, id string) (bool, error)
	PurgeMemory(ctx context.Context, id string) (bool, error)
	ListMemories(ctx context.Context, projectID, memoryType string, tags []string, limit, offset int) ([]*storage.Memory, error)
	LexicalSearchMemories(ctx context.Context, query string, minSimilarity float64, limit int) ([]storage.ScoredMemory, error)
	VectorSearchMemories(ctx context.Context, embedding []float32, limit, efSearch int) ([]storage.ScoredMemory, error)
}

// Embedder produces the text-domain vector stored with each memory.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string, domain embed.Domain) (embed.Embeddings, error)
}

// Service owns memory lifecycle and retrieval.
type Service struct {
	store    Store
	embedder Embedder
	model    string // recorded as embedding_model on writes
	logger   *zap.Logger
}

func NewService(store Store, embedder Embedder, model string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, embedder: embedder, model: model, logger: logger}
}

// CreateInput is one new memory. Title and Content are required;
// MemoryType defaults to "note".
type CreateInput struct {
	Title           string
	Content         string
	MemoryType      string
	Tags            []string
	ProjectID       string
	Author          string
	RelatedChunkIDs []string
}

// Create validates, embeds, and stores a new memory.
func (s *Service) Create(ctx context.Context, in CreateInput) (*storage.Memory, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if err := validateFields(title, content); err != nil {
		return nil, err
	}

	memoryType := in.MemoryType
	if memoryType == "" {
		memoryType = DefaultMemoryType
	}

	embedding, err := s.embedText(ctx, title, content)
	if err != nil {
		return nil, err
	}

	m := &storage.Memory{
		ID:              uuid.NewString(),
		Title:           title,
		Content:         content,
		MemoryType:      memoryType,
		Tags:            in.Tags,
		ProjectID:       in.ProjectID,
		Author:          in.Author,
		RelatedChunkIDs: in.RelatedChunkIDs,
		Embedding:       embedding,
		EmbeddingModel:  s.model,
	}
	if err := s.store.InsertMemory(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info("memory created",
		zap.String("id", m.ID),
		zap.String("type", m.MemoryType),
		zap.String("project", m.ProjectID))
	return m, nil
}

// UpdateInput patches a memory. Nil pointers and nil slices keep the
// existing values.
type UpdateInput struct {
	Title           *string
	Content         *string
	MemoryType      *string
	Tags            []string
	RelatedChunkIDs []string
}

// Update applies a patch, re-embeds, and persists. Soft-deleted memories
// are not updatable.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*storage.Memory, error) {
	m, err := s.getLive(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		m.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		m.Content = strings.TrimSpace(*in.Content)
	}
	if in.MemoryType != nil {
		m.MemoryType = *in.MemoryType
	}
	if in.Tags != nil {
		m.Tags = in.Tags
	}
	if in.RelatedChunkIDs != nil {
		m.RelatedChunkIDs = in.RelatedChunkIDs
	}
	if err := validateFields(m.Title, m.Content); err != nil {
		return nil, err
	}

	m.Embedding, err = s.embedText(ctx, m.Title, m.Content)
	if err != nil {
		return nil, err
	}
	m.EmbeddingModel = s.model

	ok, err := s.store.UpdateMemory(ctx, m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

// Get returns a live memory. Soft-deleted records read as not found.
func (s *Service) Get(ctx context.Context, id string) (*storage.Memory, error) {
	return s.getLive(ctx, id)
}

// Delete soft-deletes a memory; content survives until Purge.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	ok, err := s.store.SoftDeleteMemory(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Purge permanently removes a soft-deleted memory. Live memories must be
// deleted first.
func (s *Service) Purge(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	m, err := s.store.GetMemory(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotFound
	}
	if m.DeletedAt == nil {
		return ErrNotDeleted
	}
	ok, err := s.store.PurgeMemory(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// ListOptions filters and pages List. Tags match any overlap.
type ListOptions struct {
	ProjectID  string
	MemoryType string
	Tags       []string
	Limit      int
	Offset     int
}

// List pages live memories, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*storage.Memory, error) {
	limit := opts.Limit
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	return s.store.ListMemories(ctx, opts.ProjectID, opts.MemoryType, opts.Tags, limit, offset)
}

// SearchRequest is one hybrid memory lookup.
type SearchRequest struct {
	Query string
	Limit int
}

// SearchResult is one fused hit.
type SearchResult struct {
	Memory       *storage.Memory    `json:"memory"`
	Score        float64            `json:"score"`
	MethodScores map[string]float64 `json:"method_scores,omitempty"`
}

// Search runs trigram-on-title and vector-cosine candidates in parallel
// and fuses them by weighted reciprocal rank. Either backend may degrade;
// only both failing yields an empty answer.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var lexical, vector []storage.ScoredMemory

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.store.LexicalSearchMemories(gctx, query, lexicalSimilarityCut, candidatePool)
		if err != nil {
			s.logger.Warn("memory lexical search degraded", zap.Error(err))
			return nil
		}
		lexical = res
		return nil
	})
	g.Go(func() error {
		emb, err := s.embedder.GenerateEmbedding(gctx, query, embed.DomainText)
		if err != nil {
			s.logger.Warn("memory query embedding failed, vector search skipped", zap.Error(err))
			return nil
		}
		res, err := s.store.VectorSearchMemories(gctx, emb.Text, candidatePool, searchEfSearch)
		if err != nil {
			s.logger.Warn("memory vector search degraded", zap.Error(err))
			return nil
		}
		kept := res[:0]
		for _, c := range res {
			if c.Score >= vectorSimilarityThreshold {
				kept = append(kept, c)
			}
		}
		vector = kept
		return nil
	})
	_ = g.Wait()

	fused := fuseMemories(lexical, vector, search.DefaultLexicalWeight, search.DefaultVectorWeight)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// fuseMemories merges two rank-ordered candidate lists by weighted
// reciprocal rank, the same scheme the chunk search uses.
func fuseMemories(lexical, vector []storage.ScoredMemory, lexW, vecW float64) []SearchResult {
	type entry struct {
		memory   *storage.Memory
		rrf      float64
		byMethod map[string]float64
	}
	byID := make(map[string]*entry)
	var order []*entry

	merge := func(method string, weight float64, list []storage.ScoredMemory) {
		for i, sm := range list {
			e, ok := byID[sm.Memory.ID]
			if !ok {
				e = &entry{memory: sm.Memory, byMethod: make(map[string]float64)}
				byID[sm.Memory.ID] = e
				order = append(order, e)
			}
			e.rrf += weight / float64(search.RRFConstant+i+1)
			e.byMethod[method] = sm.Score
		}
	}
	merge(search.MethodLexical, lexW, lexical)
	merge(search.MethodVector, vecW, vector)

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].rrf != order[j].rrf {
			return order[i].rrf > order[j].rrf
		}
		return order[i].memory.ID < order[j].memory.ID
	})

	out := make([]SearchResult, len(order))
	for i, e := range order {
		out[i] = SearchResult{Memory: e.memory, Score: e.rrf, MethodScores: e.byMethod}
	}
	return out
}

func (s *Service) getLive(ctx context.Context, id string) (*storage.Memory, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	m, err := s.store.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil || m.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// embedText produces the stored vector from title and content together, so
// a search on either finds the record.
func (s *Service) embedText(ctx context.Context, title, content string) ([]float32, error) {
	emb, err := s.embedder.GenerateEmbedding(ctx, title+"\n\n"+content, embed.DomainText)
	if err != nil {
		return nil, fmt.Errorf("embedding memory: %w", err)
	}
	return emb.Text, nil
}

func validateFields(title, content string) error {
	if title == "" {
		return fmt.Errorf("title must not be empty")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	}
	if content == "" {
		return fmt.Errorf("content must not be empty")
	}
	return nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid memory id %q", id)
	}
	return nil
}
