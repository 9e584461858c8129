package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-atlas/internal/embed"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

// Test Plan:
// 1. Create validates title and content, defaults the type, trims
//    whitespace, and stores a text-domain embedding with the model name.
// 2. Update patches only the provided fields, re-embeds, and refuses
//    missing or soft-deleted records.
// 3. Get hides soft-deleted records; Delete and Purge enforce the
//    two-phase lifecycle.
// 4. List clamps paging to the documented bounds.
// 5. Search fuses lexical and vector candidates by weighted reciprocal
//    rank, filters vector noise, and degrades to one backend when the
//    other fails.

const (
	idA = "11111111-1111-1111-1111-111111111111"
	idB = "22222222-2222-2222-2222-222222222222"
	idC = "33333333-3333-3333-3333-333333333333"
)

type fakeStore struct {
	memories map[string]*storage.Memory

	insertErr error
	updateOK  bool

	lexical    []storage.ScoredMemory
	lexicalErr error
	vector     []storage.ScoredMemory
	vectorErr  error

	lastListLimit  int
	lastListOffset int
}

func newFakeStore() *fakeStore {
	return &fakeStore{memories: make(map[string]*storage.Memory), updateOK: true}
}

func (f *fakeStore) InsertMemory(_ context.Context, m *storage.Memory) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *m
	f.memories[m.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateMemory(_ context.Context, m *storage.Memory) (bool, error) {
	existing, ok := f.memories[m.ID]
	if !ok || existing.DeletedAt != nil || !f.updateOK {
		return false, nil
	}
	cp := *m
	f.memories[m.ID] = &cp
	return true, nil
}

func (f *fakeStore) GetMemory(_ context.Context, id string) (*storage.Memory, error) {
	m, ok := f.memories[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) SoftDeleteMemory(_ context.Context, id string) (bool, error) {
	m, ok := f.memories[id]
	if !ok || m.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	m.DeletedAt = &now
	return true, nil
}

func (f *fakeStore) PurgeMemory(_ context.Context, id string) (bool, error) {
	m, ok := f.memories[id]
	if !ok || m.DeletedAt == nil {
		return false, nil
	}
	delete(f.memories, id)
	return true, nil
}

func (f *fakeStore) ListMemories(_ context.Context, _, _ string, _ []string, limit, offset int) ([]*storage.Memory, error) {
	f.lastListLimit = limit
	f.lastListOffset = offset
	return nil, nil
}

func (f *fakeStore) LexicalSearchMemories(_ context.Context, _ string, _ float64, _ int) ([]storage.ScoredMemory, error) {
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return f.lexical, nil
}

func (f *fakeStore) VectorSearchMemories(_ context.Context, _ []float32, _, _ int) ([]storage.ScoredMemory, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vector, nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, text string, domain embed.Domain) (embed.Embeddings, error) {
	f.calls++
	if f.err != nil {
		return embed.Embeddings{}, f.err
	}
	vec := make([]float32, embed.Dim)
	for i := range vec {
		vec[i] = float32(len(text)%7) * 0.01
	}
	if domain == embed.DomainText {
		return embed.Embeddings{Text: vec}, nil
	}
	return embed.Embeddings{Code: vec}, nil
}

func newTestService(store *fakeStore, embedder *fakeEmbedder) *Service {
	return NewService(store, embedder, "BAAI/bge-base-en-v1.5", nil)
}

func mem(id, title string) *storage.Memory {
	return &storage.Memory{ID: id, Title: title, Content: "body"}
}

func TestCreate_StoresEmbeddedMemory(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	svc := newTestService(store, embedder)

	m, err := svc.Create(context.Background(), CreateInput{
		Title:   "  Auth decision  ",
		Content: " We will use JWT for the API. ",
		Tags:    []string{"auth"},
	})
	require.NoError(t, err)

	assert.NoError(t, uuid.Validate(m.ID))
	assert.Equal(t, "Auth decision", m.Title)
	assert.Equal(t, "We will use JWT for the API.", m.Content)
	assert.Equal(t, DefaultMemoryType, m.MemoryType)
	assert.Equal(t, "BAAI/bge-base-en-v1.5", m.EmbeddingModel)
	assert.Len(t, m.Embedding, embed.Dim)
	assert.Equal(t, 1, embedder.calls)

	stored, ok := store.memories[m.ID]
	require.True(t, ok)
	assert.Equal(t, "Auth decision", stored.Title)
}

func TestCreate_KeepsExplicitType(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEmbedder{})

	m, err := svc.Create(context.Background(), CreateInput{
		Title:      "Retro notes",
		Content:    "what went well",
		MemoryType: "conversation",
	})
	require.NoError(t, err)
	assert.Equal(t, "conversation", m.MemoryType)
}

func TestCreate_ValidatesFields(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEmbedder{})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Title: "   ", Content: "body"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")

	_, err = svc.Create(ctx, CreateInput{Title: strings.Repeat("x", MaxTitleLength+1), Content: "body"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "200")

	_, err = svc.Create(ctx, CreateInput{Title: "ok", Content: "  "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content")
}

func TestCreate_TitleLimitCountsRunes(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEmbedder{})

	// 200 multibyte runes are within the limit even though the byte count
	// is far larger.
	_, err := svc.Create(context.Background(), CreateInput{
		Title:   strings.Repeat("й", MaxTitleLength),
		Content: "body",
	})
	assert.NoError(t, err)
}

func TestCreate_EmbeddingFailureFails(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEmbedder{err: errors.New("model offline")})

	_, err := svc.Create(context.Background(), CreateInput{Title: "t", Content: "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding")
}

func TestUpdate_PatchesOnlyProvidedFields(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	svc := newTestService(store, embedder)

	created, err := svc.Create(context.Background(), CreateInput{
		Title:   "Original title",
		Content: "original content",
		Tags:    []string{"a"},
	})
	require.NoError(t, err)
	embedder.calls = 0

	newContent := "revised content"
	updated, err := svc.Update(context.Background(), created.ID, UpdateInput{Content: &newContent})
	require.NoError(t, err)

	assert.Equal(t, "Original title", updated.Title)
	assert.Equal(t, "revised content", updated.Content)
	assert.Equal(t, []string{"a"}, updated.Tags)
	assert.Equal(t, 1, embedder.calls, "update re-embeds once")
}

func TestUpdate_RejectsEmptyPatchedTitle(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEmbedder{})

	created, err := svc.Create(context.Background(), CreateInput{Title: "t", Content: "c"})
	require.NoError(t, err)

	empty := "  "
	_, err = svc.Update(context.Background(), created.ID, UpdateInput{Title: &empty})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEmbedder{})

	title := "x"
	_, err := svc.Update(context.Background(), idA, UpdateInput{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_HidesSoftDeleted(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEmbedder{})

	created, err := svc.Create(context.Background(), CreateInput{Title: "t", Content: "c"})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	require.NoError(t, svc.Delete(context.Background(), created.ID))

	_, err = svc.Get(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_RejectsMalformedID(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEmbedder{})

	_, err := svc.Get(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid memory id")
}

func TestDelete_SecondDeleteIsNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEmbedder{})

	created, err := svc.Create(context.Background(), CreateInput{Title: "t", Content: "c"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	assert.ErrorIs(t, svc.Delete(context.Background(), created.ID), ErrNotFound)
}

func TestPurge_RequiresSoftDeleteFirst(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEmbedder{})
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Title: "t", Content: "c"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Purge(ctx, created.ID), ErrNotDeleted)

	require.NoError(t, svc.Delete(ctx, created.ID))
	require.NoError(t, svc.Purge(ctx, created.ID))

	assert.ErrorIs(t, svc.Purge(ctx, created.ID), ErrNotFound)
	assert.Empty(t, store.memories)
}

func TestList_ClampsPaging(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEmbedder{})
	ctx := context.Background()

	_, err := svc.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultListLimit, store.lastListLimit)
	assert.Zero(t, store.lastListOffset)

	_, err = svc.List(ctx, ListOptions{Limit: 10_000, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, store.lastListLimit)
	assert.Zero(t, store.lastListOffset)
}

func TestSearch_FusesBothBackends(t *testing.T) {
	store := newFakeStore()
	store.lexical = []storage.ScoredMemory{
		{Memory: mem(idA, "jwt auth"), Score: 0.9},
		{Memory: mem(idB, "auth decision"), Score: 0.5},
	}
	store.vector = []storage.ScoredMemory{
		{Memory: mem(idB, "auth decision"), Score: 0.8},
		{Memory: mem(idC, "session handling"), Score: 0.7},
	}
	svc := newTestService(store, &fakeEmbedder{})

	results, err := svc.Search(context.Background(), SearchRequest{Query: "auth"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// B appears in both lists, so it fuses highest; C rides the heavier
	// vector weight past lexical-only A.
	assert.Equal(t, idB, results[0].Memory.ID)
	assert.Equal(t, idC, results[1].Memory.ID)
	assert.Equal(t, idA, results[2].Memory.ID)

	assert.Contains(t, results[0].MethodScores, "lexical")
	assert.Contains(t, results[0].MethodScores, "vector")
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearch_FiltersVectorNoise(t *testing.T) {
	store := newFakeStore()
	store.vector = []storage.ScoredMemory{
		{Memory: mem(idA, "relevant"), Score: 0.6},
		{Memory: mem(idB, "noise"), Score: 0.05},
	}
	svc := newTestService(store, &fakeEmbedder{})

	results, err := svc.Search(context.Background(), SearchRequest{Query: "relevant"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, idA, results[0].Memory.ID)
}

func TestSearch_DegradesWhenEmbedderFails(t *testing.T) {
	store := newFakeStore()
	store.lexical = []storage.ScoredMemory{
		{Memory: mem(idA, "jwt auth"), Score: 0.9},
	}
	svc := newTestService(store, &fakeEmbedder{err: errors.New("model offline")})

	results, err := svc.Search(context.Background(), SearchRequest{Query: "auth"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, idA, results[0].Memory.ID)
}

func TestSearch_DegradesWhenLexicalFails(t *testing.T) {
	store := newFakeStore()
	store.lexicalErr = errors.New("pg_trgm missing")
	store.vector = []storage.ScoredMemory{
		{Memory: mem(idB, "auth decision"), Score: 0.8},
	}
	svc := newTestService(store, &fakeEmbedder{})

	results, err := svc.Search(context.Background(), SearchRequest{Query: "auth"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, idB, results[0].Memory.ID)
}

func TestSearch_RejectsEmptyQuery(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEmbedder{})

	_, err := svc.Search(context.Background(), SearchRequest{Query: "   "})
	require.Error(t, err)
}

func TestSearch_AppliesLimit(t *testing.T) {
	store := newFakeStore()
	store.lexical = []storage.ScoredMemory{
		{Memory: mem(idA, "one"), Score: 0.9},
		{Memory: mem(idB, "two"), Score: 0.8},
		{Memory: mem(idC, "three"), Score: 0.7},
	}
	svc := newTestService(store, &fakeEmbedder{})

	results, err := svc.Search(context.Background(), SearchRequest{Query: "q", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
