package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockService(t *testing.T) *Service {
	t.Helper()
	return NewService(Config{Mock: true}, nil)
}

func TestGenerateEmbedding_Domains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		domain   Domain
		wantText bool
		wantCode bool
	}{
		{"text only", DomainText, true, false},
		{"code only", DomainCode, false, true},
		{"hybrid fills both", DomainHybrid, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := mockService(t)
			emb, err := svc.GenerateEmbedding(context.Background(), "def hello(): pass", tt.domain)
			require.NoError(t, err)

			if tt.wantText {
				assert.Len(t, emb.Text, Dim)
			} else {
				assert.Nil(t, emb.Text)
			}
			if tt.wantCode {
				assert.Len(t, emb.Code, Dim)
			} else {
				assert.Nil(t, emb.Code)
			}
		})
	}
}

func TestGenerateEmbedding_UnknownDomain(t *testing.T) {
	t.Parallel()

	svc := mockService(t)
	_, err := svc.GenerateEmbedding(context.Background(), "text", Domain("SPARSE"))
	assert.ErrorContains(t, err, "unknown embedding domain")
}

func TestGenerateEmbedding_EmptyInputZeroVector(t *testing.T) {
	t.Parallel()

	svc := mockService(t)
	emb, err := svc.GenerateEmbedding(context.Background(), "   ", DomainHybrid)
	require.NoError(t, err)

	require.Len(t, emb.Text, Dim)
	require.Len(t, emb.Code, Dim)
	for _, x := range emb.Text {
		require.Zero(t, x)
	}
	for _, x := range emb.Code {
		require.Zero(t, x)
	}
}

func TestGenerateEmbeddingsBatch_ZeroFillsEmptyPositions(t *testing.T) {
	t.Parallel()

	svc := mockService(t)
	batch, err := svc.GenerateEmbeddingsBatch(context.Background(), []string{"alpha", "", "beta"}, DomainText)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for _, x := range batch[1].Text {
		require.Zero(t, x)
	}

	// Valid texts land at their original positions.
	single, err := svc.GenerateEmbedding(context.Background(), "alpha", DomainText)
	require.NoError(t, err)
	assert.Equal(t, single.Text, batch[0].Text)
	assert.NotEqual(t, batch[0].Text, batch[2].Text)
}

func TestGenerateEmbeddingLegacy(t *testing.T) {
	t.Parallel()

	svc := mockService(t)
	vec, err := svc.GenerateEmbeddingLegacy(context.Background(), "a docstring")
	require.NoError(t, err)
	require.Len(t, vec, Dim)

	emb, err := svc.GenerateEmbedding(context.Background(), "a docstring", DomainText)
	require.NoError(t, err)
	assert.Equal(t, emb.Text, vec)
}

type failingEncoder struct{}

func (failingEncoder) Encode(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model unavailable")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	svc := mockService(t)
	svc.textEnc = failingEncoder{}

	for i := 0; i < breakerFailureThreshold; i++ {
		_, err := svc.GenerateEmbedding(context.Background(), "text", DomainText)
		require.ErrorContains(t, err, "model unavailable")
	}

	_, err := svc.GenerateEmbedding(context.Background(), "text", DomainText)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen.String(), svc.BreakerState())
}

func TestBreakerSharedAcrossDomains(t *testing.T) {
	t.Parallel()

	svc := mockService(t)
	svc.textEnc = failingEncoder{}

	for i := 0; i < breakerFailureThreshold; i++ {
		_, err := svc.GenerateEmbedding(context.Background(), "text", DomainText)
		require.Error(t, err)
	}

	// The code path hits the same open breaker even though its encoder works.
	_, err := svc.GenerateEmbedding(context.Background(), "text", DomainCode)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestCodeEncoderRespectsMemoryBudget(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{Mock: true, MemoryCapBytes: 1}, nil)
	_, err := svc.GenerateEmbedding(context.Background(), "code", DomainCode)
	require.ErrorIs(t, err, ErrMemoryBudget)

	// The text model has no load-time budget check.
	_, err = svc.GenerateEmbedding(context.Background(), "text", DomainText)
	assert.NoError(t, err)
}

func TestPreloadWarmsBothEncoders(t *testing.T) {
	t.Parallel()

	svc := mockService(t)
	require.NoError(t, svc.Preload(context.Background()))

	svc.mu.RLock()
	defer svc.mu.RUnlock()
	assert.NotNil(t, svc.textEnc)
	assert.NotNil(t, svc.codeEnc)
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clips to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
