// Package embed produces 768-dimensional embedding vectors in two domains:
// a general text encoder and a code-specialized encoder. Encoders load
// lazily, share one circuit breaker, and can be replaced by a deterministic
// mock for development and tests.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Dim is the embedding dimensionality in both domains.
const Dim = 768

// defaultMemoryCap refuses code-model loading above 2.5 GB resident.
const defaultMemoryCap = 5 << 29

const (
	defaultSingleTimeout = 30 * time.Second
	defaultBatchTimeout  = 120 * time.Second
)

// breaker thresholds: open after five consecutive failures, probe again
// after sixty seconds.
const (
	breakerFailureThreshold = 5
	breakerRecoveryTimeout  = 60 * time.Second
)

// ErrMemoryBudget marks a refused code-model load.
var ErrMemoryBudget = errors.New("memory budget exceeded")

// Domain selects which encoders serve a request.
type Domain string

const (
	DomainText   Domain = "TEXT"
	DomainCode   Domain = "CODE"
	DomainHybrid Domain = "HYBRID"
)

// Embeddings carries one or both domain vectors for a single input.
type Embeddings struct {
	Text []float32 `json:"text,omitempty"`
	Code []float32 `json:"code,omitempty"`
}

// Config tunes the service. Zero values fall back to defaults.
type Config struct {
	TextModel      string
	CodeModel      string
	EndpointURL    string // inference endpoint for remote encoders
	Device         string // forwarded to the endpoint, cpu when empty
	Mock           bool   // deterministic seeded vectors, no models
	SingleTimeout  time.Duration
	BatchTimeout   time.Duration
	MemoryCapBytes uint64
}

func (c Config) withDefaults() Config {
	if c.SingleTimeout <= 0 {
		c.SingleTimeout = defaultSingleTimeout
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaultBatchTimeout
	}
	if c.MemoryCapBytes == 0 {
		c.MemoryCapBytes = defaultMemoryCap
	}
	return c
}

// Service is the dual-domain embedding front end. Safe for concurrent use.
type Service struct {
	cfg     Config
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker

	mu      sync.RWMutex
	textEnc Encoder
	codeEnc Encoder
}

// NewService creates the service; no encoder is loaded until first use.
func NewService(cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "embedding",
		Timeout: breakerRecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("embedding breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Service{cfg: cfg, logger: logger, breaker: breaker}
}

// GenerateEmbedding embeds one text in the requested domain(s). Empty
// input yields zero-vectors.
func (s *Service) GenerateEmbedding(ctx context.Context, text string, domain Domain) (Embeddings, error) {
	out, err := s.embedBatch(ctx, []string{text}, domain, s.cfg.SingleTimeout)
	if err != nil {
		return Embeddings{}, err
	}
	return out[0], nil
}

// GenerateEmbeddingsBatch embeds all non-empty texts in one forward pass
// per domain, filling zero-vectors for empty inputs at their original
// positions.
func (s *Service) GenerateEmbeddingsBatch(ctx context.Context, texts []string, domain Domain) ([]Embeddings, error) {
	return s.embedBatch(ctx, texts, domain, s.cfg.BatchTimeout)
}

// GenerateEmbeddingLegacy returns only the text-domain vector.
func (s *Service) GenerateEmbeddingLegacy(ctx context.Context, text string) ([]float32, error) {
	emb, err := s.GenerateEmbedding(ctx, text, DomainText)
	if err != nil {
		return nil, err
	}
	return emb.Text, nil
}

func (s *Service) embedBatch(ctx context.Context, texts []string, domain Domain, timeout time.Duration) ([]Embeddings, error) {
	wantText := domain == DomainText || domain == DomainHybrid
	wantCode := domain == DomainCode || domain == DomainHybrid
	if !wantText && !wantCode {
		return nil, fmt.Errorf("unknown embedding domain %q", domain)
	}

	out := make([]Embeddings, len(texts))
	if wantText {
		vecs, err := s.encodeAll(ctx, texts, s.textEncoder, timeout)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i].Text = vecs[i]
		}
	}
	if wantCode {
		vecs, err := s.encodeAll(ctx, texts, s.codeEncoder, timeout)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i].Code = vecs[i]
		}
	}
	return out, nil
}

// encodeAll encodes the valid texts through the breaker and zero-fills
// empties at their original positions.
func (s *Service) encodeAll(ctx context.Context, texts []string, getEncoder func() (Encoder, error), timeout time.Duration) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	var validTexts []string
	var validIdx []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			vecs[i] = make([]float32, Dim)
			continue
		}
		validTexts = append(validTexts, t)
		validIdx = append(validIdx, i)
	}
	if len(validTexts) == 0 {
		return vecs, nil
	}

	enc, err := getEncoder()
	if err != nil {
		return nil, err
	}

	res, err := s.breaker.Execute(func() (any, error) {
		ectx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return enc.Encode(ectx, validTexts)
	})
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	encoded := res.([][]float32)
	if len(encoded) != len(validTexts) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d texts", len(encoded), len(validTexts))
	}
	for j, i := range validIdx {
		if len(encoded[j]) != Dim {
			return nil, fmt.Errorf("encoder returned %d-dimensional vector, want %d", len(encoded[j]), Dim)
		}
		vecs[i] = encoded[j]
	}
	return vecs, nil
}

// textEncoder returns the text-domain encoder, loading it on first use.
func (s *Service) textEncoder() (Encoder, error) {
	s.mu.RLock()
	enc := s.textEnc
	s.mu.RUnlock()
	if enc != nil {
		return enc, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.textEnc != nil {
		return s.textEnc, nil
	}

	enc, err := s.newEncoder(s.cfg.TextModel)
	if err != nil {
		return nil, err
	}
	s.logger.Info("text encoder ready", zap.String("model", s.cfg.TextModel))
	s.textEnc = enc
	return enc, nil
}

// codeEncoder returns the code-domain encoder. Loading is refused when
// resident memory already exceeds the configured cap.
func (s *Service) codeEncoder() (Encoder, error) {
	s.mu.RLock()
	enc := s.codeEnc
	s.mu.RUnlock()
	if enc != nil {
		return enc, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codeEnc != nil {
		return s.codeEnc, nil
	}

	if err := s.checkMemoryBudget(); err != nil {
		return nil, err
	}

	enc, err := s.newEncoder(s.cfg.CodeModel)
	if err != nil {
		return nil, err
	}
	s.logger.Info("code encoder ready", zap.String("model", s.cfg.CodeModel))
	s.codeEnc = enc
	return enc, nil
}

func (s *Service) newEncoder(model string) (Encoder, error) {
	if s.cfg.Mock {
		return MockEncoder{}, nil
	}
	return NewRemoteEncoder(s.cfg.EndpointURL, model, s.cfg.Device)
}

func (s *Service) checkMemoryBudget() error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil // cannot measure, allow the load
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return nil
	}
	if info.RSS > s.cfg.MemoryCapBytes {
		return fmt.Errorf("%w: rss %d over cap %d", ErrMemoryBudget, info.RSS, s.cfg.MemoryCapBytes)
	}
	return nil
}

// Preload warms both encoders so the first indexing request skips the
// cold start.
func (s *Service) Preload(ctx context.Context) error {
	_, err := s.embedBatch(ctx, []string{"warmup"}, DomainHybrid, s.cfg.SingleTimeout)
	return err
}

// ForceMemoryCleanup runs the collector and returns freed pages to the OS;
// long file sequences call this between batches.
func (s *Service) ForceMemoryCleanup() {
	runtime.GC()
	debug.FreeOSMemory()
}

// BreakerState exposes the shared breaker state for health reporting.
func (s *Service) BreakerState() string {
	return s.breaker.State().String()
}

// CosineSimilarity returns cosine similarity clipped to [0, 1]. Mismatched
// or zero-length vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
