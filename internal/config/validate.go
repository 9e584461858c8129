package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyDatabaseURL indicates a missing database URL
	ErrEmptyDatabaseURL = errors.New("empty database url")

	// ErrInvalidPoolSize indicates an invalid connection pool size
	ErrInvalidPoolSize = errors.New("invalid pool size")

	// ErrEmptyModel indicates a missing embedding model
	ErrEmptyModel = errors.New("empty embedding model")

	// ErrEmptyEndpoint indicates a missing embedding endpoint
	ErrEmptyEndpoint = errors.New("empty embedding endpoint")

	// ErrInvalidChunkSize indicates invalid chunk size configuration
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidPipeline indicates invalid pipeline settings
	ErrInvalidPipeline = errors.New("invalid pipeline settings")

	// ErrInvalidWeights indicates hybrid search weights that do not sum to 1
	ErrInvalidWeights = errors.New("invalid search weights")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateDatabase(&cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if err := validateCache(&cfg.Cache); err != nil {
		errs = append(errs, err)
	}

	if err := validateEmbedding(&cfg.Embedding); err != nil {
		errs = append(errs, err)
	}

	if err := validateChunking(&cfg.Chunking); err != nil {
		errs = append(errs, err)
	}

	if err := validatePipeline(&cfg.Pipeline); err != nil {
		errs = append(errs, err)
	}

	if err := validateSearch(&cfg.Search); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateDatabase(cfg *DatabaseConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.URL) == "" {
		errs = append(errs, fmt.Errorf("%w: database.url is required", ErrEmptyDatabaseURL))
	}

	if cfg.MaxConns <= 0 {
		errs = append(errs, fmt.Errorf("%w: database.max_conns must be positive, got %d", ErrInvalidPoolSize, cfg.MaxConns))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateCache(cfg *CacheConfig) error {
	// An empty cache URL is allowed: the service degrades to L1 + DB only.
	if cfg.ChunkMaxBytes < 0 {
		return fmt.Errorf("cache.chunk_max_bytes cannot be negative, got %d", cfg.ChunkMaxBytes)
	}
	return nil
}

func validateEmbedding(cfg *EmbeddingConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.TextModel) == "" {
		errs = append(errs, fmt.Errorf("%w: embedding.text_model is required", ErrEmptyModel))
	}

	if strings.TrimSpace(cfg.CodeModel) == "" {
		errs = append(errs, fmt.Errorf("%w: embedding.code_model is required", ErrEmptyModel))
	}

	// A mock service needs no endpoint.
	if !cfg.Mock && strings.TrimSpace(cfg.Endpoint) == "" {
		errs = append(errs, fmt.Errorf("%w: embedding.endpoint is required unless embedding.mock is set", ErrEmptyEndpoint))
	}

	if cfg.SingleTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("embedding.single_timeout_seconds must be positive, got %d", cfg.SingleTimeoutSeconds))
	}

	if cfg.BatchTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("embedding.batch_timeout_seconds must be positive, got %d", cfg.BatchTimeoutSeconds))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateChunking(cfg *ChunkingConfig) error {
	var errs []error

	if cfg.MaxChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_chunk_size must be positive, got %d", ErrInvalidChunkSize, cfg.MaxChunkSize))
	}

	if cfg.MinChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: min_chunk_size must be positive, got %d", ErrInvalidChunkSize, cfg.MinChunkSize))
	}

	if cfg.MaxChunkSize > 0 && cfg.MinChunkSize >= cfg.MaxChunkSize {
		errs = append(errs, fmt.Errorf("%w: min_chunk_size (%d) must be less than max_chunk_size (%d)", ErrInvalidChunkSize, cfg.MinChunkSize, cfg.MaxChunkSize))
	}

	if cfg.MaxParsers <= 0 {
		errs = append(errs, fmt.Errorf("chunking.max_parsers must be positive, got %d", cfg.MaxParsers))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validatePipeline(cfg *PipelineConfig) error {
	var errs []error

	if cfg.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidPipeline, cfg.BatchSize))
	}

	if cfg.BatchTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("%w: batch_timeout_seconds must be positive, got %d", ErrInvalidPipeline, cfg.BatchTimeoutSeconds))
	}

	if cfg.MaxDeliveries <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_deliveries must be positive, got %d", ErrInvalidPipeline, cfg.MaxDeliveries))
	}

	if strings.TrimSpace(cfg.WorkerBin) == "" {
		errs = append(errs, fmt.Errorf("%w: worker_bin is required", ErrInvalidPipeline))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateSearch(cfg *SearchConfig) error {
	var errs []error

	if cfg.LexicalWeight < 0 || cfg.VectorWeight < 0 {
		errs = append(errs, fmt.Errorf("%w: weights cannot be negative", ErrInvalidWeights))
	}

	sum := cfg.LexicalWeight + cfg.VectorWeight
	if sum < 0.999 || sum > 1.001 {
		errs = append(errs, fmt.Errorf("%w: lexical_weight + vector_weight must sum to 1.0, got %.3f", ErrInvalidWeights, sum))
	}

	if cfg.EfSearch <= 0 {
		errs = append(errs, fmt.Errorf("search.ef_search must be positive, got %d", cfg.EfSearch))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
