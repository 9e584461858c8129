// Package config loads atlas configuration with the priority chain
// defaults -> optional .atlas/config.yml -> ATLAS_* environment variables,
// environment winning. The zero configuration runs a local mock setup;
// production deployments set the database, cache, and model endpoints.
package config

// Config is the complete atlas configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking" mapstructure:"chunking"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	LSP       LSPConfig       `yaml:"lsp" mapstructure:"lsp"`
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
}

// DatabaseConfig locates the PostgreSQL store.
type DatabaseConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`             // postgres://... with vector + pg_trgm available
	MaxConns int    `yaml:"max_conns" mapstructure:"max_conns"` // pool size
}

// CacheConfig locates the shared cache and stream backends.
type CacheConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`                         // redis://host:port/db
	StreamURL     string `yaml:"stream_url" mapstructure:"stream_url"`           // empty means reuse URL
	ChunkMaxBytes int64  `yaml:"chunk_max_bytes" mapstructure:"chunk_max_bytes"` // in-process chunk cache cap
}

// EmbeddingConfig configures the dual-model embedding service.
type EmbeddingConfig struct {
	TextModel            string `yaml:"text_model" mapstructure:"text_model"`
	CodeModel            string `yaml:"code_model" mapstructure:"code_model"`
	Endpoint             string `yaml:"endpoint" mapstructure:"endpoint"` // inference endpoint URL
	Device               string `yaml:"device" mapstructure:"device"`     // cpu unless told otherwise
	Mock                 bool   `yaml:"mock" mapstructure:"mock"`         // deterministic vectors, no models
	SingleTimeoutSeconds int    `yaml:"single_timeout_seconds" mapstructure:"single_timeout_seconds"`
	BatchTimeoutSeconds  int    `yaml:"batch_timeout_seconds" mapstructure:"batch_timeout_seconds"`
	MemoryCapMB          int    `yaml:"memory_cap_mb" mapstructure:"memory_cap_mb"` // refuse code-model load above this RSS
}

// ChunkingConfig tunes the semantic chunker.
type ChunkingConfig struct {
	MaxChunkSize        int `yaml:"max_chunk_size" mapstructure:"max_chunk_size"` // bytes before split
	MinChunkSize        int `yaml:"min_chunk_size" mapstructure:"min_chunk_size"` // bytes before trailing merge
	ParseTimeoutSeconds int `yaml:"parse_timeout_seconds" mapstructure:"parse_timeout_seconds"`
	MaxParsers          int `yaml:"max_parsers" mapstructure:"max_parsers"` // concurrent parse slots
}

// PipelineConfig tunes the stream-driven batch pipeline.
type PipelineConfig struct {
	BatchSize              int    `yaml:"batch_size" mapstructure:"batch_size"`                             // files per stream message
	BatchTimeoutSeconds    int    `yaml:"batch_timeout_seconds" mapstructure:"batch_timeout_seconds"`       // subprocess budget, then SIGKILL
	BlockSeconds           int    `yaml:"block_seconds" mapstructure:"block_seconds"`                       // XREADGROUP block
	ReclaimIntervalSeconds int    `yaml:"reclaim_interval_seconds" mapstructure:"reclaim_interval_seconds"` // abandoned-message sweep cadence
	ReclaimIdleSeconds     int    `yaml:"reclaim_idle_seconds" mapstructure:"reclaim_idle_seconds"`         // pending age before reclaim
	MaxDeliveries          int    `yaml:"max_deliveries" mapstructure:"max_deliveries"`                     // redeliveries before giving up
	StagingDir             string `yaml:"staging_dir" mapstructure:"staging_dir"`                           // where uploads are staged for workers
	WorkerBin              string `yaml:"worker_bin" mapstructure:"worker_bin"`                             // batch subprocess binary
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	LexicalWeight  float64 `yaml:"lexical_weight" mapstructure:"lexical_weight"`
	VectorWeight   float64 `yaml:"vector_weight" mapstructure:"vector_weight"`
	EfSearch       int     `yaml:"ef_search" mapstructure:"ef_search"`
	RerankEnabled  bool    `yaml:"rerank_enabled" mapstructure:"rerank_enabled"`
	RerankEndpoint string  `yaml:"rerank_endpoint" mapstructure:"rerank_endpoint"` // empty means reuse embedding endpoint
	RerankModel    string  `yaml:"rerank_model" mapstructure:"rerank_model"`
}

// LSPConfig toggles language-server type extraction.
type LSPConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// PathsConfig drives local file discovery for atlas index / enqueue.
type PathsConfig struct {
	Code   []string `yaml:"code" mapstructure:"code"`     // glob patterns to index
	Ignore []string `yaml:"ignore" mapstructure:"ignore"` // glob patterns to skip
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:      "postgres://localhost:5432/atlas?sslmode=disable",
			MaxConns: 20,
		},
		Cache: CacheConfig{
			URL:           "redis://localhost:6379/0",
			StreamURL:     "", // reuse cache URL
			ChunkMaxBytes: 100 << 20,
		},
		Embedding: EmbeddingConfig{
			TextModel:            "BAAI/bge-base-en-v1.5",
			CodeModel:            "jinaai/jina-embeddings-v2-base-code",
			Endpoint:             "http://localhost:8090",
			Device:               "cpu",
			Mock:                 false,
			SingleTimeoutSeconds: 30,
			BatchTimeoutSeconds:  120,
			MemoryCapMB:          2560,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize:        2000,
			MinChunkSize:        100,
			ParseTimeoutSeconds: 30,
			MaxParsers:          4,
		},
		Pipeline: PipelineConfig{
			BatchSize:              40,
			BatchTimeoutSeconds:    300,
			BlockSeconds:           5,
			ReclaimIntervalSeconds: 60,
			ReclaimIdleSeconds:     600,
			MaxDeliveries:          3,
			StagingDir:             "", // resolved to <tmp>/atlas-staging at use
			WorkerBin:              "atlas-worker",
		},
		Search: SearchConfig{
			LexicalWeight: 0.4,
			VectorWeight:  0.6,
			EfSearch:      100,
			RerankEnabled: false,
			RerankModel:   "cross-encoder/ms-marco-MiniLM-L-6-v2",
		},
		LSP: LSPConfig{
			Enabled: false,
		},
		Paths: PathsConfig{
			Code: []string{
				"**/*.py",
				"**/*.ts",
				"**/*.tsx",
				"**/*.js",
				"**/*.jsx",
			},
			Ignore: []string{
				"node_modules/**",
				"vendor/**",
				".git/**",
				"dist/**",
				"build/**",
				"target/**",
				"__pycache__/**",
				".venv/**",
				"venv/**",
				"*.min.js",
			},
		},
	}
}

// StreamURL resolves the stream backend, falling back to the cache URL.
func (c *Config) StreamURL() string {
	if c.Cache.StreamURL != "" {
		return c.Cache.StreamURL
	}
	return c.Cache.URL
}
