package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir    string
	configFile string
}

// NewLoader creates a configuration loader rooted at the given directory.
// It looks for .atlas/config.yml under that directory.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// NewFileLoader creates a loader bound to an explicit config file,
// for the --config flag.
func NewFileLoader(path string) Loader {
	return &loader{configFile: path}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (ATLAS_*)
// 2. Config file (.atlas/config.yml or an explicit --config path)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		configDir := filepath.Join(l.rootDir, ".atlas")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("ATLAS")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., ATLAS_DATABASE_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables to config keys. AutomaticEnv alone does
	// not surface nested keys through Unmarshal.
	bindEnvKeys(v)

	setDefaults(v)

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if l.configFile != "" {
			// An explicitly named file must exist.
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"database.url",
		"database.max_conns",

		"cache.url",
		"cache.stream_url",
		"cache.chunk_max_bytes",

		"embedding.text_model",
		"embedding.code_model",
		"embedding.endpoint",
		"embedding.device",
		"embedding.mock",
		"embedding.single_timeout_seconds",
		"embedding.batch_timeout_seconds",
		"embedding.memory_cap_mb",

		"chunking.max_chunk_size",
		"chunking.min_chunk_size",
		"chunking.parse_timeout_seconds",
		"chunking.max_parsers",

		"pipeline.batch_size",
		"pipeline.batch_timeout_seconds",
		"pipeline.block_seconds",
		"pipeline.reclaim_interval_seconds",
		"pipeline.reclaim_idle_seconds",
		"pipeline.max_deliveries",
		"pipeline.staging_dir",
		"pipeline.worker_bin",

		"search.lexical_weight",
		"search.vector_weight",
		"search.ef_search",
		"search.rerank_enabled",
		"search.rerank_endpoint",
		"search.rerank_model",

		"lsp.enabled",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	// Database defaults
	v.SetDefault("database.url", defaults.Database.URL)
	v.SetDefault("database.max_conns", defaults.Database.MaxConns)

	// Cache defaults
	v.SetDefault("cache.url", defaults.Cache.URL)
	v.SetDefault("cache.stream_url", defaults.Cache.StreamURL)
	v.SetDefault("cache.chunk_max_bytes", defaults.Cache.ChunkMaxBytes)

	// Embedding defaults
	v.SetDefault("embedding.text_model", defaults.Embedding.TextModel)
	v.SetDefault("embedding.code_model", defaults.Embedding.CodeModel)
	v.SetDefault("embedding.endpoint", defaults.Embedding.Endpoint)
	v.SetDefault("embedding.device", defaults.Embedding.Device)
	v.SetDefault("embedding.mock", defaults.Embedding.Mock)
	v.SetDefault("embedding.single_timeout_seconds", defaults.Embedding.SingleTimeoutSeconds)
	v.SetDefault("embedding.batch_timeout_seconds", defaults.Embedding.BatchTimeoutSeconds)
	v.SetDefault("embedding.memory_cap_mb", defaults.Embedding.MemoryCapMB)

	// Chunking defaults
	v.SetDefault("chunking.max_chunk_size", defaults.Chunking.MaxChunkSize)
	v.SetDefault("chunking.min_chunk_size", defaults.Chunking.MinChunkSize)
	v.SetDefault("chunking.parse_timeout_seconds", defaults.Chunking.ParseTimeoutSeconds)
	v.SetDefault("chunking.max_parsers", defaults.Chunking.MaxParsers)

	// Pipeline defaults
	v.SetDefault("pipeline.batch_size", defaults.Pipeline.BatchSize)
	v.SetDefault("pipeline.batch_timeout_seconds", defaults.Pipeline.BatchTimeoutSeconds)
	v.SetDefault("pipeline.block_seconds", defaults.Pipeline.BlockSeconds)
	v.SetDefault("pipeline.reclaim_interval_seconds", defaults.Pipeline.ReclaimIntervalSeconds)
	v.SetDefault("pipeline.reclaim_idle_seconds", defaults.Pipeline.ReclaimIdleSeconds)
	v.SetDefault("pipeline.max_deliveries", defaults.Pipeline.MaxDeliveries)
	v.SetDefault("pipeline.staging_dir", defaults.Pipeline.StagingDir)
	v.SetDefault("pipeline.worker_bin", defaults.Pipeline.WorkerBin)

	// Search defaults
	v.SetDefault("search.lexical_weight", defaults.Search.LexicalWeight)
	v.SetDefault("search.vector_weight", defaults.Search.VectorWeight)
	v.SetDefault("search.ef_search", defaults.Search.EfSearch)
	v.SetDefault("search.rerank_enabled", defaults.Search.RerankEnabled)
	v.SetDefault("search.rerank_endpoint", defaults.Search.RerankEndpoint)
	v.SetDefault("search.rerank_model", defaults.Search.RerankModel)

	// LSP defaults
	v.SetDefault("lsp.enabled", defaults.LSP.Enabled)

	// Paths defaults
	v.SetDefault("paths.code", defaults.Paths.Code)
	v.SetDefault("paths.ignore", defaults.Paths.Ignore)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
