// Package config loads runtime configuration for the ranking core and
// its demo HTTP server, following the teacher's flag-with-env-fallback
// pattern (cmd/server's getEnv helper) rather than a third-party config
// library — the settings surface here is small and flat enough that
// viper/koanf would be incidental weight with no component to exercise
// their richer features (file watching, remote backends).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full set of tunables for constructing an orchestrator,
// either embedded as a library or wired into cmd/server.
type Config struct {
	// Retrieval defaults (spec §4.5, §6) — per-request RankOptions may
	// override any of these.
	DefaultCandidateSize int
	DefaultBM25Weight    float64
	DefaultFeasWeight    float64
	RRFConstant          int
	MaxPageSize          int

	// Dense index artifacts (spec §6).
	DenseIndexPath string
	DenseMetaPath  string

	// Criteria dictionary (spec §4.3).
	SynonymDictionaryPath string

	// Criteria-parse LRU cache size (spec §9 Design Notes).
	ParseCacheSize int

	// HTTP server / demo-only settings.
	Port         string
	CacheEnabled bool
	CacheTTL     time.Duration
	LogLevel     string
	LogFormat    string
}

// Option mutates a Config during construction, mirroring the functional-
// options idiom used across the corpus (Aman-CERP-amanmcp's store
// constructors take an options struct the same way).
type Option func(*Config)

// WithCandidateSize overrides the default per-backend candidate size.
func WithCandidateSize(n int) Option {
	return func(c *Config) { c.DefaultCandidateSize = n }
}

// WithWeights overrides the default BM25/feasibility blend weights.
func WithWeights(bm25Weight, feasWeight float64) Option {
	return func(c *Config) {
		c.DefaultBM25Weight = bm25Weight
		c.DefaultFeasWeight = feasWeight
	}
}

// WithRRFConstant overrides the RRF k constant (default 60 per spec §9).
func WithRRFConstant(k int) Option {
	return func(c *Config) { c.RRFConstant = k }
}

// WithDenseIndex sets the dense index graph and metadata artifact paths.
func WithDenseIndex(indexPath, metaPath string) Option {
	return func(c *Config) {
		c.DenseIndexPath = indexPath
		c.DenseMetaPath = metaPath
	}
}

// WithSynonymDictionary sets the criteria-parser synonym dictionary path.
func WithSynonymDictionary(path string) Option {
	return func(c *Config) { c.SynonymDictionaryPath = path }
}

// Default returns a Config populated with the documented defaults
// (candidate_size=1000, RRF k=60, bm25_weight=0.5, feasibility_weight=0.6
// — the same values as orchestrator.DefaultRankOptions) before any Option
// or environment override is applied.
func Default() *Config {
	return &Config{
		DefaultCandidateSize:  1000,
		DefaultBM25Weight:     0.5,
		DefaultFeasWeight:     0.6,
		RRFConstant:           60,
		MaxPageSize:           100,
		DenseIndexPath:        "testdata/dense.hnsw",
		DenseMetaPath:         "testdata/dense.meta.json",
		SynonymDictionaryPath: "testdata/synonyms.json",
		ParseCacheSize:        2048,
		Port:                  getEnv("PORT", "8080"),
		CacheEnabled:          true,
		CacheTTL:              6 * time.Hour,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
	}
}

// New builds a Config from defaults, environment variables, and the
// supplied options, in that precedence order (options win).
func New(opts ...Option) *Config {
	c := Default()

	if v := os.Getenv("CANDIDATE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultCandidateSize = n
		}
	}
	if v := os.Getenv("DENSE_INDEX_PATH"); v != "" {
		c.DenseIndexPath = v
	}
	if v := os.Getenv("DENSE_META_PATH"); v != "" {
		c.DenseMetaPath = v
	}
	if v := os.Getenv("SYNONYM_DICTIONARY_PATH"); v != "" {
		c.SynonymDictionaryPath = v
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getEnv returns the environment variable's value, or defaultValue when
// unset or empty — identical in shape to the teacher's cmd/server helper,
// hoisted here so both cmd/server and library embedders share it.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
