// Package config provides centralized configuration management for alexidx.
//
// All values are loaded from environment variables with sensible defaults,
// following the same getEnv/getEnvInt/getEnvWeights pattern used
// throughout this codebase's ancestry: lowest-priority defaults, overridden
// by whatever is present in the process environment at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Weights holds the score-combination coefficients of spec §4.6.
type Weights struct {
	Text float64
	Link float64
	Dom  float64
}

// Config holds all runtime configuration for the query server and the
// shard-build tooling.
type Config struct {
	// WorkerCount is the number of goroutines processing query requests
	// concurrently. Environment: ALEX_WORKER_COUNT. Default: 8.
	WorkerCount int

	// IndexRoot is the root directory under which every index family's
	// shard directories live. Environment: ALEX_INDEX_ROOT. Default: "./var/index".
	IndexRoot string

	// Listen is the host:port the HTTP query server binds.
	// Environment: ALEX_LISTEN. Default: "127.0.0.1:8000".
	Listen string

	// Weights are the score-combination coefficients (w_text, w_link, w_dom).
	// Environment: ALEX_WEIGHTS, three comma-separated floats.
	// Default: 1.0, 0.1, 0.05.
	Weights Weights

	// QueryTimeout bounds a single request's wall-clock budget (spec §5).
	// Environment: ALEX_QUERY_TIMEOUT_MS. Default: 500ms.
	QueryTimeout time.Duration

	// ResultLimit is the default top-k cutoff when a request doesn't
	// specify one. Environment: ALEX_RESULT_LIMIT. Default: 20.
	ResultLimit int

	// SnippetCacheSize bounds the resolver's read-through cache entries.
	// Environment: ALEX_SNIPPET_CACHE_SIZE. Default: 4096.
	SnippetCacheSize int

	// PostingCap is the per-token in-memory posting cap during shard
	// builds (C_post in spec §4.3). Environment: ALEX_POSTING_CAP.
	// Default: 200000.
	PostingCap int

	// BuildMemoryBudgetBytes bounds resident postings before a builder
	// spills a partial shard (spec §4.3). Environment:
	// ALEX_BUILD_MEMORY_BUDGET_BYTES. Default: 512MiB.
	BuildMemoryBudgetBytes int64

	// MetricsListen is the address the Prometheus metrics endpoint binds.
	// Environment: ALEX_METRICS_LISTEN. Default: "127.0.0.1:9100".
	MetricsListen string

	// SnippetStorePath points at a JSON-lines file of snippet records
	// used to seed the resolver's external KV-store stand-in (spec §1
	// treats the real store as an external collaborator; this path lets
	// the alexidx binary run end-to-end without one). Environment:
	// ALEX_SNIPPET_STORE_PATH. Default: "" (empty store).
	SnippetStorePath string

	// NumShards is N, the fixed shard count shared by every index
	// family opened by this process (spec §4.4). Environment:
	// ALEX_NUM_SHARDS. Default: 64.
	NumShards int

	// ShutdownTimeout bounds how long graceful HTTP shutdown waits for
	// in-flight requests to finish. Environment:
	// ALEX_SHUTDOWN_TIMEOUT_MS. Default: 5000ms.
	ShutdownTimeout time.Duration

	// DocCount is the known size of the indexed corpus, used as the
	// word_stats denominator (spec §8 TEST-02/TEST-03). A build
	// pipeline external to this repo is expected to set it alongside
	// the shard files it produces. Environment: ALEX_DOC_COUNT.
	// Default: 0.
	DocCount int

	// ResponseCacheSize bounds the whole-response query cache.
	// Environment: ALEX_RESPONSE_CACHE_SIZE. Default: 1024. A value of
	// 0 disables response caching.
	ResponseCacheSize int

	// ResponseCacheTTL bounds how long a cached response is served
	// before the next identical query re-runs the full pipeline.
	// Environment: ALEX_RESPONSE_CACHE_TTL_MS. Default: 2000ms.
	ResponseCacheTTL time.Duration
}

// Load reads Config from the environment, applying defaults for anything
// unset.
func Load() *Config {
	return &Config{
		WorkerCount:            getEnvInt("ALEX_WORKER_COUNT", 8),
		IndexRoot:              getEnv("ALEX_INDEX_ROOT", "./var/index"),
		Listen:                 getEnv("ALEX_LISTEN", "127.0.0.1:8000"),
		Weights:                getEnvWeights("ALEX_WEIGHTS", Weights{Text: 1.0, Link: 0.1, Dom: 0.05}),
		QueryTimeout:           time.Duration(getEnvInt("ALEX_QUERY_TIMEOUT_MS", 500)) * time.Millisecond,
		ResultLimit:            getEnvInt("ALEX_RESULT_LIMIT", 20),
		SnippetCacheSize:       getEnvInt("ALEX_SNIPPET_CACHE_SIZE", 4096),
		PostingCap:             getEnvInt("ALEX_POSTING_CAP", 200_000),
		BuildMemoryBudgetBytes: getEnvInt64("ALEX_BUILD_MEMORY_BUDGET_BYTES", 512<<20),
		MetricsListen:          getEnv("ALEX_METRICS_LISTEN", "127.0.0.1:9100"),
		SnippetStorePath:       getEnv("ALEX_SNIPPET_STORE_PATH", ""),
		NumShards:              getEnvInt("ALEX_NUM_SHARDS", 64),
		ShutdownTimeout:        time.Duration(getEnvInt("ALEX_SHUTDOWN_TIMEOUT_MS", 5000)) * time.Millisecond,
		DocCount:               getEnvInt("ALEX_DOC_COUNT", 0),
		ResponseCacheSize:      getEnvInt("ALEX_RESPONSE_CACHE_SIZE", 1024),
		ResponseCacheTTL:       time.Duration(getEnvInt("ALEX_RESPONSE_CACHE_TTL_MS", 2000)) * time.Millisecond,
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvWeights(key string, defaultValue Weights) Weights {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		return defaultValue
	}
	floats := make([]float64, 3)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		floats[i] = f
	}
	return Weights{Text: floats[0], Link: floats[1], Dom: floats[2]}
}

// Validate sanity-checks a loaded configuration.
func (c *Config) Validate() error {
	if c.WorkerCount <= 0 {
		return fmt.Errorf("ALEX_WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.ResultLimit <= 0 {
		return fmt.Errorf("ALEX_RESULT_LIMIT must be positive, got %d", c.ResultLimit)
	}
	if c.PostingCap <= 0 {
		return fmt.Errorf("ALEX_POSTING_CAP must be positive, got %d", c.PostingCap)
	}
	if c.NumShards <= 0 {
		return fmt.Errorf("ALEX_NUM_SHARDS must be positive, got %d", c.NumShards)
	}
	return nil
}
