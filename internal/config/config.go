// Package config loads the runtime's configuration: defaults, an optional
// YAML file, and environment variable overrides, in the same load-then-merge
// order the teacher's pkg/config uses (defaults -> file -> env).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Cache        CacheConfig        `yaml:"cache"`
	Dispatcher   DispatcherConfig   `yaml:"dispatcher"`
	Hooks        HooksConfig        `yaml:"hooks"`
	Finder       FinderConfig       `yaml:"finder"`
	RemoteEngine RemoteEngineConfig `yaml:"remote_engine"`
	RPC          RPCConfig          `yaml:"rpc"`
	LogLevel     string             `yaml:"log_level"`
}

// CacheConfig controls the two-tier cache (internal/cache).
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Persist     bool          `yaml:"persist"`
	Path        string        `yaml:"path"`
	MemorySize  int           `yaml:"memory_size"`
	DefaultTTL  time.Duration `yaml:"default_ttl"`
	SpecVersion string        `yaml:"spec_version"`
}

// DispatcherConfig controls batch and per-tool concurrency defaults.
type DispatcherConfig struct {
	GlobalWorkers         int `yaml:"global_workers"`
	DefaultMaxConcurrency int `yaml:"default_max_concurrency"`
}

// HooksConfig controls the summarization and file-offload post-hooks.
type HooksConfig struct {
	SummarizeThreshold int           `yaml:"summarize_threshold"`
	SummarizerTool     string        `yaml:"summarizer_tool"`
	FileOffloadDir     string        `yaml:"file_offload_dir"`
	FileOffloadMaxAge  time.Duration `yaml:"file_offload_max_age"`
}

// FinderConfig controls tool discovery strategy defaults.
type FinderConfig struct {
	DefaultStrategy string `yaml:"default_strategy"`
	EmbeddingModel  string `yaml:"embedding_model"`
	LLMModel        string `yaml:"llm_model"`
}

// RemoteEngineConfig controls the remote inference engine proxy.
type RemoteEngineConfig struct {
	Address string `yaml:"address"`
	AuthKey string `yaml:"auth_key"`
}

// RPCConfig controls the JSON-RPC surface.
type RPCConfig struct {
	Transport string `yaml:"transport"` // "stdio" or "http"
	HTTPAddr  string `yaml:"http_addr"`
}

// Default returns the configuration's zero-config baseline.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:     true,
			Persist:     true,
			Path:        "",
			MemorySize:  128,
			DefaultTTL:  24 * time.Hour,
			SpecVersion: "v1",
		},
		Dispatcher: DispatcherConfig{
			GlobalWorkers:         16,
			DefaultMaxConcurrency: 4,
		},
		Hooks: HooksConfig{
			SummarizeThreshold: 5000,
			SummarizerTool:      "Summarizer",
			FileOffloadDir:      "toolrt_outputs",
			FileOffloadMaxAge:   7 * 24 * time.Hour,
		},
		Finder: FinderConfig{
			DefaultStrategy: "auto",
		},
		RPC: RPCConfig{
			Transport: "stdio",
			HTTPAddr:  "127.0.0.1:7288",
		},
		LogLevel: "info",
	}
}

// Load builds a Config by taking Default(), merging an optional YAML file at
// path (if path is non-empty and the file exists), then applying environment
// variable overrides. Env vars always win, mirroring the teacher's
// defaults -> file -> env precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := envBool("TOOLUNIVERSE_CACHE_ENABLED"); ok {
		cfg.Cache.Enabled = v
	}
	if v, ok := envBool("TOOLUNIVERSE_CACHE_PERSIST"); ok {
		cfg.Cache.Persist = v
	}
	if v := os.Getenv("TOOLUNIVERSE_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("TOOLUNIVERSE_CACHE_MEMORY_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Cache.MemorySize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TOOLUNIVERSE_CACHE_DEFAULT_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DefaultTTL = d
		}
	}
	if v := os.Getenv("TOOLUNIVERSE_REMOTE_ENGINE_ADDRESS"); v != "" {
		cfg.RemoteEngine.Address = v
	}
	if v := os.Getenv("TOOLUNIVERSE_REMOTE_ENGINE_AUTH_KEY"); v != "" {
		cfg.RemoteEngine.AuthKey = v
	}
	if v := os.Getenv("TOOLUNIVERSE_RPC_TRANSPORT"); v != "" {
		cfg.RPC.Transport = v
	}
	if v := os.Getenv("TOOLUNIVERSE_RPC_HTTP_ADDR"); v != "" {
		cfg.RPC.HTTPAddr = v
	}
	if v := os.Getenv("TOOLUNIVERSE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("TOOLUNIVERSE_DISPATCHER_GLOBAL_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatcher.GlobalWorkers = n
		}
	}
}

// envBool mirrors the teacher's lenient boolean env parsing.
func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// Validate checks for configuration combinations that cannot be served.
func (c *Config) Validate() error {
	if c.Dispatcher.GlobalWorkers <= 0 {
		return fmt.Errorf("dispatcher.global_workers must be positive, got %d", c.Dispatcher.GlobalWorkers)
	}
	if c.Cache.MemorySize <= 0 {
		return fmt.Errorf("cache.memory_size must be positive, got %d", c.Cache.MemorySize)
	}
	if c.RPC.Transport != "stdio" && c.RPC.Transport != "http" {
		return fmt.Errorf("rpc.transport must be %q or %q, got %q", "stdio", "http", c.RPC.Transport)
	}
	return nil
}
