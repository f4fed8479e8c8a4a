package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// WarmComposition names one composition to prefetch at startup.
type WarmComposition struct {
	AdapterIDs []string `json:"adapter_ids" yaml:"adapter_ids" toml:"adapter_ids"`
	Strategy   string   `json:"strategy" yaml:"strategy" toml:"strategy"`
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	AdaptersDir string `json:"adapters_dir" yaml:"adapters_dir" toml:"adapters_dir"`

	CacheCapacity   int `json:"cache_capacity" yaml:"cache_capacity" toml:"cache_capacity"`
	CacheTTLSec     int `json:"cache_ttl_sec" yaml:"cache_ttl_sec" toml:"cache_ttl_sec"`
	BuildTimeoutSec int `json:"build_timeout_sec" yaml:"build_timeout_sec" toml:"build_timeout_sec"`
	QueueDepth      int `json:"queue_depth" yaml:"queue_depth" toml:"queue_depth"`
	Workers         int `json:"workers" yaml:"workers" toml:"workers"`

	// Engine selects the composition backend: "memory" or "llama".
	Engine        string `json:"engine" yaml:"engine" toml:"engine"`
	BaseModelPath string `json:"base_model_path" yaml:"base_model_path" toml:"base_model_path"`
	LlamaCtx      int    `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads  int    `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`

	// ExperimentsDB is the SQLite path for durable experiment state.
	ExperimentsDB string `json:"experiments_db" yaml:"experiments_db" toml:"experiments_db"`

	// Compositions to pre-warm at startup.
	WarmList []WarmComposition `json:"warm_list" yaml:"warm_list" toml:"warm_list"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
