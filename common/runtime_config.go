package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ProviderAdapterConfig configures one backend adapter instance.
type ProviderAdapterConfig struct {
	BaseURL      string            `koanf:"base_url,omitempty"`
	APIKey       string            `koanf:"api_key,omitempty"`
	DefaultModel string            `koanf:"default_model,omitempty"`
	ExtraHeaders map[string]string `koanf:"extra_headers,omitempty"`
	Organization string            `koanf:"organization,omitempty"`
}

// RetryLayerConfig mirrors middleware.RetryConfig's recognized options.
type RetryLayerConfig struct {
	MaxAttempts     int     `koanf:"max_attempts,omitempty"`
	InitialDelayMS  int     `koanf:"initial_delay_ms,omitempty"`
	MaxDelayMS      int     `koanf:"max_delay_ms,omitempty"`
	ExponentialBase float64 `koanf:"exponential_base,omitempty"`
	JitterFraction  float64 `koanf:"jitter_fraction,omitempty"`
}

// RateLimitLayerConfig mirrors middleware.RateLimitConfig's recognized
// options.
type RateLimitLayerConfig struct {
	Capacity        int     `koanf:"capacity,omitempty"`
	RefillPerPeriod float64 `koanf:"refill_per_period,omitempty"`
	PeriodMS        int     `koanf:"period_ms,omitempty"`
}

// CacheLayerConfig mirrors middleware.CacheConfig's recognized options.
type CacheLayerConfig struct {
	Capacity int `koanf:"capacity,omitempty"`
	TTLMS    int `koanf:"ttl_ms,omitempty"`
}

// LoggingLayerConfig mirrors middleware.LoggingConfig's recognized options.
type LoggingLayerConfig struct {
	Level          string `koanf:"level,omitempty"`
	IncludeContent bool   `koanf:"include_content,omitempty"`
}

// ContextManagerConfig mirrors contextmgr's recognized options.
type ContextManagerConfig struct {
	MaxTokens           int    `koanf:"max_tokens,omitempty"`
	ReserveOutputTokens int    `koanf:"reserve_output_tokens,omitempty"`
	Strategy            string `koanf:"strategy,omitempty"` // "sliding_window", "importance", "summarization"
}

// StateStoreConfig selects and configures the state.Store implementation.
// Kind is "memory" (no other fields needed) or "file" (Directory required).
type StateStoreConfig struct {
	Kind      string `koanf:"kind,omitempty"`
	Directory string `koanf:"directory,omitempty"`
}

// RuntimeConfig is the full enumerated configuration surface (spec §6.4):
// one entry per named provider adapter, plus the shared layer and
// subsystem settings.
type RuntimeConfig struct {
	Providers      map[string]ProviderAdapterConfig `koanf:"providers,omitempty"`
	Retry          RetryLayerConfig                 `koanf:"retry,omitempty"`
	RateLimit      RateLimitLayerConfig             `koanf:"rate_limit,omitempty"`
	Cache          CacheLayerConfig                 `koanf:"cache,omitempty"`
	Logging        LoggingLayerConfig               `koanf:"logging,omitempty"`
	ContextManager ContextManagerConfig             `koanf:"context_manager,omitempty"`
	StateStore     StateStoreConfig                 `koanf:"state_store,omitempty"`
}

func (c RuntimeConfig) Validate() error {
	for name, p := range c.Providers {
		if p.BaseURL == "" && p.APIKey == "" && p.DefaultModel == "" {
			return fmt.Errorf("provider %s: at least one of base_url, api_key, default_model must be set", name)
		}
	}
	switch c.StateStore.Kind {
	case "", "memory":
	case "file":
		if c.StateStore.Directory == "" {
			return fmt.Errorf("state_store: directory is required when kind is \"file\"")
		}
	default:
		return fmt.Errorf("state_store: unknown kind %q", c.StateStore.Kind)
	}
	return nil
}

// parserForExtension returns the koanf parser matching a config file's
// extension, or nil if the extension is unsupported.
func parserForExtension(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return yaml.Parser()
	case ".toml":
		return toml.Parser()
	case ".json":
		return json.Parser()
	default:
		return nil
	}
}

// LoadRuntimeConfig loads a RuntimeConfig from configPath, whose format is
// selected by file extension (.yaml/.yml, .toml, .json). A missing file
// yields the zero RuntimeConfig, not an error.
func LoadRuntimeConfig(configPath string) (RuntimeConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return RuntimeConfig{}, nil
	}

	parser := parserForExtension(configPath)
	if parser == nil {
		return RuntimeConfig{}, fmt.Errorf("unsupported config file extension: %s", configPath)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), parser); err != nil {
		return RuntimeConfig{}, fmt.Errorf("load config: %w", err)
	}

	var cfg RuntimeConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DiscoverConfigFile searches dir for the first candidate (in precedence
// order) that exists, returning its path and every candidate found.
func DiscoverConfigFile(dir string, candidates []string) (chosen string, allFound []string) {
	for _, candidate := range candidates {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			allFound = append(allFound, path)
			if chosen == "" {
				chosen = path
			}
		}
	}
	return chosen, allFound
}

// DefaultConfigCandidates is the precedence-ordered list of recognized
// runtime config file names.
var DefaultConfigCandidates = []string{"llmrt.yaml", "llmrt.yml", "llmrt.toml", "llmrt.json"}
