package fimlet

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	defaults "github.com/Paranoid-AF/fimlet/default"
)

// Config represents the user's fimlet configuration.
type Config struct {
	Version    int              `toml:"version" json:"version"`
	Generation GenerationConfig `toml:"generation" json:"generation"`
	Context    ContextConfig    `toml:"context" json:"context"`
	Debounce   DebounceConfig   `toml:"debounce" json:"debounce"`
	Cache      CacheConfig      `toml:"cache" json:"cache"`
}

// GenerationConfig holds settings for the inference server.
type GenerationConfig struct {
	BaseURL     string   `toml:"base_url" json:"base_url"`
	Model       string   `toml:"model" json:"model"`
	Temperature float64  `toml:"temperature" json:"temperature"`
	MaxTokens   int      `toml:"max_tokens" json:"max_tokens"`
	Stop        []string `toml:"stop" json:"stop"`
	// KeepAlive is forwarded to the server when warming the model (e.g. "30m").
	KeepAlive string `toml:"keep_alive" json:"keep_alive,omitempty"`
}

// ContextConfig bounds the prompt window around the cursor.
type ContextConfig struct {
	PrefixLines int `toml:"prefix_lines" json:"prefix_lines"`
	SuffixLines int `toml:"suffix_lines" json:"suffix_lines"`
}

// DebounceConfig holds the delay applied to automatic triggers.
type DebounceConfig struct {
	DelayMS int `toml:"delay_ms" json:"delay_ms"`
}

// CacheConfig controls the short-lived suggestion cache.
type CacheConfig struct {
	Enabled    bool `toml:"enabled" json:"enabled"`
	TTLSeconds int  `toml:"ttl_seconds" json:"ttl_seconds"`
}

// Delay returns the debounce delay as a duration.
func (d DebounceConfig) Delay() time.Duration {
	return time.Duration(d.DelayMS) * time.Millisecond
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ConfigDir returns the config directory path.
// Resolution order: $FIMLET_CONFIG_DIR > $XDG_CONFIG_HOME/fimlet > ~/.config/fimlet
func ConfigDir() string {
	if dir := os.Getenv("FIMLET_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "fimlet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "fimlet-config")
	}
	return filepath.Join(home, ".config", "fimlet")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// PromptPath returns the prompt template override path.
func PromptPath() string {
	return filepath.Join(ConfigDir(), "prompt.tmpl")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(string(defaults.DefaultConfigTOML), &cfg); err != nil {
		panic("fimlet: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
// The file is decoded over the defaults, so keys it leaves out keep their default values.
func LoadConfig() (*Config, error) {
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML config data over the embedded defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if ResolveModel(cfg) == "" {
		warnings = append(warnings, "generation.model is empty; completions are disabled")
	}
	if base := ResolveBaseURL(cfg); base == "" {
		warnings = append(warnings, "generation.base_url is empty; completions are disabled")
	} else if u, err := url.Parse(base); err != nil || u.Host == "" {
		warnings = append(warnings, "generation.base_url is not a valid URL: "+base)
	}
	if cfg.Generation.MaxTokens <= 0 {
		warnings = append(warnings, "generation.max_tokens should be positive; the server default applies")
	}
	if cfg.Context.PrefixLines < 0 {
		warnings = append(warnings, "context.prefix_lines is negative; treated as 0")
	}
	if cfg.Context.SuffixLines < 0 {
		warnings = append(warnings, "context.suffix_lines is negative; treated as 0")
	}
	if cfg.Debounce.DelayMS < 0 {
		warnings = append(warnings, "debounce.delay_ms is negative; treated as 0")
	}
	if cfg.Cache.Enabled && cfg.Cache.TTLSeconds <= 0 {
		warnings = append(warnings, "cache.ttl_seconds should be positive when the cache is enabled; cache disabled")
	}
	return warnings
}

// ResolveBaseURL returns the inference server base URL.
// Priority: $FIMLET_BASE_URL env > $OLLAMA_HOST env > config value.
func ResolveBaseURL(cfg *Config) string {
	if u := os.Getenv("FIMLET_BASE_URL"); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		return strings.TrimSuffix(host, "/")
	}
	if cfg != nil {
		return strings.TrimSuffix(cfg.Generation.BaseURL, "/")
	}
	return ""
}

// ResolveModel returns the generation model name.
// Priority: $FIMLET_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv("FIMLET_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Generation.Model
	}
	return ""
}
