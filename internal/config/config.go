package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfiguration marks problems that must stop the application at startup:
// no enabled provider, unknown provider kind, missing credentials.
var ErrConfiguration = errors.New("configuration error")

const (
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
	DefaultCacheTTL       = time.Hour
	DefaultMaxTokens      = 4096
	DefaultTemperature    = 0.7
	DefaultMaxLogLength   = 200
	DefaultPersona        = "hrbp"
	DefaultLanguage       = "Chinese (Simplified)"
)

type Config struct {
	DefaultProvider string                     `mapstructure:"default-provider" yaml:"default-provider"`
	Providers       map[string]*ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Storage         StorageConfig              `mapstructure:"storage" yaml:"storage"`
	Analysis        AnalysisConfig             `mapstructure:"analysis" yaml:"analysis"`
	MaxLogLength    int                        `mapstructure:"max-log-length" yaml:"max-log-length"`
	Debug           bool                       `mapstructure:"debug" yaml:"debug"`
}

type ProviderConfig struct {
	Kind            string        `mapstructure:"kind" yaml:"kind"`
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	APIKey          string        `mapstructure:"api-key" yaml:"api-key,omitempty"`
	APIKeyFile      string        `mapstructure:"api-key-file" yaml:"api-key-file,omitempty"`
	APIKeyEnv       string        `mapstructure:"api-key-env" yaml:"api-key-env,omitempty"`
	BaseURL         string        `mapstructure:"base-url" yaml:"base-url,omitempty"`
	DefaultModel    string        `mapstructure:"default-model" yaml:"default-model"`
	Models          []ModelConfig `mapstructure:"models" yaml:"models"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries      int           `mapstructure:"max-retries" yaml:"max-retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry-base-delay" yaml:"retry-base-delay"`
	HonorRetryAfter bool          `mapstructure:"honor-retry-after" yaml:"honor-retry-after"`
	EmbeddingModel  string        `mapstructure:"embedding-model" yaml:"embedding-model,omitempty"`
}

type ModelConfig struct {
	Name        string         `mapstructure:"name" yaml:"name"`
	MaxTokens   int            `mapstructure:"max-tokens" yaml:"max-tokens"`
	// Temperature is nil when unset. Zero is a valid setting.
	Temperature *float64       `mapstructure:"temperature" yaml:"temperature,omitempty"`
	// Options are passed to the backend as extra request fields.
	Options     map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

type StorageConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Backend    string        `mapstructure:"backend" yaml:"backend"`
	CacheTTL   time.Duration `mapstructure:"cache-ttl" yaml:"cache-ttl"`
	Dir        string        `mapstructure:"dir" yaml:"dir,omitempty"`
	Path       string        `mapstructure:"path" yaml:"path,omitempty"`
	MaxEntries int           `mapstructure:"max-entries" yaml:"max-entries"`
}

type AnalysisConfig struct {
	DefaultPersona string                   `mapstructure:"default-persona" yaml:"default-persona"`
	Language       string                   `mapstructure:"language" yaml:"language"`
	Personas       map[string]PersonaConfig `mapstructure:"personas" yaml:"personas,omitempty"`
}

// PersonaConfig overrides (or adds) a persona. Empty fields keep the built-in value.
type PersonaConfig struct {
	Name         string `mapstructure:"name" yaml:"name,omitempty"`
	Description  string `mapstructure:"description" yaml:"description,omitempty"`
	SystemPrompt string `mapstructure:"system-prompt" yaml:"system-prompt,omitempty"`
}

// SetDefaults registers the built-in provider catalogue and storage settings.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("default-provider", "deepseek")
	v.SetDefault("max-log-length", DefaultMaxLogLength)

	v.SetDefault("providers.deepseek", map[string]any{
		"kind":          "deepseek",
		"enabled":       true,
		"api-key-env":   "DEEPSEEK_API_KEY",
		"base-url":      "https://api.deepseek.com",
		"default-model": "deepseek-chat",
		"models": []map[string]any{
			{"name": "deepseek-chat", "max-tokens": 4096, "temperature": 0.7},
			{"name": "deepseek-reasoner", "max-tokens": 16384, "temperature": 0.7},
		},
		"timeout":     "60s",
		"max-retries": DefaultMaxRetries,
	})
	v.SetDefault("providers.openai", map[string]any{
		"kind":          "openai",
		"enabled":       false,
		"api-key-env":   "OPENAI_API_KEY",
		"base-url":      "https://api.openai.com/v1",
		"default-model": "gpt-4o",
		"models": []map[string]any{
			{"name": "gpt-4o", "max-tokens": 16384, "temperature": 0.7},
			{"name": "gpt-4o-mini", "max-tokens": 16384, "temperature": 0.7},
		},
		"timeout":         "60s",
		"max-retries":     DefaultMaxRetries,
		"embedding-model": "text-embedding-3-small",
	})
	v.SetDefault("providers.anthropic", map[string]any{
		"kind":          "anthropic",
		"enabled":       false,
		"api-key-env":   "ANTHROPIC_API_KEY",
		"base-url":      "https://api.anthropic.com",
		"default-model": "claude-sonnet-4-20250514",
		"models": []map[string]any{
			{"name": "claude-sonnet-4-20250514", "max-tokens": 16384, "temperature": 0.7},
		},
		"timeout":     "60s",
		"max-retries": DefaultMaxRetries,
	})
	v.SetDefault("providers.gemini", map[string]any{
		"kind":          "gemini",
		"enabled":       false,
		"api-key-env":   "GEMINI_API_KEY",
		"default-model": "gemini-2.5-pro",
		"models": []map[string]any{
			{"name": "gemini-2.5-pro", "max-tokens": 16384, "temperature": 0.7},
			{"name": "gemini-2.5-flash", "max-tokens": 8192, "temperature": 0.7},
		},
		"timeout":         "60s",
		"max-retries":     DefaultMaxRetries,
		"embedding-model": "text-embedding-004",
	})

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.cache-ttl", DefaultCacheTTL)
	v.SetDefault("storage.dir", "cache")
	v.SetDefault("storage.path", "cache/storage_cache.db")
	v.SetDefault("storage.max-entries", 1000)

	v.SetDefault("analysis.default-persona", DefaultPersona)
	v.SetDefault("analysis.language", DefaultLanguage)
}

// envBindings maps environment variables onto configuration keys.
var envBindings = map[string]string{
	"providers.deepseek.api-key":        "DEEPSEEK_API_KEY",
	"providers.openai.api-key":          "OPENAI_API_KEY",
	"providers.openai.base-url":         "OPENAI_BASE_URL",
	"providers.openai.default-model":    "OPENAI_DEFAULT_MODEL",
	"providers.openai.enabled":          "OPENAI_ENABLED",
	"providers.anthropic.api-key":       "ANTHROPIC_API_KEY",
	"providers.anthropic.base-url":      "ANTHROPIC_BASE_URL",
	"providers.anthropic.default-model": "ANTHROPIC_DEFAULT_MODEL",
	"providers.anthropic.enabled":       "ANTHROPIC_ENABLED",
	"providers.gemini.api-key":          "GEMINI_API_KEY",
	"providers.gemini.api-key-file":     "GEMINI_API_KEY_FILE",
	"providers.gemini.enabled":          "GEMINI_ENABLED",
	"debug":                             "RESUME_ANALYZER_DEBUG",
}

// BindEnv wires the well-known environment variables into v.
func BindEnv(v *viper.Viper) error {
	keys := make([]string, 0, len(envBindings))
	for key := range envBindings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := v.BindEnv(key, envBindings[key]); err != nil {
			return fmt.Errorf("binding %s environment variable: %w", envBindings[key], err)
		}
	}
	return nil
}

// Load unmarshals v into a Config and fills zero values with defaults.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	for name, p := range c.Providers {
		if p == nil {
			delete(c.Providers, name)
			continue
		}
		p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
		if p.Kind == "" {
			p.Kind = name
		}
		if p.MaxRetries <= 0 {
			p.MaxRetries = DefaultMaxRetries
		}
		if p.RetryBaseDelay <= 0 {
			p.RetryBaseDelay = DefaultRetryBaseDelay
		}
		if p.DefaultModel == "" && len(p.Models) > 0 {
			p.DefaultModel = p.Models[0].Name
		}
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.CacheTTL < 0 {
		c.Storage.CacheTTL = 0
	}
	if c.MaxLogLength <= 0 {
		c.MaxLogLength = DefaultMaxLogLength
	}
	if strings.TrimSpace(c.Analysis.DefaultPersona) == "" {
		c.Analysis.DefaultPersona = DefaultPersona
	}
	if strings.TrimSpace(c.Analysis.Language) == "" {
		c.Analysis.Language = DefaultLanguage
	}
}

// Validate checks the configuration against the provider kinds and cache
// backends known to the binary.
func (c *Config) Validate(providerKinds, storageBackends []string) error {
	if len(c.EnabledProviders()) == 0 {
		return fmt.Errorf("%w: no enabled llm provider found, enable one under providers", ErrConfiguration)
	}

	for name, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		if !slices.Contains(providerKinds, p.Kind) {
			return fmt.Errorf("%w: provider %q has unknown kind %q (known: %s)",
				ErrConfiguration, name, p.Kind, strings.Join(providerKinds, ", "))
		}
		for _, m := range p.Models {
			if strings.TrimSpace(m.Name) == "" {
				return fmt.Errorf("%w: provider %q has a model without a name", ErrConfiguration, name)
			}
			if m.Temperature != nil && (*m.Temperature < 0 || *m.Temperature > 1) {
				return fmt.Errorf("%w: provider %q model %q temperature must be within [0,1]", ErrConfiguration, name, m.Name)
			}
		}
	}

	if c.Storage.Enabled && !slices.Contains(storageBackends, c.Storage.Backend) {
		return fmt.Errorf("%w: unknown storage backend %q (known: %s)",
			ErrConfiguration, c.Storage.Backend, strings.Join(storageBackends, ", "))
	}

	return nil
}

// EnabledProviders returns enabled provider names in stable order.
func (c *Config) EnabledProviders() []string {
	names := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ResolveProvider picks the provider to use. An explicit name must be enabled.
// Without one the configured default is used, falling back to the first enabled
// provider.
func (c *Config) ResolveProvider(name string) (string, *ProviderConfig, error) {
	name = strings.TrimSpace(name)
	if name != "" {
		p, ok := c.Providers[name]
		if !ok {
			return "", nil, fmt.Errorf("%w: provider %q is not configured", ErrConfiguration, name)
		}
		if !p.Enabled {
			return "", nil, fmt.Errorf("%w: provider %q is disabled", ErrConfiguration, name)
		}
		return name, p, nil
	}

	if p, ok := c.Providers[c.DefaultProvider]; ok && p.Enabled {
		return c.DefaultProvider, p, nil
	}

	enabled := c.EnabledProviders()
	if len(enabled) == 0 {
		return "", nil, fmt.Errorf("%w: no enabled llm provider found", ErrConfiguration)
	}
	return enabled[0], c.Providers[enabled[0]], nil
}

// Model returns the settings for model, falling back to the provider default
// model and then to the first configured model. ok is false when nothing matched.
func (p *ProviderConfig) Model(name string) (ModelConfig, bool) {
	if name == "" {
		name = p.DefaultModel
	}
	for _, m := range p.Models {
		if m.Name == name {
			return m, true
		}
	}
	if len(p.Models) > 0 {
		return p.Models[0], false
	}
	return ModelConfig{}, false
}
