package llm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"atlas-api/pkg/confkit"
)

// Supported reasoning backends.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	defaultProvider     = ProviderGemini
	defaultOpenAIURL    = "https://api.openai.com/v1"
	defaultGeminiModel  = "gemini-2.0-flash"
	defaultOpenAIModel  = "gpt-4o-mini"
	defaultTimeout      = 60 * time.Second
	defaultMaxRetries   = 3
	defaultLogLevel     = "info"
	envAPIKey           = "ATLAS_LLM_API_KEY"
	envProvider         = "ATLAS_LLM_PROVIDER"
	envBaseURL          = "ATLAS_LLM_BASE_URL"
	envDefaultModel     = "ATLAS_LLM_MODEL"
	envTimeout          = "ATLAS_LLM_TIMEOUT"
	envMaxRetries       = "ATLAS_LLM_MAX_RETRIES"
	legacyGeminiKeyName = "GEMINI_API_KEY"
)

// Config holds runtime settings for the reasoning backend.
type Config struct {
	Provider     string                 `yaml:"provider"`
	BaseURL      string                 `yaml:"base_url"`
	APIKey       string                 `yaml:"api_key"`
	DefaultModel string                 `yaml:"default_model"`
	Timeout      time.Duration          `yaml:"-"`
	MaxRetries   int                    `yaml:"max_retries"`
	LogLevel     string                 `yaml:"log_level"`
	Models       map[string]ModelConfig `yaml:"models"`

	timeoutRaw string
}

// ModelConfig defines defaults for a particular model alias.
type ModelConfig struct {
	ModelName           string   `yaml:"model_name"`
	Temperature         *float64 `yaml:"temperature,omitempty"`
	MaxCompletionTokens *int     `yaml:"max_completion_tokens,omitempty"`
	TopP                *float64 `yaml:"top_p,omitempty"`
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := confkit.Open("llm", path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads etc/llm.yaml from the project root and panics on error.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/llm.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from a reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	var raw struct {
		Provider     string                 `yaml:"provider"`
		BaseURL      string                 `yaml:"base_url"`
		APIKey       string                 `yaml:"api_key"`
		DefaultModel string                 `yaml:"default_model"`
		Timeout      string                 `yaml:"timeout"`
		MaxRetries   int                    `yaml:"max_retries"`
		LogLevel     string                 `yaml:"log_level"`
		Models       map[string]ModelConfig `yaml:"models"`
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read llm config: %w", err)
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal llm config: %w", err)
	}

	cfg := &Config{
		Provider:     raw.Provider,
		BaseURL:      raw.BaseURL,
		APIKey:       raw.APIKey,
		DefaultModel: raw.DefaultModel,
		MaxRetries:   raw.MaxRetries,
		LogLevel:     raw.LogLevel,
		Models:       raw.Models,
		timeoutRaw:   raw.Timeout,
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err := cfg.parseTimeout(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.BaseURL) == "" {
			return errors.New("llm config: base_url is required for openai")
		}
	case ProviderGemini:
	default:
		return fmt.Errorf("llm config: unsupported provider %q", c.Provider)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("llm config: api_key is required")
	}
	if strings.TrimSpace(c.DefaultModel) == "" {
		return errors.New("llm config: default_model is required")
	}
	if c.Timeout <= 0 {
		return errors.New("llm config: timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("llm config: max_retries cannot be negative")
	}
	return nil
}

// Model returns the configuration for the given model alias.
func (c *Config) Model(name string) (ModelConfig, bool) {
	if c.Models == nil {
		return ModelConfig{}, false
	}
	modelCfg, ok := c.Models[name]
	return modelCfg, ok
}

// ResolveModel maps an alias to the provider model id and its defaults. An
// unknown alias is used verbatim.
func (c *Config) ResolveModel(alias string) (string, ModelConfig) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		alias = c.DefaultModel
	}
	modelCfg, ok := c.Model(alias)
	if !ok || strings.TrimSpace(modelCfg.ModelName) == "" {
		modelCfg.ModelName = alias
	}
	return modelCfg.ModelName, modelCfg
}

// Clone returns a shallow copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Models != nil {
		cp.Models = make(map[string]ModelConfig, len(c.Models))
		for k, v := range c.Models {
			cp.Models[k] = v
		}
	}
	return &cp
}

func (c *Config) applyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = defaultProvider
	}
	if c.Provider == ProviderOpenAI && strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = defaultOpenAIURL
	}
	if strings.TrimSpace(c.DefaultModel) == "" {
		c.DefaultModel = defaultGeminiModel
		if c.Provider == ProviderOpenAI {
			c.DefaultModel = defaultOpenAIModel
		}
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

func (c *Config) applyEnvOverrides() {
	c.Provider = expandAndOverride(c.Provider, envProvider)
	c.BaseURL = expandAndOverride(c.BaseURL, envBaseURL)
	c.APIKey = expandAndOverride(c.APIKey, envAPIKey)
	if c.APIKey == "" {
		c.APIKey = os.Getenv(legacyGeminiKeyName)
	}
	c.DefaultModel = expandAndOverride(c.DefaultModel, envDefaultModel)

	if raw := os.Getenv(envTimeout); raw != "" {
		c.timeoutRaw = raw
	} else {
		c.timeoutRaw = os.ExpandEnv(c.timeoutRaw)
	}

	if raw := os.Getenv(envMaxRetries); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			c.MaxRetries = v
		}
	}
}

func (c *Config) parseTimeout() error {
	if strings.TrimSpace(c.timeoutRaw) == "" {
		c.Timeout = defaultTimeout
		return nil
	}

	d, err := time.ParseDuration(c.timeoutRaw)
	if err != nil {
		return fmt.Errorf("llm config: invalid timeout %q: %w", c.timeoutRaw, err)
	}
	if d <= 0 {
		return fmt.Errorf("llm config: timeout must be positive, got %s", d)
	}
	c.Timeout = d
	return nil
}

func expandAndOverride(current, envKey string) string {
	current = strings.TrimSpace(os.ExpandEnv(current))
	if envVal := os.Getenv(envKey); envVal != "" {
		return envVal
	}
	return current
}
