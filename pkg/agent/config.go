package agent

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"atlas-api/pkg/confkit"
)

const (
	defaultReasoningTimeout = 60 * time.Second
	defaultRecordTimeout    = 5 * time.Second
	defaultEvidenceURL      = "https://finance.yahoo.com/quote/%s"
	defaultDataSource       = "yahoo_finance"
)

// Config controls orchestration behaviour.
type Config struct {
	DataSource  string `yaml:"data_source"`
	EvidenceURL string `yaml:"evidence_url"`

	Prompts PromptPaths `yaml:"prompts"`

	ReasoningTimeout time.Duration `yaml:"-"`
	RecordTimeout    time.Duration `yaml:"-"`

	ReasoningTimeoutRaw string `yaml:"reasoning_timeout"`
	RecordTimeoutRaw    string `yaml:"record_timeout"`
}

// PromptPaths optionally replaces the built-in prompt templates.
type PromptPaths struct {
	System  string `yaml:"system"`
	Priming string `yaml:"priming"`
	Context string `yaml:"context"`
}

// DefaultConfig returns a configuration using built-in prompts.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	_ = cfg.parseDurations()
	return cfg
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := confkit.Open("agent", path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg, err := LoadConfigFromReader(file)
	if err != nil {
		return nil, err
	}
	cfg.resolvePrompts(confkit.BaseDir(path))
	return cfg, nil
}

// MustLoad reads agent configuration from the default project location and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/agent.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from a reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read agent config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal agent config: %w", err)
	}
	cfg.expandFields()
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandFields() {
	c.DataSource = strings.TrimSpace(os.ExpandEnv(c.DataSource))
	c.EvidenceURL = strings.TrimSpace(os.ExpandEnv(c.EvidenceURL))
	c.Prompts.System = strings.TrimSpace(os.ExpandEnv(c.Prompts.System))
	c.Prompts.Priming = strings.TrimSpace(os.ExpandEnv(c.Prompts.Priming))
	c.Prompts.Context = strings.TrimSpace(os.ExpandEnv(c.Prompts.Context))
}

// resolvePrompts anchors relative prompt paths at base.
func (c *Config) resolvePrompts(base string) {
	for _, p := range []*string{&c.Prompts.System, &c.Prompts.Priming, &c.Prompts.Context} {
		if *p != "" {
			*p = confkit.ResolvePath(base, *p)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.DataSource == "" {
		c.DataSource = defaultDataSource
	}
	if c.EvidenceURL == "" {
		c.EvidenceURL = defaultEvidenceURL
	}
	if strings.TrimSpace(c.ReasoningTimeoutRaw) == "" {
		c.ReasoningTimeoutRaw = defaultReasoningTimeout.String()
	}
	if strings.TrimSpace(c.RecordTimeoutRaw) == "" {
		c.RecordTimeoutRaw = defaultRecordTimeout.String()
	}
}

func (c *Config) parseDurations() error {
	reasoning, err := time.ParseDuration(c.ReasoningTimeoutRaw)
	if err != nil {
		return fmt.Errorf("agent config: invalid reasoning_timeout %q: %w", c.ReasoningTimeoutRaw, err)
	}
	if reasoning <= 0 {
		return fmt.Errorf("agent config: reasoning_timeout must be positive, got %s", reasoning)
	}
	record, err := time.ParseDuration(c.RecordTimeoutRaw)
	if err != nil {
		return fmt.Errorf("agent config: invalid record_timeout %q: %w", c.RecordTimeoutRaw, err)
	}
	if record <= 0 {
		return fmt.Errorf("agent config: record_timeout must be positive, got %s", record)
	}
	c.ReasoningTimeout = reasoning
	c.RecordTimeout = record
	return nil
}

// Validate ensures configuration sanity.
func (c *Config) Validate() error {
	if strings.Count(c.EvidenceURL, "%s") != 1 {
		return errors.New("agent config: evidence_url must contain exactly one %s")
	}
	if c.ReasoningTimeout <= 0 {
		return errors.New("agent config: reasoning_timeout must be positive")
	}
	return nil
}

// withDefaults returns a copy of c with zero fields filled in.
func (c *Config) withDefaults() *Config {
	out := *c
	if out.DataSource == "" {
		out.DataSource = defaultDataSource
	}
	if out.EvidenceURL == "" {
		out.EvidenceURL = defaultEvidenceURL
	}
	if out.ReasoningTimeout <= 0 {
		out.ReasoningTimeout = defaultReasoningTimeout
	}
	if out.RecordTimeout <= 0 {
		out.RecordTimeout = defaultRecordTimeout
	}
	return &out
}

// EvidenceLink returns the quote page for symbol.
func (c *Config) EvidenceLink(symbol string) string {
	return fmt.Sprintf(c.EvidenceURL, symbol)
}
