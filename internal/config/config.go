package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider kinds understood by services.BuildRegistry.
const (
	KindOpenAI    = "openai"
	KindVenice    = "venice"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
	KindOllama    = "ollama"
	KindMock      = "mock"
)

const DefaultConfigFile = "laissez.yaml"

// ProviderConfig describes one named judgment provider.
type ProviderConfig struct {
	Kind      string `yaml:"kind"`
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"` // read when APIKey is empty
	Model     string `yaml:"model,omitempty"`
}

type EngineConfig struct {
	MaxTurns         int           `yaml:"max_turns"`
	Concurrency      int           `yaml:"concurrency"`
	MaxAttempts      int           `yaml:"max_attempts"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	RetryBase        time.Duration `yaml:"retry_base"`
	StepThroughTurns bool          `yaml:"step_through_turns"`
	Debug            bool          `yaml:"debug"`
}

type Config struct {
	Environment     string                    `yaml:"environment"`
	Port            string                    `yaml:"port"`
	LogLevelName    string                    `yaml:"log_level"`
	LogLevel        slog.Level                `yaml:"-"`
	RedisURL        string                    `yaml:"redis_url"`
	DataDir         string                    `yaml:"data_dir"`
	SaveTTL         time.Duration             `yaml:"save_ttl"`
	HistoryDSN      string                    `yaml:"history_dsn"`
	AuditDir        string                    `yaml:"audit_dir"`
	DefaultProvider string                    `yaml:"default_provider"`
	ScorerProvider  string                    `yaml:"scorer_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
	Engine          EngineConfig              `yaml:"engine"`
}

func defaults() *Config {
	return &Config{
		Environment:  "development",
		Port:         "8080",
		LogLevelName: "info",
		DataDir:      "./data",
		SaveTTL:      24 * time.Hour,
		Engine: EngineConfig{
			MaxTurns:    10,
			Concurrency: 4,
			MaxAttempts: 3,
			CallTimeout: 60 * time.Second,
			RetryBase:   500 * time.Millisecond,
		},
	}
}

// Load reads the optional YAML file named by LAISSEZ_CONFIG (default
// laissez.yaml) and then applies environment overrides.
func Load() (*Config, error) {
	path, explicit := os.LookupEnv("LAISSEZ_CONFIG")
	if !explicit {
		path = DefaultConfigFile
	}
	cfg := defaults()
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads path without consulting the environment for the path.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("loading config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.Port = getEnv("PORT", c.Port)
	c.LogLevelName = getEnv("LOG_LEVEL", c.LogLevelName)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.HistoryDSN = getEnv("HISTORY_DSN", c.HistoryDSN)
	c.AuditDir = getEnv("AUDIT_DIR", c.AuditDir)
	c.DefaultProvider = getEnv("DEFAULT_PROVIDER", c.DefaultProvider)
	c.ScorerProvider = getEnv("SCORER_PROVIDER", c.ScorerProvider)
	c.Engine.MaxTurns = getEnvInt("MAX_TURNS", c.Engine.MaxTurns)
	c.Engine.Concurrency = getEnvInt("CONCURRENCY", c.Engine.Concurrency)
	if getEnv("DEBUG", "") == "true" {
		c.Engine.Debug = true
	}

	if len(c.Providers) > 0 {
		return
	}
	// No providers configured: derive them from well-known API keys.
	c.Providers = map[string]ProviderConfig{}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Providers[KindOpenAI] = ProviderConfig{Kind: KindOpenAI, APIKey: key, Model: getEnv("OPENAI_MODEL", "gpt-4o-mini")}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Providers[KindAnthropic] = ProviderConfig{Kind: KindAnthropic, APIKey: key, Model: getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest")}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Providers[KindGemini] = ProviderConfig{Kind: KindGemini, APIKey: key, Model: getEnv("GEMINI_MODEL", "gemini-2.5-flash")}
	}
	if len(c.Providers) == 0 {
		c.Providers[KindMock] = ProviderConfig{Kind: KindMock}
	}
}

// finish resolves derived fields and validates.
func (c *Config) finish() error {
	c.LogLevel = parseLogLevel(c.LogLevelName)
	if c.Engine.Debug {
		c.LogLevel = slog.LevelDebug
	}

	for name, p := range c.Providers {
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
			c.Providers[name] = p
		}
	}

	if c.DefaultProvider == "" {
		c.DefaultProvider = c.firstProvider()
	}
	if c.ScorerProvider == "" {
		c.ScorerProvider = c.DefaultProvider
	}
	return c.Validate()
}

func (c *Config) firstProvider() string {
	names := c.ProviderNames()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// ProviderNames returns configured provider names, sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for n := range c.Providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	for name, p := range c.Providers {
		switch p.Kind {
		case KindOpenAI, KindVenice, KindAnthropic, KindGemini:
			if p.APIKey == "" {
				return fmt.Errorf("provider %s: api key is required", name)
			}
		case KindOllama, KindMock:
		default:
			return fmt.Errorf("provider %s: unknown kind %q", name, p.Kind)
		}
	}
	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		return fmt.Errorf("default provider %q is not configured", c.DefaultProvider)
	}
	if _, ok := c.Providers[c.ScorerProvider]; !ok {
		return fmt.Errorf("scorer provider %q is not configured", c.ScorerProvider)
	}
	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("engine concurrency must be at least 1")
	}
	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("engine max_attempts must be at least 1")
	}
	if c.Engine.MaxTurns < 0 {
		return fmt.Errorf("engine max_turns cannot be negative")
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
