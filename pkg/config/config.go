package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pario-ai/stylist/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all stylist configuration.
type Config struct {
	Listen      string             `yaml:"listen"`
	DBPath      string             `yaml:"db_path"`
	LLM         LLMConfig          `yaml:"llm"`
	Budget      BudgetConfig       `yaml:"budget"`
	Wardrobe    WardrobeConfig     `yaml:"wardrobe"`
	Prompt      PromptConfig       `yaml:"prompt"`
	Cache       CacheConfig        `yaml:"cache"`
	Audit       models.AuditConfig `yaml:"audit"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Log         LogConfig          `yaml:"log"`
	Maintenance MaintenanceConfig  `yaml:"maintenance"`
}

// LLMConfig defines the upstream language model and its billing parameters.
// Provider is "openai" (default) or "demo".
type LLMConfig struct {
	Provider    string                `yaml:"provider"`
	URL         string                `yaml:"url"`
	APIKey      string                `yaml:"api_key"`
	Model       string                `yaml:"model"`
	Temperature float64               `yaml:"temperature"`
	MaxTokens   int                   `yaml:"max_tokens"`
	Timeout     time.Duration         `yaml:"timeout"`
	MaxAttempts int                   `yaml:"max_attempts"`
	BackoffBase time.Duration         `yaml:"backoff_base"`
	BackoffMax  time.Duration         `yaml:"backoff_max"`
	Pricing     []models.ModelPricing `yaml:"pricing"`
}

// BudgetConfig controls spend and request limits. Zero request limits disable them.
type BudgetConfig struct {
	MonthlyCapUSD  float64 `yaml:"monthly_cap_usd"`
	DailyRequests  int64   `yaml:"daily_requests"`
	HourlyRequests int64   `yaml:"hourly_requests"`
}

// WardrobeConfig selects where wardrobe snapshots are read from.
// Source is "sqlite" (default) or "file".
type WardrobeConfig struct {
	Source string `yaml:"source"`
	DBPath string `yaml:"db_path"`
	File   string `yaml:"file"`
}

// PromptConfig controls prompt construction.
type PromptConfig struct {
	MaxItems int `yaml:"max_items"`
}

// CacheConfig controls the model response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MaintenanceConfig schedules background ledger and retention jobs.
type MaintenanceConfig struct {
	RolloverSchedule string `yaml:"rollover_schedule"`
	PruneSchedule    string `yaml:"prune_schedule"`
	RetentionDays    int    `yaml:"retention_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8000",
		DBPath: "stylist.db",
		LLM: LLMConfig{
			Provider:    "openai",
			URL:         "https://api.openai.com",
			Model:       "gpt-3.5-turbo",
			Temperature: 0.7,
			MaxTokens:   800,
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			BackoffBase: time.Second,
			BackoffMax:  8 * time.Second,
		},
		Budget: BudgetConfig{
			MonthlyCapUSD:  5.00,
			DailyRequests:  230,
			HourlyRequests: 10,
		},
		Wardrobe: WardrobeConfig{
			Source: "sqlite",
			DBPath: "wardrobe.db",
		},
		Prompt: PromptConfig{
			MaxItems: 60,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     time.Hour,
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			DBPath:        "stylist-audit.db",
			RetentionDays: 90,
			Include:       []string{"requests", "responses"},
			MaxBodySize:   8192,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "stylist",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Maintenance: MaintenanceConfig{
			RolloverSchedule: "0 0 1 * *",
			PruneSchedule:    "0 3 * * *",
			RetentionDays:    365,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks that the configuration can be used to start the service.
func (c *Config) Validate() error {
	var errs []error
	if c.Budget.MonthlyCapUSD < 0 {
		errs = append(errs, fmt.Errorf("budget.monthly_cap_usd must not be negative"))
	}
	if c.Budget.DailyRequests < 0 || c.Budget.HourlyRequests < 0 {
		errs = append(errs, fmt.Errorf("budget request limits must not be negative"))
	}
	switch c.LLM.Provider {
	case "openai", "demo":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.Provider == "openai" && c.LLM.URL == "" {
		errs = append(errs, fmt.Errorf("llm.url is required for provider openai"))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("llm.max_attempts must be at least 1"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive"))
	}
	switch c.Wardrobe.Source {
	case "sqlite":
		if c.Wardrobe.DBPath == "" {
			errs = append(errs, fmt.Errorf("wardrobe.db_path is required for source sqlite"))
		}
	case "file":
		if c.Wardrobe.File == "" {
			errs = append(errs, fmt.Errorf("wardrobe.file is required for source file"))
		}
	default:
		errs = append(errs, fmt.Errorf("wardrobe.source %q is not supported", c.Wardrobe.Source))
	}
	if c.Prompt.MaxItems < 1 {
		errs = append(errs, fmt.Errorf("prompt.max_items must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
