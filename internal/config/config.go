package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// MicroblogConfig configures the keyword/hashtag/account feed provider.
type MicroblogConfig struct {
	Token   string `envconfig:"MICROBLOG_API_TOKEN" yaml:"token"`
	BaseURL string `envconfig:"MICROBLOG_BASE_URL" default:"https://api.x.com/2" yaml:"base_url"`
}

// ForumConfig configures the subreddit/user/keyword feed provider. The forum
// API is keyless but requires a descriptive User-Agent.
type ForumConfig struct {
	UserAgent string `envconfig:"FORUM_USER_AGENT" default:"streamlens/1.0" yaml:"user_agent"`
	BaseURL   string `envconfig:"FORUM_BASE_URL" default:"https://www.reddit.com" yaml:"base_url"`
}

// NewswireConfig configures the URL/news article provider.
type NewswireConfig struct {
	APIKey  string `envconfig:"NEWSWIRE_API_KEY" yaml:"api_key"`
	BaseURL string `envconfig:"NEWSWIRE_BASE_URL" default:"https://newsapi.org/v2" yaml:"base_url"`
}

// Config is the full application configuration. Values come from environment
// variables (prefix-free, loaded after .env) with an optional YAML overlay
// that wins over both.
type Config struct {
	Owner     string `envconfig:"STREAMLENS_OWNER" default:"default" yaml:"owner"`
	CachePath string `envconfig:"STREAMLENS_CACHE_PATH" yaml:"cache_path"`

	// Shared-quota admission control across all provider calls.
	RateLimit  int           `envconfig:"STREAMLENS_RATE_LIMIT" default:"30" yaml:"rate_limit"`
	RateWindow time.Duration `envconfig:"STREAMLENS_RATE_WINDOW" default:"60s" yaml:"rate_window"`

	// Enrichment bounds and the politeness interval between sequential
	// enrichment calls.
	Politeness         time.Duration `envconfig:"STREAMLENS_POLITENESS_INTERVAL" default:"2s" yaml:"politeness_interval"`
	MaxEnrichItems     int           `envconfig:"STREAMLENS_MAX_ENRICH_ITEMS" default:"5" yaml:"max_enrich_items"`
	MaxSubItemsPerItem int           `envconfig:"STREAMLENS_MAX_SUB_ITEMS" default:"10" yaml:"max_sub_items"`

	// Persistence windows.
	ParamsTTL       time.Duration `envconfig:"STREAMLENS_PARAMS_TTL" default:"24h" yaml:"params_ttl"`
	ResultTTL       time.Duration `envconfig:"STREAMLENS_RESULT_TTL" default:"24h" yaml:"result_ttl"`
	ProgressTTL     time.Duration `envconfig:"STREAMLENS_PROGRESS_TTL" default:"1h" yaml:"progress_ttl"`
	CompletionGrace time.Duration `envconfig:"STREAMLENS_COMPLETION_GRACE" default:"5m" yaml:"completion_grace"`

	Microblog MicroblogConfig `yaml:"microblog"`
	Forum     ForumConfig     `yaml:"forum"`
	Newswire  NewswireConfig  `yaml:"newswire"`
}

// Load builds the configuration from the environment and, when path is
// non-empty, overlays the YAML file at path on top.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if cfg.CachePath == "" {
		cfg.CachePath = defaultCachePath()
	}
	return &cfg, nil
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".streamlens", "cache.db")
	}
	return filepath.Join(home, ".streamlens", "cache.db")
}
