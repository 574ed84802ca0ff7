// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// defaultSearchTerms is the fixed query-term set used to locate policy files.
// Overridable via the SEARCH_TERMS environment variable.
var defaultSearchTerms = []string{
	"filename:.cursorule",
	"filename:cursorules",
	"filename:claude.md",
	"filename:AI_RULES.md",
	"filename:AI_POLICY.md",
	"filename:CODE_OF_CONDUCT.md",
	"filename:CONTRIBUTING.md",
}

// Config holds all configuration for the application.
type Config struct {
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DBURL             string        `mapstructure:"DB_URL"`
	HTTPAddr          string        `mapstructure:"HTTP_ADDR"`
	GithubToken       string        `mapstructure:"GITHUB_TOKEN"`
	StarThreshold     int           `mapstructure:"GITHUB_STAR_THRESHOLD"`
	ResultLimit       int           `mapstructure:"GITHUB_RESULT_LIMIT"`
	SearchTerms       []string      `mapstructure:"SEARCH_TERMS"`
	UpdateInterval    time.Duration `mapstructure:"CRAWL_UPDATE_INTERVAL"`
	DiscoveryInterval time.Duration `mapstructure:"CRAWL_DISCOVERY_INTERVAL"`
	CrawlCooldown     time.Duration `mapstructure:"CRAWL_COOLDOWN"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("GITHUB_STAR_THRESHOLD", 50)
	viper.SetDefault("GITHUB_RESULT_LIMIT", 100)
	viper.SetDefault("SEARCH_TERMS", defaultSearchTerms)
	viper.SetDefault("CRAWL_UPDATE_INTERVAL", "2m")
	viper.SetDefault("CRAWL_DISCOVERY_INTERVAL", "24h")
	viper.SetDefault("CRAWL_COOLDOWN", "60s")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if len(cfg.SearchTerms) == 0 {
		return nil, errors.New("SEARCH_TERMS must contain at least one query term")
	}
	if cfg.StarThreshold < 0 {
		return nil, errors.New("GITHUB_STAR_THRESHOLD must not be negative")
	}
	if cfg.ResultLimit <= 0 {
		return nil, errors.New("GITHUB_RESULT_LIMIT must be positive")
	}

	return &cfg, nil
}
