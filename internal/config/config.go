// Package config loads and validates runtime configuration at startup.
// Fail-fast: an invalid value makes Load return an error and the process exits.
//
// Values come from three layers, later layers winning: built-in defaults,
// an optional YAML file named by CONFIG_FILE, and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultBaseURL = "https://www.letu.ru/browse/muzhchinam/muzhskaya-parfyumeriya"

// Config holds all runtime configuration for the catalog service.
type Config struct {
	Port        string `yaml:"port"`
	GRPCPort    string `yaml:"grpc_port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"` // empty = in-process loopback bus
	BusChannel  string `yaml:"bus_channel"`
	LogLevel    string `yaml:"log_level"`

	BaseURL      string  `yaml:"base_url"`
	BatchLimit   int     `yaml:"parse_limit"`
	MaxPages     int     `yaml:"max_pages"`
	PageSource   string  `yaml:"page_source"` // "http" or "browser"
	BrowserURL   string  `yaml:"browser_url"` // DevTools websocket; empty = launch local Chrome
	FetchRPS     float64 `yaml:"fetch_rps"`
	IntervalSecs int     `yaml:"crawl_interval_seconds"`
	TimeoutSecs  int     `yaml:"page_timeout_seconds"`
}

// CrawlInterval is the pause between two background crawl runs.
func (c *Config) CrawlInterval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// PageTimeout bounds a single listing page fetch.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// UsesPostgres reports whether DatabaseURL points at PostgreSQL rather than
// a SQLite file.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func defaults() Config {
	return Config{
		Port:         "8080",
		GRPCPort:     "9090",
		DatabaseURL:  "perfumes.db",
		BusChannel:   "perfumes.updates",
		LogLevel:     "info",
		BaseURL:      defaultBaseURL,
		BatchLimit:   10,
		MaxPages:     100,
		PageSource:   "http",
		FetchRPS:     1,
		IntervalSecs: 600,
		TimeoutSecs:  60,
	}
}

// Load reads CONFIG_FILE (if set) and environment variables and returns a
// validated Config.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse CONFIG_FILE %q: %w", path, err)
		}
	}

	setString(&cfg.Port, "CATALOG_PORT")
	setString(&cfg.GRPCPort, "CATALOG_GRPC_PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.BusChannel, "BUS_CHANNEL")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.BaseURL, "BASE_URL")
	setString(&cfg.PageSource, "PAGE_SOURCE")
	setString(&cfg.BrowserURL, "BROWSER_URL")

	for _, f := range []struct {
		key string
		dst *int
	}{
		{"PARSE_LIMIT", &cfg.BatchLimit},
		{"MAX_PAGES", &cfg.MaxPages},
		{"CRAWL_INTERVAL_SECONDS", &cfg.IntervalSecs},
		{"PAGE_TIMEOUT_SECONDS", &cfg.TimeoutSecs},
	} {
		if err := setInt(f.dst, f.key); err != nil {
			return nil, err
		}
	}

	if s := os.Getenv("FETCH_RPS"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("FETCH_RPS must be a number, got %q", s)
		}
		cfg.FetchRPS = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	if c.BusChannel == "" {
		return fmt.Errorf("BUS_CHANNEL must not be empty")
	}
	if c.BatchLimit < 1 {
		return fmt.Errorf("PARSE_LIMIT must be a positive integer, got %d", c.BatchLimit)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("MAX_PAGES must be a positive integer, got %d", c.MaxPages)
	}
	if c.IntervalSecs < 1 {
		return fmt.Errorf("CRAWL_INTERVAL_SECONDS must be a positive integer, got %d", c.IntervalSecs)
	}
	if c.TimeoutSecs < 1 {
		return fmt.Errorf("PAGE_TIMEOUT_SECONDS must be a positive integer, got %d", c.TimeoutSecs)
	}
	if c.FetchRPS < 0 {
		return fmt.Errorf("FETCH_RPS must not be negative, got %v", c.FetchRPS)
	}
	switch c.PageSource {
	case "http", "browser":
	default:
		return fmt.Errorf("PAGE_SOURCE must be \"http\" or \"browser\", got %q", c.PageSource)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", key, s)
	}
	*dst = v
	return nil
}
