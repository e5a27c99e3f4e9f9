package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"scentwatch/catalog-service/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "CATALOG_PORT", "CATALOG_GRPC_PORT", "DATABASE_URL", "REDIS_URL",
		"BUS_CHANNEL", "LOG_LEVEL", "BASE_URL", "PAGE_SOURCE", "BROWSER_URL", "PARSE_LIMIT", "MAX_PAGES",
		"CRAWL_INTERVAL_SECONDS", "PAGE_TIMEOUT_SECONDS", "FETCH_RPS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.BatchLimit != 10 || cfg.MaxPages != 100 {
		t.Errorf("BatchLimit/MaxPages = %d/%d, want 10/100", cfg.BatchLimit, cfg.MaxPages)
	}
	if cfg.CrawlInterval() != 600*time.Second {
		t.Errorf("CrawlInterval() = %v, want 10m", cfg.CrawlInterval())
	}
	if cfg.BusChannel != "perfumes.updates" {
		t.Errorf("BusChannel = %q", cfg.BusChannel)
	}
	if cfg.UsesPostgres() {
		t.Error("default database should be SQLite")
	}
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.RedisURL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARSE_LIMIT", "25")
	t.Setenv("MAX_PAGES", "7")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/catalog")
	t.Setenv("FETCH_RPS", "2.5")
	t.Setenv("PAGE_SOURCE", "browser")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.BatchLimit != 25 || cfg.MaxPages != 7 {
		t.Errorf("BatchLimit/MaxPages = %d/%d, want 25/7", cfg.BatchLimit, cfg.MaxPages)
	}
	if !cfg.UsesPostgres() {
		t.Error("postgres:// URL should select PostgreSQL")
	}
	if cfg.FetchRPS != 2.5 {
		t.Errorf("FetchRPS = %v, want 2.5", cfg.FetchRPS)
	}
	if cfg.PageSource != "browser" {
		t.Errorf("PageSource = %q, want browser", cfg.PageSource)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := "parse_limit: 5\nmax_pages: 3\nbus_channel: peers.perfumes\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_PAGES", "9")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.BatchLimit != 5 {
		t.Errorf("BatchLimit = %d, want 5 from file", cfg.BatchLimit)
	}
	if cfg.MaxPages != 9 {
		t.Errorf("MaxPages = %d, want 9 from env", cfg.MaxPages)
	}
	if cfg.BusChannel != "peers.perfumes" {
		t.Errorf("BusChannel = %q, want peers.perfumes", cfg.BusChannel)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"PARSE_LIMIT":            "0",
		"MAX_PAGES":              "abc",
		"CRAWL_INTERVAL_SECONDS": "-1",
		"FETCH_RPS":              "fast",
		"PAGE_SOURCE":            "carrier-pigeon",
	}
	for key, val := range cases {
		clearEnv(t)
		t.Setenv(key, val)
		if _, err := config.Load(); err == nil {
			t.Errorf("Load() with %s=%q expected error, got nil", key, val)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := config.Load(); err == nil {
		t.Error("Load() with missing CONFIG_FILE expected error, got nil")
	}
}
