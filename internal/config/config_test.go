package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Ingest.LockName != "merch_ingest_pass" {
		t.Fatalf("lock name = %q", cfg.Ingest.LockName)
	}
	if cfg.Ingest.LockTTL().Minutes() != 30 {
		t.Fatalf("lock ttl = %v", cfg.Ingest.LockTTL())
	}
	if cfg.Scheduler.Location() == nil {
		t.Fatal("scheduler location must resolve")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
database:
  dsn: postgres://file:file@db/merch
ingest:
  articleDelayMillis: 250
  extraStopWords: [loungefly]
fetch:
  blockedDomains: [blocked.example.com]
logging:
  level: debug
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env:env@db/merch")
	t.Setenv(openAIAPIKeyEnv, "sk-test")
	t.Setenv(storageEndpointEnv, "https://objects.internal:9000")

	cfg := Load()

	// Env wins over file, file wins over defaults.
	if cfg.Database.DSN != "postgres://env:env@db/merch" {
		t.Fatalf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Extractor.APIKey != "sk-test" {
		t.Fatalf("api key = %q", cfg.Extractor.APIKey)
	}
	if cfg.Storage.Endpoint != "https://objects.internal:9000" {
		t.Fatalf("storage endpoint = %q", cfg.Storage.Endpoint)
	}
	if cfg.Ingest.ArticleDelayMillis != 250 {
		t.Fatalf("article delay = %d", cfg.Ingest.ArticleDelayMillis)
	}
	if len(cfg.Ingest.ExtraStopWords) != 1 || cfg.Ingest.ExtraStopWords[0] != "loungefly" {
		t.Fatalf("stop words = %v", cfg.Ingest.ExtraStopWords)
	}
	if len(cfg.Fetch.BlockedDomains) != 1 {
		t.Fatalf("blocked domains = %v", cfg.Fetch.BlockedDomains)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	// Unset file fields keep defaults.
	if cfg.Ingest.SourceDelayMillis != 5000 {
		t.Fatalf("source delay = %d", cfg.Ingest.SourceDelayMillis)
	}
}

func TestBadTimezoneFallsBack(t *testing.T) {
	cfg := defaultConfig()
	cfg.Scheduler.Timezone = "Not/AZone"
	cfg.bindTimezone()
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("location = %s", cfg.Scheduler.Location())
	}
}
