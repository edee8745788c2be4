// Package config tests for configuration loading.
package config

import (
	"os"
	"testing"
)

func clearIndexerEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_HOST", "SERVER_PORT", "SERVER_MAX_CONNECTIONS",
		"DATABASE_PATH", "DATABASE_MAX_CONNECTIONS",
		"LIMITS_MAX_EVENT_SIZE", "LIMITS_MAX_FILTERS_PER_SUBSCRIPTION",
		"LIMITS_MAX_SUBSCRIPTIONS_PER_CONNECTION", "LIMITS_RATE_LIMIT_EVENTS_PER_SECOND",
		"INDEXER_RELAY_URLS", "INDEXER_INDEX_INTERVAL_SECONDS", "INDEXER_MAX_EVENTS_PER_INDEX",
		"INDEXER_ENABLE_PROFILE_INDEXING", "INDEXER_ENABLE_RELATIONSHIP_INDEXING",
		"TURSO_DATABASE_URL", "TURSO_AUTH_TOKEN",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	clearIndexerEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Limits.MaxEventSize != 16384 {
		t.Errorf("Limits.MaxEventSize = %d, want 16384", cfg.Limits.MaxEventSize)
	}
	if len(cfg.Indexer.RelayURLs) != 2 {
		t.Errorf("Indexer.RelayURLs length = %d, want 2", len(cfg.Indexer.RelayURLs))
	}
	if !cfg.Indexer.EnableProfileIndexing || !cfg.Indexer.EnableRelationshipIndexing {
		t.Error("indexing flags should default to enabled")
	}
	if cfg.MirrorEnabled() {
		t.Error("MirrorEnabled() = true with no TURSO_DATABASE_URL set")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearIndexerEnv(t)

	os.Setenv("SERVER_PORT", "9090")
	os.Setenv("LIMITS_MAX_EVENT_SIZE", "32768")
	os.Setenv("INDEXER_RELAY_URLS", "wss://a.example,wss://b.example")
	os.Setenv("INDEXER_ENABLE_RELATIONSHIP_INDEXING", "false")
	os.Setenv("TURSO_DATABASE_URL", "libsql://example.turso.io")
	os.Setenv("TURSO_AUTH_TOKEN", "secret-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Limits.MaxEventSize != 32768 {
		t.Errorf("Limits.MaxEventSize = %d, want 32768", cfg.Limits.MaxEventSize)
	}
	if len(cfg.Indexer.RelayURLs) != 2 || cfg.Indexer.RelayURLs[0] != "wss://a.example" {
		t.Errorf("Indexer.RelayURLs = %v, unexpected", cfg.Indexer.RelayURLs)
	}
	if cfg.Indexer.EnableRelationshipIndexing {
		t.Error("EnableRelationshipIndexing should be false")
	}
	if !cfg.MirrorEnabled() {
		t.Error("MirrorEnabled() = false with TURSO_DATABASE_URL set")
	}
	if cfg.TursoAuthToken != "secret-token" {
		t.Errorf("TursoAuthToken = %q, want secret-token", cfg.TursoAuthToken)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearIndexerEnv(t)

	dir := t.TempDir()
	path := dir + "/config.yaml"
	contents := "server:\n  host: 127.0.0.1\n  port: 9999\nindexer:\n  relay_urls:\n    - wss://only.example\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9999 {
		t.Errorf("Server = %+v, unexpected", cfg.Server)
	}
	if len(cfg.Indexer.RelayURLs) != 1 || cfg.Indexer.RelayURLs[0] != "wss://only.example" {
		t.Errorf("Indexer.RelayURLs = %v, unexpected", cfg.Indexer.RelayURLs)
	}
}

func TestLoadMissingYAMLFileIsNotFatal(t *testing.T) {
	clearIndexerEnv(t)

	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for missing optional file", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestAddrAndIndexInterval(t *testing.T) {
	cfg := defaults()
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 1234

	if cfg.Addr() != "localhost:1234" {
		t.Errorf("Addr() = %q, want localhost:1234", cfg.Addr())
	}
	if cfg.IndexInterval().Seconds() != 300 {
		t.Errorf("IndexInterval() = %v, want 300s", cfg.IndexInterval())
	}
}
