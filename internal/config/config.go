// Package config handles loading indexer configuration from a YAML defaults
// file, a .env overlay, and environment variables, in that order of
// increasing precedence.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
}

// DatabaseConfig controls the optional local fallback path, reserved for a
// future embedded-mode persistence mirror; the Turso mirror itself is
// configured entirely through environment variables (see Config.TursoDatabaseURL).
type DatabaseConfig struct {
	Path           string `yaml:"path"`
	MaxConnections int    `yaml:"max_connections"`
}

// LimitsConfig bounds event size and subscription shape accepted from
// relays.
type LimitsConfig struct {
	MaxEventSize                  int `yaml:"max_event_size"`
	MaxFiltersPerSubscription     int `yaml:"max_filters_per_subscription"`
	MaxSubscriptionsPerConnection int `yaml:"max_subscriptions_per_connection"`
	RateLimitEventsPerSecond      int `yaml:"rate_limit_events_per_second"`
}

// IndexerConfig controls which relays are indexed and how.
type IndexerConfig struct {
	RelayURLs                  []string `yaml:"relay_urls"`
	IndexIntervalSeconds       int      `yaml:"index_interval_seconds"`
	MaxEventsPerIndex          int      `yaml:"max_events_per_index"`
	EnableProfileIndexing      bool     `yaml:"enable_profile_indexing"`
	EnableRelationshipIndexing bool     `yaml:"enable_relationship_indexing"`
}

// Config holds all indexer configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Limits   LimitsConfig   `yaml:"limits"`
	Indexer  IndexerConfig  `yaml:"indexer"`

	// TursoDatabaseURL and TursoAuthToken come only from the environment,
	// never from the YAML file, so credentials never land on disk as part
	// of a checked-in defaults file.
	TursoDatabaseURL string
	TursoAuthToken   string
}

// IndexInterval returns Indexer.IndexIntervalSeconds as a time.Duration.
func (c *Config) IndexInterval() time.Duration {
	return time.Duration(c.Indexer.IndexIntervalSeconds) * time.Second
}

// Addr returns the host:port the HTTP server should bind.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MirrorEnabled reports whether enough information is present to construct
// a Turso persistence mirror.
func (c *Config) MirrorEnabled() bool {
	return c.TursoDatabaseURL != ""
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MaxConnections: 1000,
		},
		Limits: LimitsConfig{
			MaxEventSize:                  16384,
			MaxFiltersPerSubscription:     10,
			MaxSubscriptionsPerConnection: 10,
			RateLimitEventsPerSecond:      100,
		},
		Indexer: IndexerConfig{
			RelayURLs:                  []string{"wss://relay.damus.io", "wss://nos.lol"},
			IndexIntervalSeconds:       300,
			MaxEventsPerIndex:          1000,
			EnableProfileIndexing:      true,
			EnableRelationshipIndexing: true,
		},
	}
}

// Load builds a Config from configPath (a YAML defaults file; pass "" to
// skip it), a .env overlay in the current directory, and environment
// variables, in that order of increasing precedence.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		if err := loadYAMLFile(configPath, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: loading %s: %w", configPath, err)
		}
	}

	if err := loadEnvFile(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	applyEnvOverrides(cfg)

	cfg.TursoDatabaseURL = os.Getenv("TURSO_DATABASE_URL")
	cfg.TursoAuthToken = os.Getenv("TURSO_AUTH_TOKEN")

	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("SERVER_PORT"); ok {
		cfg.Server.Port = v
	}
	if v, ok := envInt("SERVER_MAX_CONNECTIONS"); ok {
		cfg.Server.MaxConnections = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v, ok := envInt("DATABASE_MAX_CONNECTIONS"); ok {
		cfg.Database.MaxConnections = v
	}
	if v, ok := envInt("LIMITS_MAX_EVENT_SIZE"); ok {
		cfg.Limits.MaxEventSize = v
	}
	if v, ok := envInt("LIMITS_MAX_FILTERS_PER_SUBSCRIPTION"); ok {
		cfg.Limits.MaxFiltersPerSubscription = v
	}
	if v, ok := envInt("LIMITS_MAX_SUBSCRIPTIONS_PER_CONNECTION"); ok {
		cfg.Limits.MaxSubscriptionsPerConnection = v
	}
	if v, ok := envInt("LIMITS_RATE_LIMIT_EVENTS_PER_SECOND"); ok {
		cfg.Limits.RateLimitEventsPerSecond = v
	}
	if v := os.Getenv("INDEXER_RELAY_URLS"); v != "" {
		if parsed := parseList(v); len(parsed) > 0 {
			cfg.Indexer.RelayURLs = parsed
		}
	}
	if v, ok := envInt("INDEXER_INDEX_INTERVAL_SECONDS"); ok {
		cfg.Indexer.IndexIntervalSeconds = v
	}
	if v, ok := envInt("INDEXER_MAX_EVENTS_PER_INDEX"); ok {
		cfg.Indexer.MaxEventsPerIndex = v
	}
	if v, ok := envBool("INDEXER_ENABLE_PROFILE_INDEXING"); ok {
		cfg.Indexer.EnableProfileIndexing = v
	}
	if v, ok := envBool("INDEXER_ENABLE_RELATIONSHIP_INDEXING"); ok {
		cfg.Indexer.EnableRelationshipIndexing = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		if os.Getenv(key) == "" && value != "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}
