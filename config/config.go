// Package config loads chart-server configuration from environment
// variables, with an optional .env file and a YAML indicator preset file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"chartengine/internal/indicator"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Upstream market-data API credentials
	UpstreamBaseURL    string
	UpstreamClientCode string
	UpstreamPassword   string
	UpstreamTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	ListenAddr    string
	MetricsAddr   string

	// Behavior
	PageSize     int           // bars per historical page
	PageCacheTTL time.Duration // freshness of the most-recent cached page
	PresetFile   string        // optional YAML indicator presets

	// Offline mode: serve from the page cache and the realtime feed only,
	// no upstream credentials required.
	Offline bool
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first when
// present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}

	cfg := &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/chart.db"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		PageSize:     getEnvInt("PAGE_SIZE", 300),
		PageCacheTTL: time.Duration(getEnvInt("PAGE_CACHE_TTL_SEC", 60)) * time.Second,
		PresetFile:   getEnv("INDICATOR_PRESETS", ""),

		Offline: getEnv("OFFLINE_MODE", "") == "true",
	}

	if cfg.Offline {
		cfg.UpstreamBaseURL = getEnv("UPSTREAM_BASE_URL", "")
		return cfg
	}

	cfg.UpstreamBaseURL = mustEnv("UPSTREAM_BASE_URL")
	cfg.UpstreamClientCode = mustEnv("UPSTREAM_CLIENT_CODE")
	cfg.UpstreamPassword = mustEnv("UPSTREAM_PASSWORD")
	cfg.UpstreamTOTPSecret = mustEnv("UPSTREAM_TOTP_SECRET")
	return cfg
}

// Presets maps an interval to the indicator set applied when a session
// selects a symbol at that interval without choosing indicators itself.
type Presets struct {
	Default   []indicator.Spec            `yaml:"default"`
	Intervals map[string][]indicator.Spec `yaml:"intervals"`
}

// For returns the preset for an interval, falling back to the default set.
func (p *Presets) For(interval string) []indicator.Spec {
	if p == nil {
		return nil
	}
	if specs, ok := p.Intervals[interval]; ok {
		return specs
	}
	return p.Default
}

// LoadPresets parses the YAML preset file. Unknown indicator types are
// rejected here rather than surfacing later as empty panes.
func LoadPresets(path string) (*Presets, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var p Presets
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	validate := func(specs []indicator.Spec) error {
		for _, sp := range specs {
			if err := sp.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if err := validate(p.Default); err != nil {
		return nil, err
	}
	for _, specs := range p.Intervals {
		if err := validate(specs); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}
