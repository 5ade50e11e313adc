// Package config reads process settings from CHIPDECK_* environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultLocalHost = "127.0.0.1"

// Config holds the environment overrides. Empty or zero fields fall back to config.toml.
type Config struct {
	HassURL      string
	HassToken    string
	LogLevel     string
	LogFormat    string
	Dashboard    string
	ConfigDir    string
	DBPath       string
	LocalHost    string
	LocalPort    int
	User         string
	HistoryLimit int
}

var (
	cacheTTL   = 10 * time.Second
	nowFunc    = time.Now
	cacheMu    sync.RWMutex
	cachedCfg  Config
	cachedAt   time.Time
	cacheValid bool
)

func LoadConfig() Config {
	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = nowFunc()
	cacheValid = true
	cacheMu.Unlock()
	return cfg
}

func GetConfig() *Config {
	now := nowFunc()
	cacheMu.RLock()
	if cacheValid && now.Sub(cachedAt) < cacheTTL {
		out := cachedCfg
		cacheMu.RUnlock()
		return &out
	}
	cacheMu.RUnlock()

	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = now
	cacheValid = true
	cacheMu.Unlock()

	out := cfg
	return &out
}

func loadFromEnv() Config {
	return Config{
		HassURL:      strings.TrimSpace(os.Getenv("CHIPDECK_HASS_URL")),
		HassToken:    strings.TrimSpace(os.Getenv("CHIPDECK_HASS_TOKEN")),
		LogLevel:     envOr("CHIPDECK_LOG_LEVEL", "info"),
		LogFormat:    envOr("CHIPDECK_LOG_FORMAT", "json"),
		Dashboard:    strings.TrimSpace(os.Getenv("CHIPDECK_DASHBOARD")),
		ConfigDir:    strings.TrimSpace(os.Getenv("CHIPDECK_CONFIG_DIR")),
		DBPath:       strings.TrimSpace(os.Getenv("CHIPDECK_DB_PATH")),
		LocalHost:    envOr("CHIPDECK_LOCAL_HOST", defaultLocalHost),
		LocalPort:    positiveOr(os.Getenv("CHIPDECK_LOCAL_PORT"), 0),
		User:         strings.TrimSpace(os.Getenv("CHIPDECK_USER")),
		HistoryLimit: positiveOr(os.Getenv("CHIPDECK_HISTORY_LIMIT"), 0),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// positiveOr parses v strictly and falls back on malformed or non-positive values.
func positiveOr(v string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
