package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"CHIPDECK_HASS_URL", "CHIPDECK_HASS_TOKEN", "CHIPDECK_LOG_LEVEL", "CHIPDECK_LOG_FORMAT",
		"CHIPDECK_LOCAL_HOST", "CHIPDECK_LOCAL_PORT", "CHIPDECK_HISTORY_LIMIT", "CHIPDECK_USER",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	if cfg.HassURL != "" {
		t.Fatalf("HassURL should defer to config.toml, got %s", cfg.HassURL)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log settings: %s %s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.LocalHost != "127.0.0.1" || cfg.LocalPort != 0 {
		t.Fatalf("unexpected listen address: %s:%d", cfg.LocalHost, cfg.LocalPort)
	}
	if cfg.HistoryLimit != 0 {
		t.Fatalf("history limit should defer to config.toml, got %d", cfg.HistoryLimit)
	}
	if cfg.HassToken != "" || cfg.User != "" {
		t.Fatalf("token and user should default empty")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("CHIPDECK_HASS_URL", "wss://ha.example.net/api/websocket")
	t.Setenv("CHIPDECK_HASS_TOKEN", " secret ")
	t.Setenv("CHIPDECK_LOCAL_PORT", "4700")
	t.Setenv("CHIPDECK_DASHBOARD", "/srv/dash.yaml")
	t.Setenv("CHIPDECK_USER", "ann")
	t.Setenv("CHIPDECK_HISTORY_LIMIT", "20")

	cfg := LoadConfig()
	if cfg.HassURL != "wss://ha.example.net/api/websocket" || cfg.HassToken != "secret" {
		t.Fatalf("unexpected hass settings: %+v", cfg)
	}
	if cfg.LocalPort != 4700 || cfg.Dashboard != "/srv/dash.yaml" || cfg.User != "ann" || cfg.HistoryLimit != 20 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestLoadConfig_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("CHIPDECK_LOCAL_PORT", "47x0")
	t.Setenv("CHIPDECK_HISTORY_LIMIT", "-3")
	cfg := LoadConfig()
	if cfg.LocalPort != 0 || cfg.HistoryLimit != 0 {
		t.Fatalf("expected unset values, got port=%d limit=%d", cfg.LocalPort, cfg.HistoryLimit)
	}
}

func TestGetConfig_UsesCacheWithinTTL(t *testing.T) {
	resetConfigCacheForTest()
	t.Setenv("CHIPDECK_LOCAL_HOST", "127.0.0.1")
	_ = LoadConfig()

	t.Setenv("CHIPDECK_LOCAL_HOST", "0.0.0.0")
	got := GetConfig()
	if got == nil {
		t.Fatal("GetConfig should not return nil")
	}
	if got.LocalHost != "127.0.0.1" {
		t.Fatalf("expected cached host 127.0.0.1, got %s", got.LocalHost)
	}
}

func TestGetConfig_RefreshesAfterTTL(t *testing.T) {
	resetConfigCacheForTest()

	oldNow := nowFunc
	oldTTL := cacheTTL
	defer func() {
		nowFunc = oldNow
		cacheTTL = oldTTL
		resetConfigCacheForTest()
	}()

	base := time.Date(2026, time.February, 19, 0, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return base }
	cacheTTL = 10 * time.Second

	t.Setenv("CHIPDECK_LOCAL_HOST", "127.0.0.1")
	_ = LoadConfig()

	base = base.Add(11 * time.Second)
	t.Setenv("CHIPDECK_LOCAL_HOST", "0.0.0.0")

	got := GetConfig()
	if got.LocalHost != "0.0.0.0" {
		t.Fatalf("expected refreshed host 0.0.0.0, got %s", got.LocalHost)
	}
}

func resetConfigCacheForTest() {
	cacheMu.Lock()
	cachedCfg = Config{}
	cachedAt = time.Time{}
	cacheValid = false
	cacheMu.Unlock()
}
