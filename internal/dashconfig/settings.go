package dashconfig

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	settingsFileName     = "config.toml"
	defaultDashboardName = "dashboard.yaml"
	defaultLocalPort     = 4622
	defaultHistoryKeep   = 500
	defaultHassWebsocket = "ws://127.0.0.1:8123/api/websocket"
	defaultPingSeconds   = 30
)

type HassSettings struct {
	URL         string `json:"url" toml:"url"`
	PingSeconds int    `json:"ping_seconds" toml:"ping_seconds"`
}

type HistorySettings struct {
	Enabled bool `json:"enabled" toml:"enabled"`
	Keep    int  `json:"keep" toml:"keep"`
}

// Settings is the service configuration persisted in config.toml.
type Settings struct {
	LocalPort int             `json:"local_port" toml:"local_port"`
	Dashboard string          `json:"dashboard" toml:"dashboard"`
	User      string          `json:"user" toml:"user"`
	Hass      HassSettings    `json:"hass" toml:"hass"`
	History   HistorySettings `json:"history" toml:"history"`
}

type SettingsStore struct {
	dir string
}

func NewSettingsStore(dir string) *SettingsStore {
	return &SettingsStore{dir: dir}
}

func (s *SettingsStore) Path() string {
	return filepath.Join(s.dir, settingsFileName)
}

// LoadOrInit reads config.toml, writing a default one when it does not exist yet.
func (s *SettingsStore) LoadOrInit() (Settings, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Settings{}, err
	}
	path := s.Path()
	if b, err := os.ReadFile(path); err == nil {
		var cfg Settings
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return Settings{}, err
		}
		return s.normalize(cfg), nil
	} else if !os.IsNotExist(err) {
		return Settings{}, err
	}

	cfg := s.normalize(Settings{History: HistorySettings{Enabled: true}})
	if err := writeTOMLAtomically(path, cfg); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func (s *SettingsStore) Save(cfg Settings) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(s.Path(), s.normalize(cfg))
}

func (s *SettingsStore) normalize(cfg Settings) Settings {
	if cfg.LocalPort <= 0 {
		cfg.LocalPort = defaultLocalPort
	}
	cfg.Dashboard = strings.TrimSpace(cfg.Dashboard)
	if cfg.Dashboard == "" {
		cfg.Dashboard = filepath.Join(s.dir, defaultDashboardName)
	} else if !filepath.IsAbs(cfg.Dashboard) {
		cfg.Dashboard = filepath.Join(s.dir, cfg.Dashboard)
	}
	cfg.User = strings.TrimSpace(cfg.User)
	cfg.Hass.URL = strings.TrimSpace(cfg.Hass.URL)
	if cfg.Hass.URL == "" {
		cfg.Hass.URL = defaultHassWebsocket
	}
	if cfg.Hass.PingSeconds <= 0 {
		cfg.Hass.PingSeconds = defaultPingSeconds
	}
	if cfg.History.Keep <= 0 {
		cfg.History.Keep = defaultHistoryKeep
	}
	return cfg
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	return writeAtomically(path, b)
}

func writeAtomically(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// DefaultConfigDir returns ~/.config/chipdeck unless CHIPDECK_CONFIG_DIR is set.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("CHIPDECK_CONFIG_DIR")); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chipdeck"), nil
}
