package application

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"chipdeck/internal/dashconfig"
)

const dbFileName = "chipdeck.db"

type resolved struct {
	configDir     string
	dashboardPath string
	dbPath        string
	hassURL       string
	hassToken     string
	ping          time.Duration
	host          string
	port          int
	user          string
	history       bool
	historyKeep   int
}

func resolveSettings(opts StartOptions) (resolved, error) {
	dir := strings.TrimSpace(opts.ConfigDir)
	if dir == "" {
		d, err := dashconfig.DefaultConfigDir()
		if err != nil {
			return resolved{}, err
		}
		dir = d
	}
	settings, err := dashconfig.NewSettingsStore(dir).LoadOrInit()
	if err != nil {
		return resolved{}, err
	}
	r := resolved{
		configDir:     dir,
		dashboardPath: firstNonEmpty(opts.Dashboard, settings.Dashboard),
		dbPath:        firstNonEmpty(opts.DBPath, filepath.Join(dir, dbFileName)),
		hassURL:       firstNonEmpty(opts.HassURL, settings.Hass.URL),
		hassToken:     strings.TrimSpace(opts.HassToken),
		ping:          time.Duration(settings.Hass.PingSeconds) * time.Second,
		host:          firstNonEmpty(opts.LocalHost, "127.0.0.1"),
		port:          settings.LocalPort,
		user:          firstNonEmpty(opts.User, settings.User),
		history:       settings.History.Enabled && !opts.DisableHistory,
		historyKeep:   settings.History.Keep,
	}
	if opts.LocalPort > 0 {
		r.port = opts.LocalPort
	}
	if opts.HistoryLimit > 0 {
		r.historyKeep = opts.HistoryLimit
	}
	return r, nil
}

func (r resolved) requireToken() error {
	if r.hassToken == "" {
		return errors.New("home assistant token is required (CHIPDECK_HASS_TOKEN)")
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// pictureResolver turns "/local/x.png" style paths into absolute URLs on the Home Assistant
// HTTP origin derived from the websocket URL. Absolute and data URLs pass through.
func pictureResolver(wsURL string) func(string) string {
	base := ""
	if u, err := url.Parse(wsURL); err == nil && u.Host != "" {
		scheme := "http"
		if u.Scheme == "wss" || u.Scheme == "https" {
			scheme = "https"
		}
		base = scheme + "://" + u.Host
	}
	return func(p string) string {
		if base == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
			return p
		}
		return base + p
	}
}
