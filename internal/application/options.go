package application

import (
	"log/slog"

	"chipdeck/internal/hass"
)

// StartOptions overrides the persisted settings; zero values keep what config.toml says.
type StartOptions struct {
	ConfigDir      string
	Dashboard      string
	DBPath         string
	HassURL        string
	HassToken      string
	LocalHost      string
	LocalPort      int
	User           string
	HistoryLimit   int
	DisableHistory bool
	Logger         *slog.Logger
	// Dialer replaces the websocket dialer, mostly for tests.
	Dialer hass.Dialer
}
