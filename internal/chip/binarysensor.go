package chip

import (
	"strings"
	"time"

	"chipdeck/internal/binding"
)

type BinarySensorOptions struct {
	ColorOn  string
	ColorOff string
}

var DefaultBinarySensorOptions = BinarySensorOptions{ColorOn: "red", ColorOff: "grey"}

const (
	InfoName        = "name"
	InfoState       = "state"
	InfoLastChanged = "last-changed"
	InfoLastUpdated = "last-updated"
	InfoNone        = "none"
)

func renderBinarySensor(opts BinarySensorOptions, now func() time.Time) func(Config, Env) Visual {
	return func(cfg Config, env Env) Visual {
		if cfg.Entity == "" {
			return Visual{Hidden: true}
		}
		st, ok := env.state(cfg.Entity)
		on := ok && st.State == "on"

		color := orText(cfg.ColorOff, orText(cfg.Text(binding.KeyColor), opts.ColorOff))
		if !ok {
			color = opts.ColorOff
		} else if on {
			color = orText(cfg.ColorOn, opts.ColorOn)
		}

		var icon string
		baseIcon := cfg.Text(binding.KeyIcon)
		switch {
		case cfg.IconOn == "" && cfg.IconOff == "":
			icon = baseIcon
		case !ok:
		case on:
			icon = orText(cfg.IconOn, baseIcon)
		default:
			icon = orText(cfg.IconOff, baseIcon)
		}

		out := Visual{Background: rgba(color, chipBackgroundAlpha)}
		if icon != "" {
			out.Icon = icon
			out.IconColor = rgb(color)
		}
		if ok {
			out.Content = infoDisplay(orText(cfg.ContentInfo, InfoNone), orText(cfg.Name, st.FriendlyName()), st.State, st.LastChanged, st.LastUpdated, now())
			if out.Content != "" {
				out.ContentColor = rgb(color)
			}
		}
		return withActions(out, cfg)
	}
}

func infoDisplay(info, name, state string, changed, updated, now time.Time) string {
	switch strings.ToLower(info) {
	case InfoName:
		return name
	case InfoState:
		return state
	case InfoLastChanged:
		return relativeTime(changed, now)
	case InfoLastUpdated:
		return relativeTime(updated, now)
	default:
		return ""
	}
}

// NewBinarySensorChip colors and picks the icon of a chip by the on/off state of an entity.
func NewBinarySensorChip(env Env, cfg Config, opts BinarySensorOptions) Widget {
	return &ruleWidget{typ: TypeBinarySensor, env: env, cfg: cfg, render: renderBinarySensor(opts, time.Now)}
}
