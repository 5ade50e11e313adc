package chip

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"chipdeck/internal/hass"
)

type BatteryOptions struct {
	UnknownIcon  string
	UnknownColor string
	// Levels are checked in order; the first whose Min is <= the level wins.
	Icons  []LevelIcon
	Colors []LevelColor
	// BelowIcon is used under the lowest icon level.
	BelowIcon string
}

type LevelIcon struct {
	Min  int
	Icon string
}

type LevelColor struct {
	Min   int
	Color string
}

var DefaultBatteryOptions = BatteryOptions{
	UnknownIcon:  "mdi:battery-unknown",
	UnknownColor: "grey",
	Icons: []LevelIcon{
		{95, "mdi:battery"},
		{90, "mdi:battery-90"},
		{80, "mdi:battery-80"},
		{70, "mdi:battery-70"},
		{60, "mdi:battery-60"},
		{50, "mdi:battery-50"},
		{40, "mdi:battery-40"},
		{30, "mdi:battery-30"},
		{20, "mdi:battery-20"},
		{10, "mdi:battery-10"},
	},
	Colors: []LevelColor{
		{70, "green"},
		{40, "yellow"},
		{math.MinInt, "red"},
	},
	BelowIcon: "mdi:battery-outline",
}

func (o BatteryOptions) Icon(level int, ok bool) string {
	if !ok {
		return o.UnknownIcon
	}
	for _, li := range o.Icons {
		if level >= li.Min {
			return li.Icon
		}
	}
	return o.BelowIcon
}

func (o BatteryOptions) Color(level int, ok bool) string {
	if !ok {
		return o.UnknownColor
	}
	for _, lc := range o.Colors {
		if level >= lc.Min {
			return lc.Color
		}
	}
	return o.UnknownColor
}

// BatteryLevel reads the battery level of st: the state itself for battery entities,
// otherwise the first attribute whose name mentions battery, otherwise the state.
func BatteryLevel(st hass.State) (int, bool) {
	if strings.Contains(st.EntityID, "battery") {
		return toLevel(st.State)
	}
	names := make([]string, 0, len(st.Attributes))
	for name := range st.Attributes {
		if strings.Contains(name, "battery") {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		return toLevel(st.Attributes[names[0]])
	}
	return toLevel(st.State)
}

func toLevel(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

func renderBattery(opts BatteryOptions) func(Config, Env) Visual {
	return func(cfg Config, env Env) Visual {
		if cfg.Entity == "" {
			return Visual{Hidden: true}
		}
		level, ok := 0, false
		if st, found := env.state(cfg.Entity); found {
			level, ok = BatteryLevel(st)
		}
		color := opts.Color(level, ok)
		content := "NA"
		if ok {
			content = strconv.Itoa(level) + "%"
		}
		return withActions(Visual{
			Icon:         opts.Icon(level, ok),
			IconColor:    rgb(color),
			Content:      content,
			ContentColor: rgb(color),
			Background:   rgba(color, chipBackgroundAlpha),
		}, cfg)
	}
}

// NewBatteryChip shows a battery level with a bucketed icon and a traffic-light color.
func NewBatteryChip(env Env, cfg Config, opts BatteryOptions) Widget {
	return &ruleWidget{typ: TypeBattery, env: env, cfg: cfg, render: renderBattery(opts)}
}
