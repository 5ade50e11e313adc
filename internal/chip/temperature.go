package chip

import (
	"fmt"

	"chipdeck/internal/binding"
)

// neutralBackground is the chip background of the sensor chips that have no color of their own.
const neutralBackground = "187, 187, 187"

func renderTemperatureHumidity(cfg Config, env Env) Visual {
	if cfg.Temperature == "" && cfg.Humidity == "" {
		return Visual{Hidden: true}
	}
	stateOf := func(id string) string {
		st, _ := env.state(id)
		return st.State
	}
	var content string
	switch {
	case cfg.Temperature != "" && cfg.Humidity != "":
		content = fmt.Sprintf("%s° • %s%%", stateOf(cfg.Temperature), stateOf(cfg.Humidity))
	case cfg.Temperature != "":
		content = stateOf(cfg.Temperature) + "°"
	default:
		content = stateOf(cfg.Humidity) + "%"
	}
	return Visual{
		Icon:       cfg.Text(binding.KeyIcon),
		Content:    content,
		Background: rgba(neutralBackground, chipBackgroundAlpha),
	}
}

func renderMultiTemperatures(cfg Config, env Env) Visual {
	if len(cfg.Temperatures) == 0 {
		return Visual{Hidden: true}
	}
	segs := make([]Segment, 0, len(cfg.Temperatures))
	for _, item := range cfg.Temperatures {
		text := "? "
		if st, ok := env.state(item.Entity); ok {
			text = st.State + "°"
		}
		segs = append(segs, Segment{Icon: item.Icon, Text: text})
	}
	return Visual{
		Segments:   segs,
		Background: rgba(neutralBackground, chipBackgroundAlpha),
	}
}

// NewTemperatureHumidityChip shows one temperature and/or humidity sensor.
func NewTemperatureHumidityChip(env Env, cfg Config) Widget {
	return &ruleWidget{typ: TypeTemperatureHumidity, env: env, cfg: cfg, render: renderTemperatureHumidity}
}

// NewMultiTemperaturesChip shows several temperature sensors side by side.
func NewMultiTemperaturesChip(env Env, cfg Config) Widget {
	return &ruleWidget{typ: TypeMultiTemperatures, env: env, cfg: cfg, render: renderMultiTemperatures}
}
