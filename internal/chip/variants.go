package chip

import (
	"maps"

	"chipdeck/internal/binding"
)

const climateColor = `
{% set hvac_action = state_attr(entity, 'hvac_action') %}
{% if not is_state(entity, 'off') %}
  {% if hvac_action == 'fan' %}
    yellow
  {% elif hvac_action == 'heating' %}
    red
  {% elif hvac_action == 'cooling' %}
    blue
  {% else %}
    grey
  {% endif %}
{% else %}
  grey
{% endif %}
`

const climateIcon = `
{% set hvac_action = state_attr(entity, 'hvac_action') %}
{% if not is_state(entity, 'off') %}
  {% if hvac_action == 'fan' %}
    mdi:fan
  {% elif hvac_action == 'heating' %}
    mdi:fire
  {% elif hvac_action == 'cooling' %}
    mdi:snowflake
  {% else %}
    mdi:home-thermometer
  {% endif %}
{% else %}
  mdi:thermometer-off
{% endif %}
`

const climateContent = `
{% set parts = [] %}
{% if prefix is defined %}
  {% set parts = [prefix] %}
{% endif %}
{% set temperature = state_attr(entity, 'current_temperature') | string %}
{% set humidity = state_attr(entity, 'current_humidity') | string %}
{% set parts = parts + [temperature + '°', humidity + '%'] %}
{% set climate_mode = state_attr(entity, 'climate_mode') | regex_replace('^E ', 'Early ') | regex_replace(' M$', ' (Master Bedroom)') %}
{% if climate_mode and climate_mode != 'None' %}
  {% set parts = parts + [climate_mode] %}
{% endif %}
{{ parts | join(" • ") }}
`

// NewClimateChip colors and labels a climate entity by its hvac action.
func NewClimateChip(env Env, cfg Config) (*TemplateChip, error) {
	t := newTemplateChip(TypeClimate, env, func(c Config) Config {
		return c.With(binding.KeyColor, climateColor).
			With(binding.KeyIcon, climateIcon).
			With(binding.KeyContent, climateContent)
	}, nil)
	return t.init(cfg)
}

const fanColor = `
{% set state = states(entity) %}
{% if state == 'on' %}
  {{ color_on }}
{% elif state == 'off' %}
  grey
{% else %}
  pink
{% endif %}
`

const fanIcon = `
{% set state = states(entity) %}
{% if state == 'on' %}
  {{ icon }}
{% elif state == 'off' %}
  {{ icon }}-off
{% else %}
  {{ icon }}-alert
{% endif %}
`

const fanContent = `
{% set parts = [] %}
{% if prefix is defined %}
  {% set parts = [prefix] %}
{% endif %}
{% set percentage = state_attr(entity, 'percentage') %}
{% if percentage %}
  {% set parts = parts + [(percentage | string) + '%' ] %}
{% endif %}
{% set preset_mode = state_attr(entity, 'preset_mode') %}
{% if preset_mode %}
  {% set parts = parts + [preset_mode] %}
{% endif %}
{{ parts | join(" • ") }}
`

// FanOptions are the defaults of the fan chip.
type FanOptions struct {
	ColorOn string
	Icon    string
}

var DefaultFanOptions = FanOptions{ColorOn: "blue", Icon: "mdi:fan"}

// NewFanChip shows a fan's speed and preset. The configured color and icon become the
// on-state color and the icon stem.
func NewFanChip(env Env, cfg Config, opts FanOptions) (*TemplateChip, error) {
	t := newTemplateChip(TypeFan, env, func(c Config) Config {
		vars := maps.Clone(c.TemplateVariables)
		if vars == nil {
			vars = map[string]any{}
		}
		vars["color_on"] = orText(c.Text(binding.KeyColor), opts.ColorOn)
		vars["icon"] = orText(c.Text(binding.KeyIcon), opts.Icon)
		c.TemplateVariables = vars
		return c.With(binding.KeyColor, fanColor).
			With(binding.KeyIcon, fanIcon).
			With(binding.KeyContent, fanContent)
	}, nil)
	return t.init(cfg)
}

const lastTriggeredContent = `
{% set last_triggered_name = state_attr(entity, 'last_triggered_name') | replace(' Motion', '') | replace(' 2', '') %}
{% set last_triggered = states[entity].last_changed %}
{% if (now() - last_triggered) < timedelta(minutes=1) %}
{% set last_triggered = 'now' %}
{% else %}
{% set last_triggered = relative_time(states[entity].last_changed) + ' ago' %}
{% endif %}
{{ last_triggered_name }} • {{ last_triggered }}
`

const lastTriggeredColor = `
{% set state = states(entity) %}
{% if state == 'on' %}
  {{ color_on }}
{% else %}
  grey
{% endif %}
`

// NewLastTriggeredChip shows which sensor of a group fired last and how long ago.
func NewLastTriggeredChip(env Env, cfg Config) (*TemplateChip, error) {
	t := newTemplateChip(TypeLastTriggered, env, func(c Config) Config {
		vars := maps.Clone(c.TemplateVariables)
		if vars == nil {
			vars = map[string]any{}
		}
		vars["color_on"] = c.Text(binding.KeyColor)
		c.TemplateVariables = vars
		return c.With(binding.KeyContent, lastTriggeredContent).
			With(binding.KeyColor, lastTriggeredColor)
	}, nil)
	return t.init(cfg)
}

const airQualityContent = `
{% set last_triggered_by = state_attr(entity, 'last_triggered_by') %}
{% set state = states(entity) | replace('_', ' ') | title %}
{% if room_name is defined %}
  {% if state == 'Good' %}
    {{ room_name }}
  {% else %}
    {{ room_name }} • {{ last_triggered_by }}
  {% endif %}
{% else %}
  {% if state == 'Good' %}
    {{ state }}
  {% else %}
    {{ state }} • {{ last_triggered_by }}
  {% endif %}
{% endif %}
`

// AirQualityOptions maps air-quality states to colors.
type AirQualityOptions struct {
	Icon     string
	Colors   map[string]string
	Fallback string
}

var DefaultAirQualityOptions = AirQualityOptions{
	Icon: "mdi:weather-windy",
	Colors: map[string]string{
		"GOOD":      "green",
		"FAIR":      "yellow",
		"POOR":      "red",
		"VERY_POOR": "purple",
	},
	Fallback: "pink",
}

// Color returns the color for an air-quality state.
func (o AirQualityOptions) Color(state string) string {
	if c, ok := o.Colors[state]; ok {
		return c
	}
	return o.Fallback
}

// NewAirQualityChip replaces the configured override table with one synthesized from the
// current state: a fixed icon and a color per quality level.
func NewAirQualityChip(env Env, cfg Config, opts AirQualityOptions) (*TemplateChip, error) {
	override := func(_ []binding.StateOverride, state string, ok bool) *binding.StateOverride {
		if !ok || state == "" {
			return nil
		}
		rec := &binding.StateOverride{State: state}
		return rec.Set(binding.KeyIcon, opts.Icon).Set(binding.KeyColor, opts.Color(state))
	}
	t := newTemplateChip(TypeAirQuality, env, func(c Config) Config {
		return c.With(binding.KeyContent, airQualityContent)
	}, override)
	return t.init(cfg)
}

func orText(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
