package chip

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	TypeTemplate            = "template"
	TypeClimate             = "custom-climate"
	TypeFan                 = "custom-fan"
	TypeLastTriggered       = "custom-last-triggered-binary-sensor"
	TypeAirQuality          = "custom-air-quality"
	TypeBattery             = "custom-battery"
	TypeBinarySensor        = "custom-binary-sensor"
	TypeTemperatureHumidity = "custom-temperature-humidity"
	TypeMultiTemperatures   = "custom-multi-temperatures"
	TypeEntityCard          = "custom-universal-entity-card"
)

var ErrUnknownType = errors.New("unknown widget type")

type Factory func(env Env, cfg Config) (Widget, error)

// Options carries the per-type defaults used by the registry.
type Options struct {
	Fan          FanOptions
	AirQuality   AirQualityOptions
	Battery      BatteryOptions
	BinarySensor BinarySensorOptions
	EntityCard   EntityCardOptions
}

func DefaultOptions() Options {
	return Options{
		Fan:          DefaultFanOptions,
		AirQuality:   DefaultAirQualityOptions,
		Battery:      DefaultBatteryOptions,
		BinarySensor: DefaultBinarySensorOptions,
		EntityCard:   DefaultEntityCardOptions,
	}
}

type Registry struct {
	factories map[string]Factory
}

func NewRegistry(opts Options) *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(TypeTemplate, func(env Env, cfg Config) (Widget, error) {
		return templateWidget(NewTemplateChip(env, cfg))
	})
	r.Register(TypeClimate, func(env Env, cfg Config) (Widget, error) {
		return templateWidget(NewClimateChip(env, cfg))
	})
	r.Register(TypeFan, func(env Env, cfg Config) (Widget, error) {
		return templateWidget(NewFanChip(env, cfg, opts.Fan))
	})
	r.Register(TypeLastTriggered, func(env Env, cfg Config) (Widget, error) {
		return templateWidget(NewLastTriggeredChip(env, cfg))
	})
	r.Register(TypeAirQuality, func(env Env, cfg Config) (Widget, error) {
		return templateWidget(NewAirQualityChip(env, cfg, opts.AirQuality))
	})
	r.Register(TypeBattery, func(env Env, cfg Config) (Widget, error) {
		return NewBatteryChip(env, cfg, opts.Battery), nil
	})
	r.Register(TypeBinarySensor, func(env Env, cfg Config) (Widget, error) {
		return NewBinarySensorChip(env, cfg, opts.BinarySensor), nil
	})
	r.Register(TypeTemperatureHumidity, func(env Env, cfg Config) (Widget, error) {
		return NewTemperatureHumidityChip(env, cfg), nil
	})
	r.Register(TypeMultiTemperatures, func(env Env, cfg Config) (Widget, error) {
		return NewMultiTemperaturesChip(env, cfg), nil
	})
	r.Register(TypeEntityCard, func(env Env, cfg Config) (Widget, error) {
		return NewEntityCard(env, cfg, opts.EntityCard), nil
	})
	return r
}

func (r *Registry) Register(typ string, f Factory) {
	r.factories[NormalizeType(typ)] = f
}

func (r *Registry) Has(typ string) bool {
	_, ok := r.factories[NormalizeType(typ)]
	return ok
}

// Types lists the registered widget types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) New(env Env, cfg Config) (Widget, error) {
	f, ok := r.factories[NormalizeType(cfg.Type)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
	return f(env, cfg)
}

func templateWidget(t *TemplateChip, err error) (Widget, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}

// NormalizeType accepts the frontend's "custom:" prefix.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.TrimPrefix(t, "custom:")
}
