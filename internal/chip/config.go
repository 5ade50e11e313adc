package chip

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2/unstable"
	"gopkg.in/yaml.v3"

	"chipdeck/internal/binding"
)

// EntityList accepts either a single entity id or a list of ids.
type EntityList []string

func (l *EntityList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = splitEntities(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("entity_id must be a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

func (l *EntityList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = splitEntities(node.Value)
		return nil
	}
	var many []string
	if err := node.Decode(&many); err != nil {
		return fmt.Errorf("entity_id must be a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

func (l *EntityList) UnmarshalText(text []byte) error {
	*l = splitEntities(string(text))
	return nil
}

// UnmarshalTOML takes precedence over UnmarshalText when the decoder enables the
// unmarshaler interface, which is needed for the array form.
func (l *EntityList) UnmarshalTOML(node *unstable.Node) error {
	switch node.Kind {
	case unstable.String:
		*l = splitEntities(string(node.Data))
		return nil
	case unstable.Array:
		var many []string
		it := node.Children()
		for it.Next() {
			n := it.Node()
			if n.Kind != unstable.String {
				return fmt.Errorf("entity_id must be a string or a list of strings, got %s", n.Kind)
			}
			many = append(many, string(n.Data))
		}
		*l = many
		return nil
	default:
		return fmt.Errorf("entity_id must be a string or a list of strings, got %s", node.Kind)
	}
}

func splitEntities(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type TemperatureItem struct {
	Entity string `json:"entity" yaml:"entity" toml:"entity"`
	Icon   string `json:"icon,omitempty" yaml:"icon,omitempty" toml:"icon,omitempty"`
}

// Config is the declarative configuration of one widget. Which fields apply depends on Type.
type Config struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Type   string `json:"type" yaml:"type" toml:"type"`
	Entity string `json:"entity,omitempty" yaml:"entity,omitempty" toml:"entity,omitempty"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`

	// Dynamic attribute keys. A nil pointer means the key is not configured.
	Content         *string `json:"content,omitempty" yaml:"content,omitempty" toml:"content,omitempty"`
	Icon            *string `json:"icon,omitempty" yaml:"icon,omitempty" toml:"icon,omitempty"`
	IconColor       *string `json:"icon_color,omitempty" yaml:"icon_color,omitempty" toml:"icon_color,omitempty"`
	Picture         *string `json:"picture,omitempty" yaml:"picture,omitempty" toml:"picture,omitempty"`
	ContentColor    *string `json:"content_color,omitempty" yaml:"content_color,omitempty" toml:"content_color,omitempty"`
	BackgroundColor *string `json:"background_color,omitempty" yaml:"background_color,omitempty" toml:"background_color,omitempty"`
	Color           *string `json:"color,omitempty" yaml:"color,omitempty" toml:"color,omitempty"`

	EntityID          EntityList              `json:"entity_id,omitempty" yaml:"entity_id,omitempty" toml:"entity_id,omitempty"`
	States            []binding.StateOverride `json:"states,omitempty" yaml:"states,omitempty" toml:"states,omitempty"`
	TemplateVariables map[string]any          `json:"template_variables,omitempty" yaml:"template_variables,omitempty" toml:"template_variables,omitempty"`

	TapAction       *Action `json:"tap_action,omitempty" yaml:"tap_action,omitempty" toml:"tap_action,omitempty"`
	HoldAction      *Action `json:"hold_action,omitempty" yaml:"hold_action,omitempty" toml:"hold_action,omitempty"`
	DoubleTapAction *Action `json:"double_tap_action,omitempty" yaml:"double_tap_action,omitempty" toml:"double_tap_action,omitempty"`

	// binary sensor
	ContentInfo string `json:"content_info,omitempty" yaml:"content_info,omitempty" toml:"content_info,omitempty"`
	IconOn      string `json:"icon_on,omitempty" yaml:"icon_on,omitempty" toml:"icon_on,omitempty"`
	IconOff     string `json:"icon_off,omitempty" yaml:"icon_off,omitempty" toml:"icon_off,omitempty"`
	ColorOn     string `json:"color_on,omitempty" yaml:"color_on,omitempty" toml:"color_on,omitempty"`
	ColorOff    string `json:"color_off,omitempty" yaml:"color_off,omitempty" toml:"color_off,omitempty"`

	// temperature chips
	Temperature  string            `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	Humidity     string            `json:"humidity,omitempty" yaml:"humidity,omitempty" toml:"humidity,omitempty"`
	Temperatures []TemperatureItem `json:"temperatures,omitempty" yaml:"temperatures,omitempty" toml:"temperatures,omitempty"`

	// universal entity card
	FriendlyNameReplacements map[string]string `json:"friendly_name_replacements,omitempty" yaml:"friendly_name_replacements,omitempty" toml:"friendly_name_replacements,omitempty"`
	IconAction               *Action           `json:"icon_action,omitempty" yaml:"icon_action,omitempty" toml:"icon_action,omitempty"`
}

func (c Config) raw(k binding.Key) *string {
	switch k {
	case binding.KeyContent:
		return c.Content
	case binding.KeyIcon:
		return c.Icon
	case binding.KeyIconColor:
		return c.IconColor
	case binding.KeyPicture:
		return c.Picture
	case binding.KeyContentColor:
		return c.ContentColor
	case binding.KeyBackgroundColor:
		return c.BackgroundColor
	case binding.KeyColor:
		return c.Color
	}
	return nil
}

// Text returns the configured text for k, empty when unset.
func (c Config) Text(k binding.Key) string {
	if p := c.raw(k); p != nil {
		return *p
	}
	return ""
}

// With returns a copy of c with k set to v.
func (c Config) With(k binding.Key, v string) Config {
	p := &v
	switch k {
	case binding.KeyContent:
		c.Content = p
	case binding.KeyIcon:
		c.Icon = p
	case binding.KeyIconColor:
		c.IconColor = p
	case binding.KeyPicture:
		c.Picture = p
	case binding.KeyContentColor:
		c.ContentColor = p
	case binding.KeyBackgroundColor:
		c.BackgroundColor = p
	case binding.KeyColor:
		c.Color = p
	}
	return c
}

// AsMap renders the configuration as the generic mapping exposed to templates as `config`.
func (c Config) AsMap() map[string]any {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Binding builds the snapshot the binding manager works from. user is forwarded to
// templates as the `user` variable.
func (c Config) Binding(user string) binding.Config {
	raw := make(map[binding.Key]string, len(binding.Keys))
	for _, k := range binding.Keys {
		if p := c.raw(k); p != nil {
			raw[k] = *p
		}
	}
	ambient := map[string]any{
		"config": c.AsMap(),
		"user":   user,
		"entity": c.Entity,
	}
	return binding.Config{
		Entity:    c.Entity,
		EntityIDs: []string(c.EntityID),
		Raw:       raw,
		States:    c.States,
		Variables: c.TemplateVariables,
		Ambient:   ambient,
	}
}

func strPtr(s string) *string {
	return &s
}
