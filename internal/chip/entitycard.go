package chip

import (
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"chipdeck/internal/hass"
)

// EntityCardOptions tunes the universal entity card.
type EntityCardOptions struct {
	OnStates          []string
	CardOpacity       float64
	IconShapeOpacity  float64
	DimIconOpacity    float64
	DimShapeOpacity   float64
	DimContentOpacity float64
}

var DefaultEntityCardOptions = EntityCardOptions{
	OnStates:          []string{"on", "open", "opening", "playing", "cleaning", "unlocked"},
	CardOpacity:       0.15,
	IconShapeOpacity:  0.25,
	DimIconOpacity:    0.2,
	DimShapeOpacity:   0.05,
	DimContentOpacity: 0.7,
}

func (o EntityCardOptions) isOn(state string) bool {
	return slices.Contains(o.OnStates, state)
}

// EntityCard renders any entity with a domain-specific icon, color, state text and actions.
type EntityCard struct {
	opts EntityCardOptions
}

func isGarage(st hass.State) bool {
	dc, _ := st.AttrString("device_class")
	return strings.HasPrefix(st.EntityID, "cover") && dc == "garage"
}

func isFan(id string) bool {
	return strings.HasPrefix(id, "fan") || strings.HasSuffix(id, "fan")
}

func (c EntityCard) color(st hass.State) string {
	id := st.EntityID
	on := c.opts.isOn(st.State)
	switch {
	case strings.HasPrefix(id, "lock") || isGarage(st):
		if on {
			return "red"
		}
		return "green"
	case strings.HasPrefix(id, "input_button."):
		return "grey"
	case strings.HasPrefix(id, "media_player") || strings.HasPrefix(id, "vacuum"):
		if on {
			return "green"
		}
		return "grey"
	case !on:
		return "grey"
	}
	if v, ok := st.Attr("rgb_color"); ok {
		if rc, ok := AttrColor(v); ok {
			return rc.String()
		}
	}
	if isFan(id) {
		return "blue"
	}
	return "yellow"
}

func (c EntityCard) icon(st hass.State) string {
	id := st.EntityID
	open := st.State == "open" || st.State == "opening"
	switch {
	case isGarage(st):
		if open {
			return "mdi:garage-open"
		}
		return "mdi:garage"
	case strings.HasPrefix(id, "cover"):
		if open {
			return "mdi:blinds-open"
		}
		return "mdi:blinds"
	case isFan(id):
		return "mdi:fan"
	}
	icon, _ := st.AttrString("icon")
	return icon
}

func (c EntityCard) dim(st hass.State) bool {
	id := st.EntityID
	return !strings.HasPrefix(id, "lock") &&
		!isGarage(st) &&
		!strings.HasPrefix(id, "input_button.") &&
		!c.opts.isOn(st.State)
}

func (c EntityCard) stateText(st hass.State) string {
	id := st.EntityID
	switch {
	case st.State == hass.StateUnavailable:
		return "Unavailable"
	case strings.HasPrefix(id, "input_button"):
		return ""
	case st.State == "off":
		return "Off"
	case strings.HasPrefix(id, "vacuum."):
		level, _ := st.AttrString("battery_level")
		return st.State + " • " + level + "%"
	case strings.HasPrefix(id, "media_player."):
		if album, ok := st.AttrString("media_album_name"); ok {
			return album
		}
		return st.State
	case strings.HasPrefix(id, "fan.") || strings.HasSuffix(id, "_fan"):
		if pct, ok := st.AttrFloat("percentage"); ok && pct != 0 {
			return strconv.FormatFloat(pct, 'f', -1, 64) + "%"
		}
		if preset, ok := st.AttrString("preset_mode"); ok && preset != "" {
			return strings.ToLower(preset)
		}
		return st.State
	case c.opts.isOn(st.State):
		if b, ok := st.AttrFloat("brightness"); ok {
			return strconv.Itoa(int(math.Ceil(b/255*100))) + "%"
		}
		if pos, ok := st.AttrString("current_position"); ok {
			return pos + "%"
		}
	}
	return st.State
}

// iconTapAction toggles or triggers the entity where the domain has an obvious primary action.
func (c EntityCard) iconTapAction(st hass.State) *Action {
	id := st.EntityID
	a := &Action{EntityID: id, Action: ActionCallService}
	switch {
	case strings.HasPrefix(id, "light.") || strings.HasPrefix(id, "switch.") || strings.HasPrefix(id, "fan."):
		a.Action = ActionToggle
	case strings.HasPrefix(id, "cover"):
		a.Service = "cover.toggle"
	case strings.HasPrefix(id, "media_player"):
		a.Service = "media_player.media_play_pause"
	case strings.HasPrefix(id, "humidifier"):
		a.Service = "humidifier.toggle"
	case strings.HasPrefix(id, "lock"):
		a.Service = "lock.lock"
		if st.State == "locked" {
			a.Service = "lock.unlock"
		}
	case strings.HasPrefix(id, "input_button"):
		a.Service = "input_button.press"
	default:
		a.Action = ActionMoreInfo
	}
	return a
}

func (c EntityCard) contentTapAction(st hass.State) *Action {
	if strings.HasPrefix(st.EntityID, "input_button") {
		return &Action{Action: ActionCallService, Service: "input_button.press", EntityID: st.EntityID}
	}
	return &Action{Action: ActionMoreInfo, EntityID: st.EntityID}
}

// FriendlyName applies the configured regular-expression replacements to the entity name,
// in lexical order of the patterns. Invalid patterns are skipped.
func FriendlyName(name string, replacements map[string]string) string {
	if name == "" || len(replacements) == 0 {
		return name
	}
	patterns := make([]string, 0, len(replacements))
	for p := range replacements {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		m := re.FindStringSubmatchIndex(name)
		if m == nil {
			continue
		}
		repl := re.ExpandString(nil, replacements[p], name, m)
		name = name[:m[0]] + string(repl) + name[m[1]:]
	}
	return name
}

func (c EntityCard) render(cfg Config, env Env) Visual {
	if cfg.Entity == "" {
		return Visual{Hidden: true}
	}
	st, ok := env.state(cfg.Entity)
	if !ok {
		return Visual{Content: cfg.Entity, Secondary: "Entity not found", Icon: "mdi:help"}
	}
	color := c.color(st)
	dim := c.dim(st)

	out := Visual{
		Icon:          c.icon(st),
		Content:       FriendlyName(orText(cfg.Name, friendlyNameAttr(st)), cfg.FriendlyNameReplacements),
		Secondary:     c.stateText(st),
		Background:    rgba(color, c.opts.CardOpacity),
		IconTapAction: cfg.IconAction,
		TapAction:     c.contentTapAction(st),
	}
	if out.IconTapAction == nil {
		out.IconTapAction = c.iconTapAction(st)
	}
	if dim {
		out.IconColor = rgba(color, c.opts.DimIconOpacity)
		out.ShapeColor = rgba(color, c.opts.DimShapeOpacity)
		out.ContentColor = rgba(color, c.opts.DimContentOpacity)
	} else {
		out.IconColor = rgba(color, 1)
		out.ShapeColor = rgba(color, c.opts.IconShapeOpacity)
		out.ContentColor = rgba(color, 1)
	}
	if st.State == "playing" {
		if pic, ok := st.AttrString("entity_picture"); ok && pic != "" {
			out.Background = "rgba(0, 0, 0, 0.7)"
			out.BackgroundImage = env.pictureURL(pic)
			out.BlendMode = "multiply"
		} else {
			out.BlendMode = "inherit"
		}
	}
	return out
}

func friendlyNameAttr(st hass.State) string {
	name, _ := st.AttrString("friendly_name")
	return name
}

// NewEntityCard builds the universal entity card.
func NewEntityCard(env Env, cfg Config, opts EntityCardOptions) Widget {
	card := EntityCard{opts: opts}
	return &ruleWidget{typ: TypeEntityCard, env: env, cfg: cfg, render: card.render}
}
