package chip

// Action is a tap/hold action description handed to the dashboard frontend.
type Action struct {
	Action   string `json:"action" yaml:"action" toml:"action"`
	Service  string `json:"service,omitempty" yaml:"service,omitempty" toml:"service,omitempty"`
	EntityID string `json:"entity_id,omitempty" yaml:"entity_id,omitempty" toml:"entity_id,omitempty"`
	Path     string `json:"navigation_path,omitempty" yaml:"navigation_path,omitempty" toml:"navigation_path,omitempty"`
}

const (
	ActionMoreInfo    = "more-info"
	ActionToggle      = "toggle"
	ActionCallService = "call-service"
	ActionNone        = "none"
)

// Segment is one icon/text pair of a multi-part chip.
type Segment struct {
	Icon string `json:"icon,omitempty"`
	Text string `json:"text"`
}

// Visual is the rendered description of one widget. Colors are CSS color strings.
type Visual struct {
	Hidden       bool      `json:"hidden,omitempty"`
	Icon         string    `json:"icon,omitempty"`
	IconColor    string    `json:"icon_color,omitempty"`
	WeatherIcon  bool      `json:"weather_icon,omitempty"`
	Content      string    `json:"content,omitempty"`
	ContentColor string    `json:"content_color,omitempty"`
	Secondary    string    `json:"secondary,omitempty"`
	Background   string    `json:"background,omitempty"`
	Picture      string    `json:"picture,omitempty"`
	AvatarOnly   bool      `json:"avatar_only,omitempty"`
	Segments     []Segment `json:"segments,omitempty"`

	ShapeColor      string `json:"shape_color,omitempty"`
	BackgroundImage string `json:"background_image,omitempty"`
	BlendMode       string `json:"background_blend_mode,omitempty"`

	TapAction       *Action `json:"tap_action,omitempty"`
	HoldAction      *Action `json:"hold_action,omitempty"`
	DoubleTapAction *Action `json:"double_tap_action,omitempty"`
	IconTapAction   *Action `json:"icon_tap_action,omitempty"`
}

var weatherIcons = map[string]bool{
	"mdi:weather-clear-night":         true,
	"mdi:weather-cloudy":              true,
	"mdi:weather-fog":                 true,
	"mdi:weather-hail":                true,
	"mdi:weather-lightning":           true,
	"mdi:weather-lightning-rainy":     true,
	"mdi:weather-night":               true,
	"mdi:weather-night-partly-cloudy": true,
	"mdi:weather-partly-cloudy":       true,
	"mdi:weather-pouring":             true,
	"mdi:weather-rainy":               true,
	"mdi:weather-snowy":               true,
	"mdi:weather-snowy-rainy":         true,
	"mdi:weather-sunny":               true,
	"mdi:weather-windy":               true,
	"mdi:weather-windy-variant":       true,
}

// IsWeatherIcon reports whether icon has an animated weather rendering.
func IsWeatherIcon(icon string) bool {
	return weatherIcons[icon]
}
