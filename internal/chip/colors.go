package chip

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// RGB is a color as 8-bit channels.
type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string {
	return fmt.Sprintf("%d, %d, %d", c.R, c.G, c.B)
}

// palette is the named color set accepted in chip configuration.
var palette = map[string]RGB{
	"primary":     {3, 169, 244},
	"accent":      {255, 152, 0},
	"red":         {244, 67, 54},
	"pink":        {233, 30, 99},
	"purple":      {146, 107, 199},
	"deep-purple": {110, 65, 171},
	"indigo":      {63, 81, 181},
	"blue":        {33, 150, 243},
	"light-blue":  {3, 169, 244},
	"cyan":        {0, 188, 212},
	"teal":        {0, 150, 136},
	"green":       {76, 175, 80},
	"light-green": {139, 195, 74},
	"lime":        {205, 220, 57},
	"yellow":      {255, 235, 59},
	"amber":       {255, 193, 7},
	"orange":      {255, 152, 0},
	"deep-orange": {255, 87, 34},
	"brown":       {121, 85, 72},
	"grey":        {158, 158, 158},
	"blue-grey":   {96, 125, 139},
	"black":       {0, 0, 0},
	"white":       {255, 255, 255},
	"disabled":    {189, 189, 189},
}

// ParseColor accepts a palette name, a var(--color-<name>) reference, a hex color or an
// "r, g, b" triple.
func ParseColor(s string) (RGB, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RGB{}, false
	}
	if inner, ok := strings.CutPrefix(s, "var(--color-"); ok {
		s = strings.TrimSuffix(inner, ")")
	}
	if c, ok := palette[s]; ok {
		return c, true
	}
	if strings.HasPrefix(s, "#") {
		c, err := colorful.Hex(expandHex(s))
		if err != nil {
			return RGB{}, false
		}
		r, g, b := c.RGB255()
		return RGB{r, g, b}, true
	}
	return parseTriple(s)
}

// expandHex turns #rgb into #rrggbb.
func expandHex(s string) string {
	if len(s) != 4 {
		return s
	}
	return string([]byte{'#', s[1], s[1], s[2], s[2], s[3], s[3]})
}

func parseTriple(s string) (RGB, bool) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return RGB{}, false
	}
	var ch [3]uint8
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return RGB{}, false
		}
		ch[i] = uint8(n)
	}
	return RGB{ch[0], ch[1], ch[2]}, true
}

// ComputeRGB renders a configured color as an "r, g, b" channel list. Unrecognized values
// are passed through unchanged.
func ComputeRGB(color string) string {
	if c, ok := ParseColor(color); ok {
		return c.String()
	}
	return strings.TrimSpace(color)
}

// AttrColor converts an rgb_color style attribute ([r, g, b] decoded from JSON) to a color.
func AttrColor(v any) (RGB, bool) {
	list, ok := v.([]any)
	if !ok || len(list) != 3 {
		return RGB{}, false
	}
	var ch [3]uint8
	for i, item := range list {
		f, ok := item.(float64)
		if !ok || f < 0 || f > 255 {
			return RGB{}, false
		}
		ch[i] = uint8(f)
	}
	return RGB{ch[0], ch[1], ch[2]}, true
}

func rgb(color string) string {
	if strings.TrimSpace(color) == "" {
		return ""
	}
	return "rgb(" + ComputeRGB(color) + ")"
}

func rgba(color string, alpha float64) string {
	if strings.TrimSpace(color) == "" {
		return ""
	}
	return "rgba(" + ComputeRGB(color) + ", " + strconv.FormatFloat(alpha, 'f', -1, 64) + ")"
}
