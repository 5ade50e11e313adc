// Package binding resolves the visual attributes of template widgets. Each attribute key
// is either a literal, a per-state override or a live expression evaluated remotely, and
// the Manager keeps at most one evaluation subscription per key for one widget.
package binding

import "strings"

type Key string

const (
	KeyContent         Key = "content"
	KeyIcon            Key = "icon"
	KeyIconColor       Key = "icon_color"
	KeyPicture         Key = "picture"
	KeyContentColor    Key = "content_color"
	KeyBackgroundColor Key = "background_color"
	KeyColor           Key = "color"
)

// Keys is the closed set of keys a widget may source dynamically, in evaluation order.
var Keys = []Key{
	KeyContent,
	KeyIcon,
	KeyIconColor,
	KeyPicture,
	KeyContentColor,
	KeyBackgroundColor,
	KeyColor,
}

func (k Key) String() string {
	return string(k)
}

// FallsBackToColor reports whether the key uses the shared color when it has no value of its own.
func (k Key) FallsBackToColor() bool {
	switch k {
	case KeyIconColor, KeyContentColor, KeyBackgroundColor:
		return true
	default:
		return false
	}
}

func ParseKey(s string) (Key, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range Keys {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

const expressionOpen = "{"

// IsExpression classifies a configured value. Absent values are literals.
func IsExpression(raw string, present bool) bool {
	return present && strings.Contains(raw, expressionOpen)
}
