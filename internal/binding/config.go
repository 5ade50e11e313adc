package binding

import (
	"maps"
	"reflect"
	"slices"
)

// Config is the per-render snapshot the Manager works from. It is replaced wholesale on
// every update and must not be mutated after it has been handed to a Manager.
type Config struct {
	Entity    string
	EntityIDs []string
	// Raw holds the configured text per key. A missing key means "not configured",
	// which is different from an empty string.
	Raw    map[Key]string
	States []StateOverride
	// Variables are user-declared template variables. Changing them re-subscribes every key.
	Variables map[string]any
	// Ambient variables are forwarded to the evaluator but never trigger a re-subscription.
	// Variables win on name clashes.
	Ambient map[string]any
}

func (c Config) Value(k Key) (string, bool) {
	if c.Raw == nil {
		return "", false
	}
	v, ok := c.Raw[k]
	return v, ok
}

func (c Config) IsExpression(k Key) bool {
	v, ok := c.Value(k)
	return IsExpression(v, ok)
}

// ExpressionKeys lists the configured keys classified as expressions.
func (c Config) ExpressionKeys() []Key {
	out := make([]Key, 0, len(Keys))
	for _, k := range Keys {
		if c.IsExpression(k) {
			out = append(out, k)
		}
	}
	return out
}

// RequestVariables merges the ambient and declared variables for one evaluation.
func (c Config) RequestVariables() map[string]any {
	if len(c.Ambient) == 0 && len(c.Variables) == 0 {
		return nil
	}
	out := make(map[string]any, len(c.Ambient)+len(c.Variables))
	maps.Copy(out, c.Ambient)
	maps.Copy(out, c.Variables)
	return out
}

// changed reports whether k must be torn down when moving from prev to next.
func changed(prev, next Config, k Key) bool {
	if prev.Entity != next.Entity || !slices.Equal(prev.EntityIDs, next.EntityIDs) {
		return true
	}
	if (len(prev.Variables) > 0 || len(next.Variables) > 0) && !reflect.DeepEqual(prev.Variables, next.Variables) {
		return true
	}
	pv, pok := prev.Value(k)
	nv, nok := next.Value(k)
	return pok != nok || pv != nv
}
