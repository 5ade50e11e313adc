package binding

// View resolves key values for one render. Precedence per key:
// matching state override, cached expression result, raw configured text, caller default.
type View struct {
	Config   Config
	Override *StateOverride
	results  func(Key) (string, bool)
}

// NewView builds a View over an explicit result source. A nil source means no results.
func NewView(cfg Config, override *StateOverride, results map[Key]string) View {
	return View{
		Config:   cfg,
		Override: override,
		results: func(k Key) (string, bool) {
			v, ok := results[k]
			return v, ok
		},
	}
}

func (v View) Value(k Key, def string) string {
	if val, ok := v.Override.Lookup(k); ok {
		return val
	}
	raw, present := v.Config.Value(k)
	if IsExpression(raw, present) && v.results != nil {
		if res, ok := v.results(k); ok {
			return orDefault(res, def)
		}
	}
	if present {
		return orDefault(raw, def)
	}
	return def
}

// Color resolves a color-like key, defaulting to the resolved shared color.
func (v View) Color(k Key) string {
	shared := v.Value(KeyColor, "")
	if k == KeyColor {
		return shared
	}
	return v.Value(k, shared)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
