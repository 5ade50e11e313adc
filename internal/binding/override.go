package binding

// StateOverride overrides a subset of keys while the entity is in State.
type StateOverride struct {
	State           string  `json:"state" yaml:"state" toml:"state"`
	Content         *string `json:"content,omitempty" yaml:"content,omitempty" toml:"content,omitempty"`
	Icon            *string `json:"icon,omitempty" yaml:"icon,omitempty" toml:"icon,omitempty"`
	IconColor       *string `json:"icon_color,omitempty" yaml:"icon_color,omitempty" toml:"icon_color,omitempty"`
	Picture         *string `json:"picture,omitempty" yaml:"picture,omitempty" toml:"picture,omitempty"`
	ContentColor    *string `json:"content_color,omitempty" yaml:"content_color,omitempty" toml:"content_color,omitempty"`
	BackgroundColor *string `json:"background_color,omitempty" yaml:"background_color,omitempty" toml:"background_color,omitempty"`
	Color           *string `json:"color,omitempty" yaml:"color,omitempty" toml:"color,omitempty"`
}

func (o *StateOverride) field(k Key) *string {
	switch k {
	case KeyContent:
		return o.Content
	case KeyIcon:
		return o.Icon
	case KeyIconColor:
		return o.IconColor
	case KeyPicture:
		return o.Picture
	case KeyContentColor:
		return o.ContentColor
	case KeyBackgroundColor:
		return o.BackgroundColor
	case KeyColor:
		return o.Color
	}
	return nil
}

// Lookup returns the override value for k. Color-like keys fall back to the record's color.
func (o *StateOverride) Lookup(k Key) (string, bool) {
	if o == nil {
		return "", false
	}
	if v := o.field(k); v != nil {
		return *v, true
	}
	if k.FallsBackToColor() && o.Color != nil {
		return *o.Color, true
	}
	return "", false
}

// Set assigns an override value for k and returns the record for chaining.
func (o *StateOverride) Set(k Key, v string) *StateOverride {
	p := &v
	switch k {
	case KeyContent:
		o.Content = p
	case KeyIcon:
		o.Icon = p
	case KeyIconColor:
		o.IconColor = p
	case KeyPicture:
		o.Picture = p
	case KeyContentColor:
		o.ContentColor = p
	case KeyBackgroundColor:
		o.BackgroundColor = p
	case KeyColor:
		o.Color = p
	}
	return o
}

// ResolveOverride finds the first record whose state equals the current state.
// ok is false when the entity has no state in the store.
func ResolveOverride(table []StateOverride, state string, ok bool) *StateOverride {
	if !ok {
		return nil
	}
	for i := range table {
		if table[i].State == state {
			return &table[i]
		}
	}
	return nil
}

// DuplicateStates returns the states that appear more than once in table, in first-seen order.
func DuplicateStates(table []StateOverride) []string {
	seen := make(map[string]int, len(table))
	var out []string
	for _, rec := range table {
		seen[rec.State]++
		if seen[rec.State] == 2 {
			out = append(out, rec.State)
		}
	}
	return out
}
