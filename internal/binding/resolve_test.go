package binding

import "testing"

func strp(s string) *string { return &s }

func TestIsExpression(t *testing.T) {
	cases := []struct {
		raw     string
		present bool
		want    bool
	}{
		{"{{ states('sun.sun') }}", true, true},
		{"{% if x %}a{% endif %}", true, true},
		{"mdi:lamp", true, false},
		{"", true, false},
		{"{", false, false},
	}
	for _, tc := range cases {
		if got := IsExpression(tc.raw, tc.present); got != tc.want {
			t.Fatalf("IsExpression(%q, %v) = %v, want %v", tc.raw, tc.present, got, tc.want)
		}
	}
}

func TestResolveOverride_FirstMatchWins(t *testing.T) {
	table := []StateOverride{
		{State: "on", Icon: strp("mdi:first")},
		{State: "off", Icon: strp("mdi:off")},
		{State: "on", Icon: strp("mdi:second")},
	}
	rec := ResolveOverride(table, "on", true)
	if got, _ := rec.Lookup(KeyIcon); got != "mdi:first" {
		t.Fatalf("expected first record, got %q", got)
	}
	if ResolveOverride(table, "on", false) != nil {
		t.Fatalf("unavailable state must not match")
	}
	if ResolveOverride(table, "unknown", true) != nil {
		t.Fatalf("unexpected match")
	}
	if dups := DuplicateStates(table); len(dups) != 1 || dups[0] != "on" {
		t.Fatalf("unexpected duplicates: %v", dups)
	}
}

func TestView_DefaultsWhenNothingConfigured(t *testing.T) {
	v := NewView(Config{}, nil, nil)
	for _, k := range Keys {
		if got := v.Value(k, "fallback"); got != "fallback" {
			t.Fatalf("%s: expected default, got %q", k, got)
		}
	}
}

func TestView_OverrideBeatsCachedResult(t *testing.T) {
	cfg := Config{Raw: map[Key]string{KeyIcon: "{{ icon }}", KeyColor: "{{ color }}"}}
	rec := &StateOverride{State: "on", Icon: strp("mdi:override"), Color: strp("red")}
	results := map[Key]string{KeyIcon: "mdi:live", KeyColor: "blue"}

	v := NewView(cfg, rec, results)
	if got := v.Value(KeyIcon, ""); got != "mdi:override" {
		t.Fatalf("expected override icon, got %q", got)
	}
	if got := v.Color(KeyIconColor); got != "red" {
		t.Fatalf("expected override color fallback, got %q", got)
	}

	v = NewView(cfg, nil, results)
	if got := v.Value(KeyIcon, ""); got != "mdi:live" {
		t.Fatalf("expected live icon, got %q", got)
	}
}

func TestView_PendingExpressionShowsRawText(t *testing.T) {
	cfg := Config{Raw: map[Key]string{KeyContent: "{{ states(entity) }}"}}
	if got := NewView(cfg, nil, nil).Value(KeyContent, "x"); got != "{{ states(entity) }}" {
		t.Fatalf("expected raw text before first delivery, got %q", got)
	}
	got := NewView(cfg, nil, map[Key]string{KeyContent: ""}).Value(KeyContent, "x")
	if got != "x" {
		t.Fatalf("empty result should fall to default, got %q", got)
	}
}

func TestView_TemplateOverrideScenario(t *testing.T) {
	cfg := Config{
		Entity: "switch.heater",
		Raw:    map[Key]string{KeyIcon: "mdi:radiator"},
		States: []StateOverride{{State: "on", Color: strp("red")}},
	}

	on := NewView(cfg, ResolveOverride(cfg.States, "on", true), nil)
	if got := on.Color(KeyColor); got != "red" {
		t.Fatalf("expected red while on, got %q", got)
	}
	if got := on.Color(KeyBackgroundColor); got != "red" {
		t.Fatalf("background should use override color, got %q", got)
	}

	off := NewView(cfg, ResolveOverride(cfg.States, "off", true), nil)
	if got := off.Color(KeyColor); got != "" {
		t.Fatalf("expected no color while off, got %q", got)
	}
	if got := off.Value(KeyIcon, ""); got != "mdi:radiator" {
		t.Fatalf("expected literal icon, got %q", got)
	}
}

func TestView_ExplicitKeyColorBeatsSharedColor(t *testing.T) {
	cfg := Config{Raw: map[Key]string{KeyColor: "blue", KeyIconColor: "amber"}}
	v := NewView(cfg, nil, nil)
	if got := v.Color(KeyIconColor); got != "amber" {
		t.Fatalf("expected amber, got %q", got)
	}
	if got := v.Color(KeyContentColor); got != "blue" {
		t.Fatalf("expected blue, got %q", got)
	}
}
