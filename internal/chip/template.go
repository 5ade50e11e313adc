package chip

import (
	"chipdeck/internal/binding"
)

// overrideFunc picks the override record for the current entity state.
type overrideFunc func(table []binding.StateOverride, state string, ok bool) *binding.StateOverride

// TemplateChip binds every attribute key to a literal, a per-state override or a live
// expression. Variants customize it by rewriting the configuration and the override lookup.
type TemplateChip struct {
	typ      string
	env      Env
	mgr      *binding.Manager
	attached bool

	source Config
	cfg    Config
	bound  binding.Config

	rewrite  func(Config) Config
	override overrideFunc
}

func newTemplateChip(typ string, env Env, rewrite func(Config) Config, override overrideFunc) *TemplateChip {
	if override == nil {
		override = binding.ResolveOverride
	}
	t := &TemplateChip{
		typ:      typ,
		env:      env,
		rewrite:  rewrite,
		override: override,
	}
	logger := env.logger().With("widget", typ)
	t.mgr = binding.NewManager(env.Ctx, binding.Options{
		Evaluator: env.Evaluator,
		Scheduler: env.Scheduler,
		OnChange:  env.requestRender,
		Reporter:  env.Reporter,
		Observer:  env.Observer,
		Logger:    logger,
	})
	return t
}

// NewTemplateChip builds the plain template chip.
func NewTemplateChip(env Env, cfg Config) (*TemplateChip, error) {
	return newTemplateChip(TypeTemplate, env, nil, nil).init(cfg)
}

func (t *TemplateChip) init(cfg Config) (*TemplateChip, error) {
	if err := t.SetConfig(cfg); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TemplateChip) Type() string { return t.typ }

// Config returns the configuration as given, before any variant rewrite.
func (t *TemplateChip) Config() Config { return t.source }

// Manager exposes the binding manager, mostly for inspection.
func (t *TemplateChip) Manager() *binding.Manager { return t.mgr }

func (t *TemplateChip) SetConfig(cfg Config) error {
	next := withDefaultActions(cfg)
	if t.rewrite != nil {
		next = t.rewrite(next)
	}
	bound := next.Binding(t.env.User)
	t.mgr.Reconcile(t.bound, bound)
	t.source, t.cfg, t.bound = cfg, next, bound
	if t.attached {
		t.mgr.ConnectAll(bound)
	}
	t.env.requestRender()
	return nil
}

func (t *TemplateChip) Attach() {
	t.attached = true
	t.mgr.ConnectAll(t.bound)
}

func (t *TemplateChip) Detach() {
	t.attached = false
	t.mgr.DisconnectAll()
}

func (t *TemplateChip) Updated() {
	if t.attached {
		t.mgr.ConnectAll(t.bound)
	}
}

func (t *TemplateChip) StateChanged() {
	t.mgr.ClearFailures()
}

func (t *TemplateChip) view() binding.View {
	st, ok := t.env.state(t.cfg.Entity)
	if t.cfg.Entity == "" {
		ok = false
	}
	return t.mgr.View(t.bound, t.override(t.bound.States, st.State, ok))
}

func (t *TemplateChip) Render() Visual {
	v := t.view()
	icon := v.Value(binding.KeyIcon, "")
	content := v.Value(binding.KeyContent, "")
	picture := v.Value(binding.KeyPicture, "")

	out := Visual{
		Content:      content,
		ContentColor: rgb(v.Color(binding.KeyContentColor)),
		Background:   rgba(v.Color(binding.KeyBackgroundColor), chipBackgroundAlpha),
	}
	if picture != "" {
		out.Picture = t.env.pictureURL(picture)
		out.AvatarOnly = content == ""
	} else if icon != "" {
		out.Icon = icon
		out.WeatherIcon = IsWeatherIcon(icon)
		out.IconColor = rgb(v.Color(binding.KeyIconColor))
	}
	if out.Content == "" {
		out.ContentColor = ""
	}
	return withActions(out, t.cfg)
}

const chipBackgroundAlpha = 0.1

func withDefaultActions(cfg Config) Config {
	if cfg.TapAction == nil {
		cfg.TapAction = &Action{Action: ActionMoreInfo}
	}
	if cfg.HoldAction == nil {
		cfg.HoldAction = &Action{Action: ActionMoreInfo}
	}
	return cfg
}
