// Package chip implements the dashboard widgets: the template chip and its variants, which
// bind attribute keys to live expressions, and the rule-table chips and cards.
package chip

import (
	"context"
	"io"
	"log/slog"

	"chipdeck/internal/binding"
	"chipdeck/internal/hass"
)

// StateSource reads the entity-state store.
type StateSource interface {
	Get(entityID string) (hass.State, bool)
}

// Env is everything a widget needs from its host. All widget methods run on Scheduler.
type Env struct {
	Ctx       context.Context
	Scheduler binding.Scheduler
	Evaluator binding.Evaluator
	States    StateSource
	User      string
	// RequestRender asks the host for a render of this widget on a later queue turn.
	RequestRender func()
	Reporter      binding.Reporter
	Observer      binding.Observer
	Logger        *slog.Logger
	// PictureURL resolves a configured picture path, typically against the Home Assistant base URL.
	PictureURL func(string) string
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return e.Logger
}

func (e Env) state(entityID string) (hass.State, bool) {
	if e.States == nil {
		return hass.State{}, false
	}
	return e.States.Get(entityID)
}

func (e Env) requestRender() {
	if e.RequestRender != nil {
		e.RequestRender()
	}
}

func (e Env) pictureURL(p string) string {
	if p == "" || e.PictureURL == nil {
		return p
	}
	return e.PictureURL(p)
}

// Widget is one mounted dashboard element.
type Widget interface {
	Type() string
	Config() Config
	// SetConfig installs a new configuration. Live bindings whose source changed are torn
	// down before any new binding is opened.
	SetConfig(cfg Config) error
	Attach()
	Detach()
	Render() Visual
	// Updated runs after every render.
	Updated()
	// StateChanged is called when the entity-state store changed.
	StateChanged()
}

// ruleWidget is a widget whose visual is a pure function of its configuration and the
// state store.
type ruleWidget struct {
	typ      string
	env      Env
	cfg      Config
	render   func(cfg Config, env Env) Visual
	validate func(cfg Config) error
}

func (w *ruleWidget) Type() string   { return w.typ }
func (w *ruleWidget) Config() Config { return w.cfg }

func (w *ruleWidget) SetConfig(cfg Config) error {
	if w.validate != nil {
		if err := w.validate(cfg); err != nil {
			return err
		}
	}
	w.cfg = cfg
	w.env.requestRender()
	return nil
}

func (w *ruleWidget) Attach()        {}
func (w *ruleWidget) Detach()        {}
func (w *ruleWidget) Updated()       {}
func (w *ruleWidget) StateChanged()  {}
func (w *ruleWidget) Render() Visual { return w.render(w.cfg, w.env) }

func withActions(v Visual, cfg Config) Visual {
	v.TapAction = cfg.TapAction
	v.HoldAction = cfg.HoldAction
	v.DoubleTapAction = cfg.DoubleTapAction
	return v
}
