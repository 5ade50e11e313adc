package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	StateUnavailable = "unavailable"
	StateUnknown     = "unknown"
)

type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Domain is the part of the entity id before the first dot.
func (s State) Domain() string {
	domain, _, _ := strings.Cut(s.EntityID, ".")
	return domain
}

func (s State) Available() bool {
	return s.State != StateUnavailable
}

func (s State) Attr(name string) (any, bool) {
	v, ok := s.Attributes[name]
	return v, ok
}

// AttrString renders a scalar attribute as text. Missing attributes and nulls yield false.
func (s State) AttrString(name string) (string, bool) {
	v, ok := s.Attributes[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// AttrFloat parses a numeric attribute, accepting numeric strings.
func (s State) AttrFloat(name string) (float64, bool) {
	v, ok := s.Attributes[name]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Float parses the state itself as a number.
func (s State) Float() (float64, bool) {
	return toFloat(s.State)
}

func (s State) FriendlyName() string {
	if name, ok := s.AttrString("friendly_name"); ok && name != "" {
		return name
	}
	return s.EntityID
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// States is an entity-state snapshot keyed by entity id.
type States map[string]State

// Get returns the state of entityID. A missing entity is not an error.
func (s States) Get(entityID string) (State, bool) {
	if s == nil || entityID == "" {
		return State{}, false
	}
	st, ok := s[entityID]
	return st, ok
}

// Apply folds a state change into the snapshot. A nil new state removes the entity.
func (s States) Apply(ch StateChange) {
	if ch.NewState == nil {
		delete(s, ch.EntityID)
		return
	}
	s[ch.EntityID] = *ch.NewState
}

type StateChange struct {
	EntityID string `json:"entity_id"`
	OldState *State `json:"old_state"`
	NewState *State `json:"new_state"`
}

// FetchStates loads every entity state with get_states.
func (c *Client) FetchStates(ctx context.Context) (States, error) {
	raw, err := c.Call(ctx, map[string]any{"type": "get_states"})
	if err != nil {
		return nil, fmt.Errorf("get_states: %w", err)
	}
	var list []State
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode states: %w", err)
	}
	out := make(States, len(list))
	for _, st := range list {
		out[st.EntityID] = st
	}
	return out, nil
}

// SubscribeStateChanged delivers every state_changed event to fn and returns the
// subscription id for Unsubscribe.
func (c *Client) SubscribeStateChanged(ctx context.Context, fn func(StateChange)) (int64, error) {
	return c.Subscribe(ctx, map[string]any{"type": "subscribe_events", "event_type": "state_changed"}, func(raw json.RawMessage) {
		var ev struct {
			Data StateChange `json:"data"`
		}
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.logger.Warn("state_changed event not decodable", "err", err)
			return
		}
		if ev.Data.EntityID == "" {
			return
		}
		fn(ev.Data)
	})
}
