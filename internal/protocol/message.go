package protocol

import "encoding/json"

// Event ops pushed to local websocket clients.
const (
	OpChipRendered   = "chip.rendered"
	OpChipRemoved    = "chip.removed"
	OpHassConnection = "hass.connection"
)

type Message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
	Error   *ErrPayload     `json:"error,omitempty"`
}

type ErrPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func MustRaw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// NewEvent builds an event message carrying payload.
func NewEvent(id, op string, payload any) Message {
	return Message{ID: id, Type: "event", Op: op, Payload: MustRaw(payload)}
}
