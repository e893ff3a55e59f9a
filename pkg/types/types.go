package types

import (
	"encoding/json"
	"time"
)

// Message is a single entry in the room's append-only log. Deleted messages
// are tombstoned rather than removed so ids stay stable for late mutations.
type Message struct {
	ID         string     `json:"id"`
	Author     string     `json:"author"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"createdAt"`
	Deleted    bool       `json:"deleted"`
	Edited     bool       `json:"edited"`
	LastEditAt *time.Time `json:"lastEditAt,omitempty"`
	ReadBy     []string   `json:"readBy"`
}

// HasReader reports whether name already appears in the read-receipt set.
func (m *Message) HasReader(name string) bool {
	for _, r := range m.ReadBy {
		if r == name {
			return true
		}
	}
	return false
}

// Envelope is the wire frame for every event in both directions:
// a named event with an opaque JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope wraps a payload for transmission.
func NewEnvelope(event string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: data}, nil
}

// Outbound is the server-to-client frame. Data is marshaled in place by the
// connection writer, so it can hold any JSON-encodable payload.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
