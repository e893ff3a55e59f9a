package dispatch

import (
	"log"

	"chatsync/internal/websocket"
	"chatsync/pkg/types"
)

// Dispatcher fans domain events out to an audience derived from the live
// roster: everyone, everyone but one sender, or a single connection. Pure
// fan-out; no buffering and no retry. A failed write to one recipient is
// logged and skipped so it never blocks delivery to the rest.
type Dispatcher struct {
	registry *websocket.Registry
}

// New creates a dispatcher over the connection registry.
func New(registry *websocket.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// ToAll delivers an event to every live connection.
func (d *Dispatcher) ToAll(event string, payload any) {
	for _, rcpt := range d.registry.Recipients() {
		d.deliver(rcpt, event, payload)
	}
}

// ToAllExcept delivers an event to every live connection except one,
// typically the sender of the event being relayed.
func (d *Dispatcher) ToAllExcept(exceptID, event string, payload any) {
	for _, rcpt := range d.registry.Recipients() {
		if rcpt.ID == exceptID {
			continue
		}
		d.deliver(rcpt, event, payload)
	}
}

// ToOne delivers an event to a single connection.
func (d *Dispatcher) ToOne(connID, event string, payload any) error {
	sender, exists := d.registry.SenderOf(connID)
	if !exists {
		return ErrRecipientNotFound
	}
	d.deliver(websocket.Recipient{ID: connID, Sender: sender}, event, payload)
	return nil
}

func (d *Dispatcher) deliver(rcpt websocket.Recipient, event string, payload any) {
	if err := rcpt.Sender.WriteJSON(types.Outbound{Event: event, Data: payload}); err != nil {
		log.Printf("dispatch: delivery of %q to %s failed: %v", event, rcpt.ID, err)
	}
}
