// Package session wires a connection's lifecycle to the message store and
// the broadcast dispatcher. A connection gets its snapshots on connect and
// per-event routing while active; cleanup on close is unconditional.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chatsync/internal/dispatch"
	"chatsync/internal/store"
	"chatsync/internal/websocket"
	"chatsync/pkg/types"
)

// Coordinator routes each connection through connecting → active → closed.
// Inbound events from one connection are handled in arrival order on that
// connection's read loop; connections never block each other here because
// the store serializes its own writes.
type Coordinator struct {
	registry     *websocket.Registry
	store        *store.Store
	dispatcher   *dispatch.Dispatcher
	historyLimit int
	now          func() time.Time
}

// NewCoordinator creates a session coordinator.
func NewCoordinator(registry *websocket.Registry, st *store.Store, dispatcher *dispatch.Dispatcher, historyLimit int) *Coordinator {
	if historyLimit <= 0 {
		historyLimit = store.DefaultHistoryLimit
	}
	return &Coordinator{
		registry:     registry,
		store:        st,
		dispatcher:   dispatcher,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Connect moves a connection into the active state: register it under the
// default name, send the roster and history snapshots to the newcomer only,
// then broadcast the updated roster to everyone including the newcomer.
func (c *Coordinator) Connect(ctx context.Context, connID string, sender websocket.Sender) {
	roster := c.registry.OnConnect(connID, sender)

	if err := c.dispatcher.ToOne(connID, types.EventRoomUsers, roster); err != nil {
		log.Printf("session: roster snapshot to %s failed: %v", connID, err)
	}

	history, err := c.store.ListActive(ctx, c.historyLimit)
	if err != nil {
		log.Printf("session: history snapshot for %s failed: %v", connID, err)
		_ = c.dispatcher.ToOne(connID, types.EventMessageError,
			types.ErrorNotice{Reason: "message history unavailable"})
	} else {
		_ = c.dispatcher.ToOne(connID, types.EventMessageHistory, history)
	}

	c.dispatcher.ToAll(types.EventRoomUsers, c.registry.SnapshotNames())
}

// Disconnect moves a connection to closed: remove it from the roster and
// tell the remaining connections. Safe to call more than once; mutations the
// connection already started still complete and broadcast.
func (c *Coordinator) Disconnect(connID string) {
	c.registry.OnDisconnect(connID)
	c.dispatcher.ToAll(types.EventRoomUsers, c.registry.SnapshotNames())
}

// HandleEvent routes one inbound event. Denied, not-found, and rate-limited
// outcomes are terminal for the event: no broadcast, no error to the caller.
// Store failures surface to the initiator alone as a message-error.
func (c *Coordinator) HandleEvent(ctx context.Context, connID string, env *types.Envelope) error {
	switch env.Event {
	case types.EventSetUsername:
		return c.handleSetUsername(connID, env.Data)
	case types.EventSendMessage:
		return c.handleSendMessage(ctx, connID, env.Data)
	case types.EventDeleteMessage:
		return c.handleDeleteMessage(ctx, connID, env.Data)
	case types.EventEditMessage:
		return c.handleEditMessage(ctx, connID, env.Data)
	case types.EventMessageRead:
		return c.handleMessageRead(ctx, connID, env.Data)
	case types.EventTyping:
		return c.handleTyping(connID, env.Data)
	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownEvent, env.Event)
	}
}

func (c *Coordinator) handleSetUsername(connID string, data json.RawMessage) error {
	var req types.SetUsernameRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: set-username: %v", ErrMalformedPayload, err)
	}

	c.registry.SetName(connID, req.Name)
	c.dispatcher.ToAll(types.EventRoomUsers, c.registry.SnapshotNames())
	return nil
}

func (c *Coordinator) handleSendMessage(ctx context.Context, connID string, data json.RawMessage) error {
	var req types.SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: send-message: %v", ErrMalformedPayload, err)
	}

	// A send keeps the roster in sync with the latest declared name.
	c.registry.SetName(connID, req.User)

	ts := types.ParseTimestamp(req.Time, c.now())
	msg, err := c.store.Append(ctx, req.User, req.Text, ts)
	if err != nil {
		c.notifyError(connID, "message could not be stored")
		return fmt.Errorf("append from %s failed: %w", connID, err)
	}

	c.dispatcher.ToAll(types.EventMessage, msg)
	c.dispatcher.ToAll(types.EventRoomUsers, c.registry.SnapshotNames())
	return nil
}

func (c *Coordinator) handleDeleteMessage(ctx context.Context, connID string, data json.RawMessage) error {
	var req types.DeleteMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: delete-message: %v", ErrMalformedPayload, err)
	}

	outcome, err := c.store.SoftDelete(ctx, req.ID, c.registry.NameOf(connID))
	if err != nil {
		c.notifyError(connID, "delete could not be applied")
		return fmt.Errorf("soft-delete of %s failed: %w", req.ID, err)
	}
	if outcome != store.Applied {
		log.Printf("session: delete of %s by %s: %s", req.ID, connID, outcome)
		return nil
	}

	c.dispatcher.ToAll(types.EventDeleteMessage, types.DeleteBroadcast{ID: req.ID})
	return nil
}

func (c *Coordinator) handleEditMessage(ctx context.Context, connID string, data json.RawMessage) error {
	var req types.EditMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: edit-message: %v", ErrMalformedPayload, err)
	}

	outcome, updated, err := c.store.Edit(ctx, req.ID, c.registry.NameOf(connID), req.NewText, c.now())
	if err != nil {
		c.notifyError(connID, "edit could not be applied")
		return fmt.Errorf("edit of %s failed: %w", req.ID, err)
	}
	if outcome != store.Applied {
		log.Printf("session: edit of %s by %s: %s", req.ID, connID, outcome)
		return nil
	}

	c.dispatcher.ToAll(types.EventEditMessage, types.EditBroadcast{
		ID:       updated.ID,
		NewText:  updated.Body,
		EditTime: *updated.LastEditAt,
	})
	return nil
}

func (c *Coordinator) handleMessageRead(ctx context.Context, connID string, data json.RawMessage) error {
	var req types.MessageReadRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: message-read: %v", ErrMalformedPayload, err)
	}

	reader := c.registry.NameOf(connID)
	outcome, err := c.store.MarkRead(ctx, req.ID, reader)
	if err != nil {
		c.notifyError(connID, "read receipt could not be stored")
		return fmt.Errorf("mark-read of %s failed: %w", req.ID, err)
	}
	if outcome != store.Applied {
		// AlreadyRead and NotFound both end here without a broadcast.
		return nil
	}

	c.dispatcher.ToAll(types.EventMessageRead, types.ReadBroadcast{ID: req.ID, ReaderName: reader})
	return nil
}

// handleTyping is the server side of typing presence: a stateless relay.
// Expiry is a client concern, so no timer lives here.
func (c *Coordinator) handleTyping(connID string, data json.RawMessage) error {
	var req types.TypingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: typing: %v", ErrMalformedPayload, err)
	}

	user := c.registry.SetName(connID, req.User)
	c.dispatcher.ToAllExcept(connID, types.EventTyping, types.TypingBroadcast{User: user, At: c.now()})
	return nil
}

func (c *Coordinator) notifyError(connID, reason string) {
	_ = c.dispatcher.ToOne(connID, types.EventMessageError, types.ErrorNotice{Reason: reason})
}
