package client

import (
	"encoding/json"
	"fmt"

	"chatsync/pkg/types"
)

// Apply routes one inbound envelope from the live stream into the
// reconciler. Unknown events are reported, not fatal: the stream keeps
// flowing past them.
func (r *Reconciler) Apply(env *types.Envelope) error {
	if env.Event == "" {
		return types.ErrEmptyEventName
	}

	switch env.Event {
	case types.EventMessageHistory:
		var history []*types.Message
		if err := json.Unmarshal(env.Data, &history); err != nil {
			return fmt.Errorf("message-history payload: %w", err)
		}
		r.ApplyHistory(history)

	case types.EventMessage:
		var msg types.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return fmt.Errorf("message payload: %w", err)
		}
		r.ApplyMessage(&msg)

	case types.EventDeleteMessage:
		var del types.DeleteBroadcast
		if err := json.Unmarshal(env.Data, &del); err != nil {
			return fmt.Errorf("delete-message payload: %w", err)
		}
		r.ApplyDelete(del.ID)

	case types.EventEditMessage:
		var edit types.EditBroadcast
		if err := json.Unmarshal(env.Data, &edit); err != nil {
			return fmt.Errorf("edit-message payload: %w", err)
		}
		r.ApplyEdit(edit.ID, edit.NewText, edit.EditTime)

	case types.EventMessageRead:
		var read types.ReadBroadcast
		if err := json.Unmarshal(env.Data, &read); err != nil {
			return fmt.Errorf("message-read payload: %w", err)
		}
		r.ApplyRead(read.ID, read.ReaderName)

	case types.EventRoomUsers:
		var names []string
		if err := json.Unmarshal(env.Data, &names); err != nil {
			return fmt.Errorf("room-users payload: %w", err)
		}
		r.ApplyRoster(names)

	case types.EventTyping:
		var typing types.TypingBroadcast
		if err := json.Unmarshal(env.Data, &typing); err != nil {
			return fmt.Errorf("typing payload: %w", err)
		}
		r.ApplyTyping(typing.User)

	case types.EventMessageError:
		// Surfaced to the presentation layer via logs only; the view state
		// does not change on a server-side store failure.

	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownEvent, env.Event)
	}

	return nil
}
