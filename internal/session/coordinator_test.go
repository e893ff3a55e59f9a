package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatsync/internal/dispatch"
	"chatsync/internal/store"
	"chatsync/internal/websocket"
	"chatsync/pkg/types"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []types.Outbound
}

func (f *fakeSender) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, v.(types.Outbound))
	return nil
}

func (f *fakeSender) Close() error { return nil }

func (f *fakeSender) all() []types.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Outbound(nil), f.frames...)
}

func (f *fakeSender) byEvent(event string) []types.Outbound {
	var matched []types.Outbound
	for _, fr := range f.all() {
		if fr.Event == event {
			matched = append(matched, fr)
		}
	}
	return matched
}

func (f *fakeSender) last(t *testing.T, event string) types.Outbound {
	t.Helper()
	matched := f.byEvent(event)
	require.NotEmpty(t, matched, "no %q frame delivered", event)
	return matched[len(matched)-1]
}

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "chatsync.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry := websocket.NewRegistry()
	return NewCoordinator(registry, st, dispatch.New(registry), 0), st
}

func envelope(t *testing.T, event string, payload any) *types.Envelope {
	t.Helper()
	env, err := types.NewEnvelope(event, payload)
	require.NoError(t, err)
	return env
}

func TestConnect_SnapshotsThenRosterBroadcast(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	sender := &fakeSender{}
	c.Connect(ctx, "c1", sender)

	frames := sender.all()
	req.Len(frames, 3)

	// Roster snapshot to the newcomer first, history second, then the
	// roster broadcast which includes the newcomer again.
	req.Equal(types.EventRoomUsers, frames[0].Event)
	req.Equal([]string{types.AnonymousName}, frames[0].Data)
	req.Equal(types.EventMessageHistory, frames[1].Event)
	req.Empty(frames[1].Data)
	req.Equal(types.EventRoomUsers, frames[2].Event)
}

func TestSendMessage_BroadcastsMessageAndRoster(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	alice, bob := &fakeSender{}, &fakeSender{}
	c.Connect(ctx, "c1", alice)
	c.Connect(ctx, "c2", bob)

	err := c.HandleEvent(ctx, "c1", envelope(t, types.EventSendMessage,
		types.SendMessageRequest{User: "Alice", Text: "hi"}))
	req.NoError(err)

	for _, sender := range []*fakeSender{alice, bob} {
		frame := sender.last(t, types.EventMessage)
		msg := frame.Data.(*types.Message)
		req.Equal("Alice", msg.Author)
		req.Equal("hi", msg.Body)
		req.False(msg.Deleted)

		roster := sender.last(t, types.EventRoomUsers)
		req.Contains(roster.Data, "Alice")
	}
}

func TestSendMessage_HistoryVisibleToLateJoiner(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	alice := &fakeSender{}
	c.Connect(ctx, "c1", alice)
	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventSendMessage,
		types.SendMessageRequest{User: "Alice", Text: "one"})))
	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventSendMessage,
		types.SendMessageRequest{User: "Alice", Text: "two"})))

	late := &fakeSender{}
	c.Connect(ctx, "c2", late)

	history := late.last(t, types.EventMessageHistory).Data.([]*types.Message)
	req.Len(history, 2)
	req.Equal("one", history[0].Body)
	req.Equal("two", history[1].Body)
}

func TestSetUsername_BroadcastsRoster(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	alice, bob := &fakeSender{}, &fakeSender{}
	c.Connect(ctx, "c1", alice)
	c.Connect(ctx, "c2", bob)

	err := c.HandleEvent(ctx, "c1", envelope(t, types.EventSetUsername,
		types.SetUsernameRequest{Name: "Alice"}))
	req.NoError(err)

	roster := bob.last(t, types.EventRoomUsers)
	req.Equal([]string{"Alice", types.AnonymousName}, roster.Data)
}

func TestDeleteMessage_DeniedForNonAuthor(t *testing.T) {
	req := require.New(t)
	c, st := newTestCoordinator(t)
	ctx := context.Background()

	alice, bob := &fakeSender{}, &fakeSender{}
	c.Connect(ctx, "c1", alice)
	c.Connect(ctx, "c2", bob)

	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventSetUsername,
		types.SetUsernameRequest{Name: "Alice"})))
	req.NoError(c.HandleEvent(ctx, "c2", envelope(t, types.EventSetUsername,
		types.SetUsernameRequest{Name: "Bob"})))

	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventSendMessage,
		types.SendMessageRequest{User: "Alice", Text: "hers"})))
	msg := alice.last(t, types.EventMessage).Data.(*types.Message)

	// Bob tries to delete Alice's message: no broadcast, state unchanged.
	req.NoError(c.HandleEvent(ctx, "c2", envelope(t, types.EventDeleteMessage,
		types.DeleteMessageRequest{ID: msg.ID})))

	req.Empty(alice.byEvent(types.EventDeleteMessage))
	req.Empty(bob.byEvent(types.EventDeleteMessage))

	active, err := st.ListActive(ctx, 0)
	req.NoError(err)
	req.Len(active, 1)
	req.Equal(msg.ID, active[0].ID)
}

func TestDeleteMessage_AppliedBroadcastsToAll(t *testing.T) {
	req := require.New(t)
	c, st := newTestCoordinator(t)
	ctx := context.Background()

	alice, bob := &fakeSender{}, &fakeSender{}
	c.Connect(ctx, "c1", alice)
	c.Connect(ctx, "c2", bob)

	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventSendMessage,
		types.SendMessageRequest{User: "Alice", Text: "going"})))
	msg := alice.last(t, types.EventMessage).Data.(*types.Message)

	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventDeleteMessage,
		types.DeleteMessageRequest{ID: msg.ID})))

	for _, sender := range []*fakeSender{alice, bob} {
		del := sender.last(t, types.EventDeleteMessage).Data.(types.DeleteBroadcast)
		req.Equal(msg.ID, del.ID)
	}

	active, err := st.ListActive(ctx, 0)
	req.NoError(err)
	req.Empty(active)
}

func TestEditMessage_AppliedBroadcastsNewBody(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	alice := &fakeSender{}
	c.Connect(ctx, "c1", alice)

	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventSendMessage,
		types.SendMessageRequest{User: "Alice", Text: "tpyo"})))
	msg := alice.last(t, types.EventMessage).Data.(*types.Message)

	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventEditMessage,
		types.EditMessageRequest{ID: msg.ID, NewText: "typo"})))

	edit := alice.last(t, types.EventEditMessage).Data.(types.EditBroadcast)
	req.Equal(msg.ID, edit.ID)
	req.Equal("typo", edit.NewText)
	req.False(edit.EditTime.IsZero())
}

func TestMessageRead_SecondReceiptIsSilent(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	alice, bob := &fakeSender{}, &fakeSender{}
	c.Connect(ctx, "c1", alice)
	c.Connect(ctx, "c2", bob)
	req.NoError(c.HandleEvent(ctx, "c2", envelope(t, types.EventSetUsername,
		types.SetUsernameRequest{Name: "Bob"})))

	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventSendMessage,
		types.SendMessageRequest{User: "Alice", Text: "hi"})))
	msg := alice.last(t, types.EventMessage).Data.(*types.Message)

	req.NoError(c.HandleEvent(ctx, "c2", envelope(t, types.EventMessageRead,
		types.MessageReadRequest{ID: msg.ID})))
	req.NoError(c.HandleEvent(ctx, "c2", envelope(t, types.EventMessageRead,
		types.MessageReadRequest{ID: msg.ID})))

	receipts := alice.byEvent(types.EventMessageRead)
	req.Len(receipts, 1)
	read := receipts[0].Data.(types.ReadBroadcast)
	req.Equal(msg.ID, read.ID)
	req.Equal("Bob", read.ReaderName)
}

func TestTyping_RelayedToAllExceptSender(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	alice, bob, carol := &fakeSender{}, &fakeSender{}, &fakeSender{}
	c.Connect(ctx, "c1", alice)
	c.Connect(ctx, "c2", bob)
	c.Connect(ctx, "c3", carol)

	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventTyping,
		types.TypingRequest{User: "Alice"})))

	req.Empty(alice.byEvent(types.EventTyping))
	for _, sender := range []*fakeSender{bob, carol} {
		typing := sender.last(t, types.EventTyping).Data.(types.TypingBroadcast)
		req.Equal("Alice", typing.User)
		req.False(typing.At.IsZero())
	}
}

func TestDisconnect_BroadcastsRemainingRoster(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	alice, bob := &fakeSender{}, &fakeSender{}
	c.Connect(ctx, "c1", alice)
	c.Connect(ctx, "c2", bob)
	req.NoError(c.HandleEvent(ctx, "c2", envelope(t, types.EventSetUsername,
		types.SetUsernameRequest{Name: "Bob"})))

	c.Disconnect("c1")
	c.Disconnect("c1") // cleanup may run more than once

	roster := bob.last(t, types.EventRoomUsers)
	req.Equal([]string{"Bob"}, roster.Data)
}

func TestMutationCompletesAfterInitiatorDisconnects(t *testing.T) {
	req := require.New(t)
	c, st := newTestCoordinator(t)
	ctx := context.Background()

	alice, bob := &fakeSender{}, &fakeSender{}
	c.Connect(ctx, "c1", alice)
	c.Connect(ctx, "c2", bob)

	// The initiator vanishes before its event is processed; the mutation
	// still lands and still broadcasts to whoever remains.
	c.Disconnect("c1")
	err := c.HandleEvent(ctx, "c1", envelope(t, types.EventSendMessage,
		types.SendMessageRequest{User: "Alice", Text: "parting shot"}))
	req.NoError(err)

	msg := bob.last(t, types.EventMessage).Data.(*types.Message)
	req.Equal("parting shot", msg.Body)

	active, err := st.ListActive(ctx, 0)
	req.NoError(err)
	req.Len(active, 1)
}

func TestSendMessage_DeclaredTimestampRespected(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	alice := &fakeSender{}
	c.Connect(ctx, "c1", alice)

	declared := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	req.NoError(c.HandleEvent(ctx, "c1", envelope(t, types.EventSendMessage,
		types.SendMessageRequest{User: "Alice", Text: "hi", Time: declared.Format(time.RFC3339)})))

	msg := alice.last(t, types.EventMessage).Data.(*types.Message)
	req.True(msg.CreatedAt.Equal(declared))
}

func TestHandleEvent_UnknownEvent(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)

	err := c.HandleEvent(context.Background(), "c1",
		&types.Envelope{Event: "bogus", Data: json.RawMessage(`{}`)})
	req.ErrorIs(err, types.ErrUnknownEvent)
}

func TestHandleEvent_MalformedPayload(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t)

	err := c.HandleEvent(context.Background(), "c1",
		&types.Envelope{Event: types.EventSendMessage, Data: json.RawMessage(`"not an object"`)})
	req.ErrorIs(err, ErrMalformedPayload)
}

func TestConvergence_AllClientsSeeSameOrderedHistory(t *testing.T) {
	req := require.New(t)
	c, st := newTestCoordinator(t)
	ctx := context.Background()

	senders := map[string]*fakeSender{"c1": {}, "c2": {}, "c3": {}}
	for id, s := range senders {
		c.Connect(ctx, id, s)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, connID := range []string{"c1", "c2", "c3", "c1", "c2"} {
		req.NoError(c.HandleEvent(ctx, connID, envelope(t, types.EventSendMessage,
			types.SendMessageRequest{
				User: "user-" + connID,
				Text: "msg",
				Time: base.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
			})))
	}

	active, err := st.ListActive(ctx, 0)
	req.NoError(err)
	req.Len(active, 5)

	wantIDs := make([]string, len(active))
	for i, m := range active {
		wantIDs[i] = m.ID
	}

	// Every client's delivered stream carries the same message set in the
	// same createdAt-ascending order as the store snapshot.
	for id, s := range senders {
		frames := s.byEvent(types.EventMessage)
		req.Len(frames, 5, "client %s", id)
		for i, fr := range frames {
			req.Equal(wantIDs[i], fr.Data.(*types.Message).ID, "client %s position %d", id, i)
		}
	}
}
