package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatsync/pkg/types"
)

func mustEnvelope(t *testing.T, event string, payload any) *types.Envelope {
	t.Helper()
	env, err := types.NewEnvelope(event, payload)
	require.NoError(t, err)
	return env
}

func TestApply_RoutesLiveStream(t *testing.T) {
	req := require.New(t)
	r, _ := newTestReconciler(t, true)

	req.NoError(r.Apply(mustEnvelope(t, types.EventMessageHistory,
		[]*types.Message{msg("m1", "one")})))
	req.NoError(r.Apply(mustEnvelope(t, types.EventMessage, msg("m2", "two"))))
	req.NoError(r.Apply(mustEnvelope(t, types.EventRoomUsers, []string{"Alice", "Bob"})))
	req.NoError(r.Apply(mustEnvelope(t, types.EventTyping,
		types.TypingBroadcast{User: "Bob", At: time.Now()})))
	req.NoError(r.Apply(mustEnvelope(t, types.EventMessageRead,
		types.ReadBroadcast{ID: "m1", ReaderName: "Bob"})))
	req.NoError(r.Apply(mustEnvelope(t, types.EventEditMessage,
		types.EditBroadcast{ID: "m2", NewText: "two!", EditTime: time.Now()})))
	req.NoError(r.Apply(mustEnvelope(t, types.EventDeleteMessage,
		types.DeleteBroadcast{ID: "m1"})))

	visible := r.Messages()
	req.Len(visible, 1)
	req.Equal("m2", visible[0].ID)
	req.Equal("two!", visible[0].Body)
	req.Equal([]string{"Alice", "Bob"}, r.Roster())
	req.Equal([]string{"Bob"}, r.TypingSubjects())
}

func TestApply_UnknownEvent(t *testing.T) {
	req := require.New(t)
	r, _ := newTestReconciler(t, true)

	err := r.Apply(mustEnvelope(t, "bogus", map[string]string{}))
	req.ErrorIs(err, types.ErrUnknownEvent)
}

func TestApply_EmptyEventName(t *testing.T) {
	req := require.New(t)
	r, _ := newTestReconciler(t, true)

	err := r.Apply(mustEnvelope(t, "", map[string]string{}))
	req.ErrorIs(err, types.ErrEmptyEventName)
}

func TestApply_MessageErrorIsIgnored(t *testing.T) {
	req := require.New(t)
	r, _ := newTestReconciler(t, true)

	req.NoError(r.Apply(mustEnvelope(t, types.EventMessageError,
		types.ErrorNotice{Reason: "message could not be stored"})))
	req.Empty(r.Messages())
}
