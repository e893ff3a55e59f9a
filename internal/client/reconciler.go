// Package client holds the client-side reconciliation logic. It merges the
// bulk history snapshot with the live event stream and tracks scroll
// position to pick auto-scroll over an unseen-count badge. Presentation is
// outside this package; it consumes the accessors.
package client

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chatsync/internal/presence"
	"chatsync/pkg/types"
)

// bottomTolerance is the pixel margin within which a scroll position still
// counts as "at bottom".
const bottomTolerance = 24.0

// localIDPrefix marks optimistic local-echo messages, which carry a locally
// generated id and are never reconciled with the store.
const localIDPrefix = "local-"

// Transport is the opaque bidirectional event channel the reconciler emits
// through. It hides the wire library entirely.
type Transport interface {
	Connected() bool
	Emit(event string, payload any) error
}

// Reconciler maintains a single client's consistent view of the room.
type Reconciler struct {
	mu        sync.Mutex
	transport Transport
	self      string
	messages  []*types.Message
	roster    []string
	atBottom  bool
	unseen    int
	typing    *presence.Aggregator
	notifier  *presence.Notifier
	now       func() time.Time
}

// New creates a reconciler for the named local user. typingWindow <= 0 uses
// the standard expiry; debounce <= 0 emits a typing event per text change.
func New(transport Transport, selfName string, typingWindow, debounce time.Duration) *Reconciler {
	r := &Reconciler{
		transport: transport,
		self:      types.SanitizeName(selfName),
		atBottom:  true,
		typing:    presence.NewAggregator(typingWindow),
		now:       time.Now,
	}
	r.notifier = presence.NewNotifier(debounce, r.emitTyping)
	return r
}

// SetName changes the local display name and tells the server.
func (r *Reconciler) SetName(name string) error {
	clean := types.SanitizeName(name)

	r.mu.Lock()
	r.self = clean
	r.mu.Unlock()

	return r.transport.Emit(types.EventSetUsername, types.SetUsernameRequest{Name: clean})
}

// ApplyHistory replaces the visible sequence with a fresh snapshot. The
// snapshot is assumed current, so the view snaps to the bottom and the
// unseen badge clears. Local-echo messages survive the replacement: they
// were never sent, so no snapshot will ever contain them.
func (r *Reconciler) ApplyHistory(history []*types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	locals := lo.Filter(r.messages, func(m *types.Message, _ int) bool {
		return strings.HasPrefix(m.ID, localIDPrefix)
	})

	r.messages = make([]*types.Message, 0, len(history)+len(locals))
	for _, m := range history {
		if !m.Deleted {
			r.messages = append(r.messages, m)
		}
	}
	r.messages = append(r.messages, locals...)

	r.atBottom = true
	r.unseen = 0
}

// ApplyMessage appends a live message. When the view is scrolled away from
// the bottom the unseen count grows instead of the view moving.
func (r *Reconciler) ApplyMessage(msg *types.Message) {
	if msg == nil || msg.Deleted {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, msg)
	if !r.atBottom {
		r.unseen++
	}
}

// ApplyDelete removes a message from the visible sequence. Filtering at
// ingestion is equivalent to display-time exclusion and cheaper.
func (r *Reconciler) ApplyDelete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = lo.Filter(r.messages, func(m *types.Message, _ int) bool {
		return m.ID != id
	})
}

// ApplyEdit rewrites a message body in place.
func (r *Reconciler) ApplyEdit(id, newText string, editTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if m.ID == id {
			m.Body = newText
			m.Edited = true
			t := editTime
			m.LastEditAt = &t
			return
		}
	}
}

// ApplyRead records a broadcast read receipt, keeping set semantics.
func (r *Reconciler) ApplyRead(id, reader string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if m.ID == id {
			if !m.HasReader(reader) {
				m.ReadBy = append(m.ReadBy, reader)
			}
			return
		}
	}
}

// ApplyRoster replaces the online-user view.
func (r *Reconciler) ApplyRoster(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.roster = append([]string(nil), names...)
}

// ApplyTyping ingests a remote typing fact. The local user's own relayed
// events are ignored; everyone else gets a refreshed expiry window.
func (r *Reconciler) ApplyTyping(user string) {
	r.mu.Lock()
	self := r.self
	r.mu.Unlock()

	if user == self {
		return
	}
	r.typing.Refresh(user)
}

// ObserveScroll recomputes the at-bottom state from a scroll observation.
// Near-bottom within the tolerance counts as bottom; arriving there clears
// the unseen badge.
func (r *Reconciler) ObserveScroll(offset, viewport, content float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	atBottom := content-(offset+viewport) <= bottomTolerance
	if atBottom && !r.atBottom {
		r.unseen = 0
	}
	r.atBottom = atBottom
}

// JumpToNewest is the explicit "jump to newest" action: scroll to the end
// and clear the badge immediately, ahead of the next scroll observation.
func (r *Reconciler) JumpToNewest() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.atBottom = true
	r.unseen = 0
}

// Send emits a message when connected. Disconnected sends fall back to an
// optimistic local echo: visible in this client only, no retry, never
// reconciled once connectivity returns.
func (r *Reconciler) Send(text string) (*types.Message, error) {
	r.mu.Lock()
	self := r.self
	now := r.now()
	r.mu.Unlock()

	if r.transport.Connected() {
		err := r.transport.Emit(types.EventSendMessage, types.SendMessageRequest{
			User: self,
			Text: text,
			Time: now.Format(time.RFC3339),
		})
		if err != nil {
			return nil, fmt.Errorf("send failed: %w", err)
		}
		return nil, nil
	}

	echo := &types.Message{
		ID:        localIDPrefix + uuid.NewString(),
		Author:    self,
		Body:      text,
		CreatedAt: now,
		ReadBy:    []string{},
	}

	r.mu.Lock()
	r.messages = append(r.messages, echo)
	if !r.atBottom {
		r.unseen++
	}
	r.mu.Unlock()

	return echo, nil
}

// Compose observes the composer's current text, emitting a self-typing
// event whenever it is non-empty.
func (r *Reconciler) Compose(text string) {
	r.notifier.Compose(text)
}

func (r *Reconciler) emitTyping() {
	r.mu.Lock()
	self := r.self
	r.mu.Unlock()

	if err := r.transport.Emit(types.EventTyping, types.TypingRequest{User: self}); err != nil {
		// Fire-and-forget; the receiver-side expiry absorbs lost events.
		return
	}
}

// Messages returns the visible ordered sequence.
func (r *Reconciler) Messages() []*types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.Message(nil), r.messages...)
}

// Roster returns the latest online-user snapshot.
func (r *Reconciler) Roster() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.roster...)
}

// TypingSubjects returns the remote subjects currently typing.
func (r *Reconciler) TypingSubjects() []string {
	return r.typing.Active()
}

// UnseenCount returns the number of messages that arrived while scrolled up.
func (r *Reconciler) UnseenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unseen
}

// AtBottom reports whether the view is following new messages.
func (r *Reconciler) AtBottom() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.atBottom
}

// Close releases the typing timers.
func (r *Reconciler) Close() {
	r.typing.Stop()
}
