package websocket

import (
	"sync"

	"github.com/samber/lo"

	"chatsync/pkg/types"
)

// entry is one live connection's roster record.
type entry struct {
	id     string
	name   string
	sender Sender
}

// Recipient pairs a connection id with its write side for fan-out.
type Recipient struct {
	ID     string
	Sender Sender
}

// Registry is the single source of truth for the online roster: one entry
// per live connection id, display name mutable, insertion order preserved so
// roster snapshots are deterministic within a process run. Names are not
// unique keys; two connections may share one.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// OnConnect inserts the connection under the default display name and
// returns the roster including the newcomer.
func (r *Registry) OnConnect(connID string, sender Sender) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[connID]; !exists {
		r.order = append(r.order, connID)
	}
	r.entries[connID] = &entry{id: connID, name: types.AnonymousName, sender: sender}

	return r.snapshotNamesLocked()
}

// SetName sanitizes and stores a declared display name, returning the clean
// form. Unknown connection ids are a no-op and report the default name.
func (r *Registry) SetName(connID, rawName string) string {
	clean := types.SanitizeName(rawName)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.entries[connID]; exists {
		e.name = clean
	}
	return clean
}

// NameOf returns the current display name for a connection. A connection the
// registry never saw reads as Anonymous rather than empty.
func (r *Registry) NameOf(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, exists := r.entries[connID]; exists {
		return e.name
	}
	return types.AnonymousName
}

// OnDisconnect removes the entry. Idempotent: reconnect races may clean up
// the same connection more than once.
func (r *Registry) OnDisconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[connID]; !exists {
		return
	}
	delete(r.entries, connID)
	r.order = lo.Without(r.order, connID)
}

// SnapshotNames returns the roster in registration order, duplicates allowed.
func (r *Registry) SnapshotNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotNamesLocked()
}

func (r *Registry) snapshotNamesLocked() []string {
	return lo.Map(r.order, func(id string, _ int) string {
		return r.entries[id].name
	})
}

// Recipients returns the live connections in registration order for fan-out.
func (r *Registry) Recipients() []Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.order, func(id string, _ int) Recipient {
		return Recipient{ID: id, Sender: r.entries[id].sender}
	})
}

// SenderOf returns the write side for a single connection.
func (r *Registry) SenderOf(connID string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[connID]
	if !exists {
		return nil, false
	}
	return e.sender, true
}

// Stats reports registry size for the health surface.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.entries),
	}
}
