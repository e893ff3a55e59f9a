// Package presence holds the two typing-indicator state machines: the
// client-side aggregator that expires remote typing facts, and the notifier
// that emits the local user's own typing events.
package presence

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the silence window after which a subject's typing fact
// expires unless refreshed.
const DefaultWindow = 2000 * time.Millisecond

// Aggregator tracks which remote subjects are currently typing. Each subject
// owns one cancellable timer; a fresh typing fact cancels and restarts it,
// so activity always extends a full window past the latest event.
type Aggregator struct {
	mu     sync.Mutex
	window time.Duration
	timers map[string]*time.Timer
}

// NewAggregator creates an aggregator with the given expiry window.
// A non-positive window falls back to DefaultWindow.
func NewAggregator(window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{
		window: window,
		timers: make(map[string]*time.Timer),
	}
}

// Refresh marks a subject active and restarts its expiry timer.
func (a *Aggregator) Refresh(subject string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, exists := a.timers[subject]; exists {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(a.window, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		// A refresh may have swapped in a newer timer while this one fired.
		if a.timers[subject] == timer {
			delete(a.timers, subject)
		}
	})
	a.timers[subject] = timer
}

// Clear drops a subject immediately, typically when it leaves the room.
func (a *Aggregator) Clear(subject string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, exists := a.timers[subject]; exists {
		t.Stop()
		delete(a.timers, subject)
	}
}

// IsActive reports whether a subject's typing fact is still live.
func (a *Aggregator) IsActive(subject string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, exists := a.timers[subject]
	return exists
}

// Active returns the currently typing subjects. Membership is exact;
// ordering is normalized to sorted since insertion order carries no meaning.
func (a *Aggregator) Active() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	subjects := make([]string, 0, len(a.timers))
	for subject := range a.timers {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects
}

// Stop releases every pending timer.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for subject, t := range a.timers {
		t.Stop()
		delete(a.timers, subject)
	}
}
