package presence

import (
	"sync"
	"time"
)

// Notifier emits the local user's typing events when composed text is
// non-empty. The reference behavior emits once per text change and leans on
// the receiver's expiry window; a positive interval adds sender-side
// debouncing without changing wire semantics.
type Notifier struct {
	mu       sync.Mutex
	interval time.Duration
	lastEmit time.Time
	emit     func()
	now      func() time.Time
}

// NewNotifier creates a notifier calling emit for each typing event. An
// interval of zero emits on every change.
func NewNotifier(interval time.Duration, emit func()) *Notifier {
	return &Notifier{
		interval: interval,
		emit:     emit,
		now:      time.Now,
	}
}

// Compose observes the current composed-but-unsent text and reports whether
// a typing event was emitted. Emission is fire-and-forget.
func (n *Notifier) Compose(text string) bool {
	if text == "" {
		return false
	}

	n.mu.Lock()
	if n.interval > 0 && !n.lastEmit.IsZero() && n.now().Sub(n.lastEmit) < n.interval {
		n.mu.Unlock()
		return false
	}
	n.lastEmit = n.now()
	n.mu.Unlock()

	n.emit()
	return true
}
