package pathsync

import (
	"sync"

	"github.com/solaius/pathkeeper/pkg/entity"
)

// ChangeEvent describes one change to an entity's active path. OldPath is
// nil for an entity's first version; NewPath is empty when a lifecycle
// operation removed the active path without activating a replacement.
// Group-only updates never produce an event.
type ChangeEvent struct {
	Ref     entity.Ref
	OldPath *string
	NewPath string
	Version int
}

// ChangeListener receives change events. Listeners run synchronously on the
// syncing goroutine after the transaction committed and must not block.
type ChangeListener func(ChangeEvent)

// Notifier fans change events out to subscribed listeners.
type Notifier struct {
	mu        sync.RWMutex
	listeners []ChangeListener
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe adds a listener. There is no unsubscribe; subscription happens
// once at startup.
func (n *Notifier) Subscribe(l ChangeListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Publish delivers the event to every listener in subscription order.
func (n *Notifier) Publish(ev ChangeEvent) {
	n.mu.RLock()
	listeners := make([]ChangeListener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
