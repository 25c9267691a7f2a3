package events

import (
	"context"
	"fmt"
	"sync"
)

// Kind discriminates purge notifications.
type Kind int

const (
	Purging Kind = iota
	Purged
)

func (k Kind) String() string {
	switch k {
	case Purging:
		return "purging"
	case Purged:
		return "purged"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Notification is dispatched around the hard delete of a single record.
type Notification struct {
	Kind   Kind
	Model  string
	Record any
	RunID  string
}

// Listener handles a notification. A non-nil result halts dispatch to the
// listeners registered after it.
type Listener func(ctx context.Context, n Notification) (any, error)

// Notifier dispatches notifications with halting semantics.
type Notifier interface {
	Until(ctx context.Context, n Notification) (any, error)
	Name(n Notification) string
}

// Bus is an in-process Notifier keyed by event name.
type Bus struct {
	namespace string

	mu        sync.RWMutex
	listeners map[string][]Listener
	wildcard  []Listener
}

// NewBus creates a bus whose event names are prefixed by namespace.
func NewBus(namespace string) *Bus {
	return &Bus{namespace: namespace, listeners: map[string][]Listener{}}
}

// Name returns the event name of n, e.g. "garbageman.purging: App.Post".
func (b *Bus) Name(n Notification) string {
	return EventName(b.namespace, n.Kind, n.Model)
}

// EventName formats the name listeners subscribe to.
func EventName(namespace string, kind Kind, model string) string {
	return fmt.Sprintf("%s.%s: %s", namespace, kind, model)
}

// Listen registers l for one event name.
func (b *Bus) Listen(event string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[event] = append(b.listeners[event], l)
}

// ListenAll registers l for every event. Wildcard listeners run after the
// named ones.
func (b *Bus) ListenAll(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, l)
}

// Until calls the listeners for n in registration order and returns the
// first non-nil result.
func (b *Bus) Until(ctx context.Context, n Notification) (any, error) {
	name := b.Name(n)

	b.mu.RLock()
	ls := make([]Listener, 0, len(b.listeners[name])+len(b.wildcard))
	ls = append(ls, b.listeners[name]...)
	ls = append(ls, b.wildcard...)
	b.mu.RUnlock()

	for _, l := range ls {
		res, err := l(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("listener for %s: %w", name, err)
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}
