// Package events carries side-effect signals from the core to whoever owns the UI.
//
// Publishers never hold a reference to their observers. Handlers run synchronously
// on the publishing goroutine, in subscription order, so a signal is observable as
// soon as the publishing call returns.
package events

import (
	"sync"
	"time"
)

// Kind identifies a signal.
type Kind string

const (
	// KindAuthorizationExpired is published by the transport after a protected-route 401.
	KindAuthorizationExpired Kind = "authorization_expired"

	// KindNavigateLogin asks the owner to show the login surface.
	KindNavigateLogin Kind = "navigate_login"

	// KindRefreshCredits asks the owner to refresh credit counters.
	KindRefreshCredits Kind = "refresh_credits"

	// KindSessionChanged reports a session state transition.
	KindSessionChanged Kind = "session_changed"
)

// Event is a single published signal.
type Event struct {
	Kind   Kind
	Path   string // request path or navigation target, when relevant
	Reason string
	At     time.Time
}

// Handler observes events.
type Handler func(Event)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(Event)
}

// Bus is a synchronous fan-out of events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	order    []int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to every handler subscribed at the time of the call.
// Handlers may publish further events; they must not block indefinitely.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	snapshot := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		snapshot = append(snapshot, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		h(ev)
	}
}

// Recorder is a handler that keeps every event it sees. Useful for owners that
// poll rather than react, and for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Handle implements Handler.
func (r *Recorder) Handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

// Drain returns recorded events and forgets them.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}
