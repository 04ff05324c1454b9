// Package eventbus is reminderd's in-process fanout of pipeline events.
package eventbus

import (
	"sync"
	"time"
)

// Type names an event kind.
type Type string

const (
	TypeReminderFired Type = "reminder.fired"
	TypeResyncDone    Type = "resync.done"
	TypePlantAdded    Type = "plant.added"
	TypeCareLogged    Type = "care.logged"
)

// Event is a small in-memory signal. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Event struct {
	Type Type
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It starts no goroutines.
func New() Bus { return &bus{subs: make(map[*subscriber]struct{})} }

type subscriber struct {
	ch chan Event
}

type bus struct {
	// mu is held for reading while sending, so unsubscribe (a writer) can
	// close a channel without racing a send.
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func (b *bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (b *bus) Subscribe(buffer int) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, max(buffer, 1))}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	return s.ch, sync.OnceFunc(func() {
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	})
}
