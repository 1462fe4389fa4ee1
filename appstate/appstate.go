// Package appstate carries the process lifecycle signal: whether the
// application is in the foreground or the background. A Broadcaster fans the
// signal out to any number of subscribers; a FileMonitor feeds it from a
// watched file in development builds where no platform bridge exists.
package appstate

import "sync"

// State is a process lifecycle state.
type State string

const (
	Foreground State = "foreground"
	Background State = "background"
)

// Source delivers lifecycle transitions. Subscribe returns the delivery
// channel paired with its unsubscribe; every subscription must be torn down
// with it.
type Source interface {
	Subscribe() (<-chan State, func())
}

// subscriberBuffer bounds how far a slow subscriber may lag before
// transitions are dropped on it.
const subscriberBuffer = 8

// Broadcaster is an explicit publish/subscribe fan-out for lifecycle states.
type Broadcaster struct {
	lock        sync.Mutex
	subscribers map[int]chan State
	nextID      int
	closed      bool
}

var _ Source = (*Broadcaster)(nil)

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[int]chan State),
	}
}

// Notify delivers a state to every subscriber. Delivery never blocks; a
// subscriber whose buffer is full misses the transition.
func (b *Broadcaster) Notify(state State) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- state:
		default:
		}
	}
}

// Subscribe registers a listener. The returned function removes it; calling
// it more than once is harmless.
func (b *Broadcaster) Subscribe() (<-chan State, func()) {
	b.lock.Lock()
	defer b.lock.Unlock()

	ch := make(chan State, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.lock.Lock()
			defer b.lock.Unlock()
			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

// Close tears down the broadcaster and closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
