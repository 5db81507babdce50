package events

import "sync"

// Subscriber receives events from the bus. A subscriber that reports
// Closed is skipped on delivery and reaped by Cleanup.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a typed pub/sub bus for storage notifications. Subscribers
// register for a single event type or globally for everything.
// Delivery is synchronous and in registration order.
type Bus struct {
	mu     sync.RWMutex
	byType map[Type][]Subscriber
	global []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		byType: make(map[Type][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(t Type, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[t] = append(b.byType[t], sub)
}

// Unsubscribe removes a subscriber for one event type.
func (b *Bus) Unsubscribe(t Type, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.byType[t]
	for i, s := range subs {
		if s == sub {
			b.byType[t] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.byType[t]) == 0 {
		delete(b.byType, t)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit delivers an event to its type subscribers and all global
// subscribers. A nil bus drops the event, so emitters need no guard.
func (b *Bus) Emit(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.byType[ev.Type]
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// TypeSubscribers returns the number of subscribers for a type.
func (b *Bus) TypeSubscribers(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byType[t])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, subs := range b.byType {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.byType, t)
		} else {
			b.byType[t] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}

// Func adapts a plain function into a Subscriber that never closes.
type Func func(ev Event)

func (f Func) Receive(ev Event) { f(ev) }
func (f Func) Closed() bool     { return false }
