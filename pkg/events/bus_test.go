package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func TestBusEmitByType(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	bus.Subscribe(EvDumpDone, sub)

	bus.Emit(Event{Type: EvDumpDone, Objects: 100, Took: 5 * time.Millisecond})
	bus.Emit(Event{Type: EvLoadDone, Objects: 7})

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Objects != 100 {
		t.Errorf("expected 100 objects, got %d", events[0].Objects)
	}
	if events[0].Type != EvDumpDone {
		t.Errorf("expected type EvDumpDone, got %v", events[0].Type)
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	bus.Emit(Event{Type: EvModuleLoad, Module: "mail"})
	bus.Emit(Event{Type: EvDumpFailed, Err: errors.New("disk full")})

	events := global.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 global events, got %d", len(events))
	}
	if events[0].Module != "mail" {
		t.Errorf("expected module %q, got %q", "mail", events[0].Module)
	}
	if events[1].Err == nil {
		t.Error("expected error on failure event")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}

	bus.Subscribe(EvOptimize, sub)
	bus.Unsubscribe(EvOptimize, sub)

	bus.Emit(Event{Type: EvOptimize})

	if len(sub.Events()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}

	bus.Subscribe(EvDumpStart, sub)
	bus.Emit(Event{Type: EvDumpStart})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

func TestNilBusDropsEvents(t *testing.T) {
	var bus *Bus
	bus.Emit(Event{Type: EvDumpDone})
}

func TestBusCleanup(t *testing.T) {
	bus := NewBus()
	active := &mockSubscriber{}
	closed := &mockSubscriber{isClosed: true}

	bus.Subscribe(EvLoadDone, active)
	bus.Subscribe(EvLoadDone, closed)
	bus.SubscribeGlobal(&mockSubscriber{isClosed: true})

	bus.Cleanup()

	if bus.TypeSubscribers(EvLoadDone) != 1 {
		t.Errorf("expected 1 active subscriber, got %d", bus.TypeSubscribers(EvLoadDone))
	}
}

func TestSubscriberFunc(t *testing.T) {
	bus := NewBus()
	var got []Event
	bus.Subscribe(EvConfigReload, Func(func(ev Event) {
		got = append(got, ev)
	}))

	bus.Emit(Event{Type: EvConfigReload})
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		t    Type
		want string
	}{
		{EvLoadDone, "load_done"},
		{EvDumpDone, "dump_done"},
		{EvModuleDump, "module_dump"},
		{EvConfigReload, "config_reload"},
		{Type(999), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("Type(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}
