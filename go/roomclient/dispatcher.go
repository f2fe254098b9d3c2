package roomclient

import (
	"sync"

	"github.com/pointcasthq/pointcast/go/room"
)

// EventAny subscribes a handler to every inbound event regardless of type.
const EventAny room.EventType = "*"

// Handler observes one inbound room event. Handlers run on the read loop,
// so they see events in receipt order and must not block.
type Handler func(room.Event)

// Subscription identifies one registered handler.
type Subscription struct {
	eventType room.EventType
	id        uint64
}

// dispatcher multiplexes inbound events to per-type subscriber sets. It is
// owned by a single client instance; there is no process-wide registry.
type dispatcher struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[room.EventType]map[uint64]Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[room.EventType]map[uint64]Handler)}
}

func (d *dispatcher) on(t room.EventType, h Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	if d.handlers[t] == nil {
		d.handlers[t] = make(map[uint64]Handler)
	}
	d.handlers[t][d.nextID] = h
	return Subscription{eventType: t, id: d.nextID}
}

func (d *dispatcher) off(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if hs := d.handlers[sub.eventType]; hs != nil {
		delete(hs, sub.id)
		if len(hs) == 0 {
			delete(d.handlers, sub.eventType)
		}
	}
}

func (d *dispatcher) dispatch(ev room.Event) {
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.handlers[ev.Type])+len(d.handlers[EventAny]))
	for _, h := range d.handlers[ev.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range d.handlers[EventAny] {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
