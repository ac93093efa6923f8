// pkg/event/event.go
package event

import (
	"sync"
	"time"
)

// Type represents the type of event
type Type string

// Transport status events. Published by the network client so the operator
// can see connection state without the transport knowing about the HUD.
const (
	TransportConnecting   Type = "transport.connecting"
	TransportConnected    Type = "transport.connected"
	TransportRetrying     Type = "transport.retrying"
	TransportDisconnected Type = "transport.disconnected"
	TransportClosed       Type = "transport.closed"
)

// Viewer lifecycle events.
const (
	SnapshotRejected Type = "viewer.snapshot_rejected"
	SimulationReset  Type = "viewer.simulation_reset"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// Subscription is returned by Subscribe; Cancel removes the handler.
type Subscription struct {
	ID     uint64
	Cancel func()
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	handlers map[Type][]registration
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]registration),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})

	var once sync.Once
	return &Subscription{
		ID: id,
		Cancel: func() {
			once.Do(func() { b.remove(eventType, id) })
		},
	}
}

func (b *Bus) remove(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[eventType]
	for i, r := range regs {
		if r.id == id {
			b.handlers[eventType] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(b.handlers[eventType]) == 0 {
		delete(b.handlers, eventType)
	}
}

// Publish sends an event to all subscribed handlers. Handlers run on the
// publisher's goroutine, so they must not block.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	regs := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, r := range regs {
		r.handler(event)
	}
}

// ConnectionEvent describes a transport state change.
type ConnectionEvent struct {
	BaseEvent
	Address string
	Attempt int
	Err     error
	At      time.Time
}

// NewConnectionEvent creates a new connection event
func NewConnectionEvent(eventType Type, source interface{}, address string, attempt int, err error) *ConnectionEvent {
	return &ConnectionEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		Address: address,
		Attempt: attempt,
		Err:     err,
		At:      time.Now(),
	}
}

// SnapshotEvent reports a snapshot-level condition such as a rejected line
// or a simulation clock that went backwards.
type SnapshotEvent struct {
	BaseEvent
	SimTime float64
	Reason  string
}

// NewSnapshotEvent creates a new snapshot event
func NewSnapshotEvent(eventType Type, source interface{}, simTime float64, reason string) *SnapshotEvent {
	return &SnapshotEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		SimTime: simTime,
		Reason:  reason,
	}
}
