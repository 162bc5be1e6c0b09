package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"bomdesk/logging"
)

type EventType int

type SubscriberID int

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

type subscriber struct {
	id     SubscriberID
	fn     func(Event)
	filter map[EventType]struct{}
}

func (s subscriber) wants(t EventType) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[t]
	return ok
}

// EventBus delivers events synchronously, in subscription order. A panicking
// subscriber is logged and skipped; the emitter and later subscribers still run.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	nextID      SubscriberID
	log         *zap.Logger
}

func NewEventBus(log *zap.Logger) *EventBus {
	return &EventBus{log: logging.OrNop(log).Named("events")}
}

// Subscribe registers a handler for all event types.
func (eb *EventBus) Subscribe(fn func(Event)) SubscriberID {
	return eb.add(fn, nil)
}

// SubscribeTypes registers a handler for specific event types.
func (eb *EventBus) SubscribeTypes(fn func(Event), types ...EventType) SubscriberID {
	filter := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}
	return eb.add(fn, filter)
}

func (eb *EventBus) add(fn func(Event), filter map[EventType]struct{}) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	eb.subscribers = append(eb.subscribers, subscriber{id: eb.nextID, fn: fn, filter: filter})
	return eb.nextID
}

// Unsubscribe removes a subscriber by ID.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, s := range eb.subscribers {
		if s.id == id {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribers.
func (eb *EventBus) Len() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Emit sends an event to all matching subscribers.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	subs := make([]subscriber, len(eb.subscribers))
	copy(subs, eb.subscribers)
	eb.mu.RUnlock()

	for _, s := range subs {
		if s.wants(evt.Type) {
			eb.deliver(s, evt)
		}
	}
}

func (eb *EventBus) deliver(s subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.log.Error("subscriber panic",
				zap.String("event", evt.Type.String()), zap.Int("subscriber", int(s.id)), zap.Any("panic", r))
		}
	}()
	s.fn(evt)
}
