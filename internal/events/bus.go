// Package events provides the in-process event bus that fans conversation
// lifecycle events out to the HTTP stream and other observers.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Timestamp() time.Time
	ConversationID() string
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Type         string    `json:"type"`
	Time         time.Time `json:"timestamp"`
	Conversation string    `json:"conversation_id"`
}

func (e BaseEvent) EventType() string      { return e.Type }
func (e BaseEvent) Timestamp() time.Time   { return e.Time }
func (e BaseEvent) ConversationID() string { return e.Conversation }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType, conversationID string) BaseEvent {
	return BaseEvent{
		Type:         eventType,
		Time:         time.Now(),
		Conversation: conversationID,
	}
}

// subscriber is one registered channel plus its filters. An empty type set
// or empty conversation id matches everything.
type subscriber struct {
	ch           chan Event
	types        map[string]bool
	conversation string
}

func (s *subscriber) matches(e Event) bool {
	if len(s.types) > 0 && !s.types[e.EventType()] {
		return false
	}
	return s.conversation == "" || s.conversation == e.ConversationID()
}

// EventBus is a non-blocking pub/sub hub. A slow subscriber loses its
// oldest buffered events instead of stalling the publisher.
type EventBus struct {
	mu           sync.RWMutex
	subscribers  []*subscriber
	bufferSize   int
	droppedCount int64
	closed       bool
}

// New creates a new EventBus with the specified buffer size.
func New(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{bufferSize: bufferSize}
}

// Subscribe creates a subscription for specific event types.
// If no types are specified, subscribes to all events.
func (eb *EventBus) Subscribe(types ...string) <-chan Event {
	return eb.subscribe("", types)
}

// SubscribeConversation subscribes to events of one conversation.
func (eb *EventBus) SubscribeConversation(conversationID string, types ...string) <-chan Event {
	return eb.subscribe(conversationID, types)
}

func (eb *EventBus) subscribe(conversationID string, types []string) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &subscriber{
		ch:           make(chan Event, eb.bufferSize),
		types:        make(map[string]bool, len(types)),
		conversation: conversationID,
	}
	for _, t := range types {
		sub.types[t] = true
	}
	if eb.closed {
		close(sub.ch)
		return sub.ch
	}
	eb.subscribers = append(eb.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	kept := eb.subscribers[:0]
	for _, sub := range eb.subscribers {
		if sub.ch == ch {
			close(sub.ch)
			continue
		}
		kept = append(kept, sub)
	}
	eb.subscribers = kept
}

// Publish sends an event to all matching subscribers without blocking.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, sub := range eb.subscribers {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Ring buffer: drop the oldest, then retry once.
			select {
			case <-sub.ch:
				atomic.AddInt64(&eb.droppedCount, 1)
			default:
			}
			select {
			case sub.ch <- event:
			default:
				atomic.AddInt64(&eb.droppedCount, 1)
			}
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (eb *EventBus) DroppedCount() int64 {
	return atomic.LoadInt64(&eb.droppedCount)
}

// SubscriberCount returns the number of live subscriptions.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes the event bus and all subscriber channels.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true
	for _, sub := range eb.subscribers {
		close(sub.ch)
	}
	eb.subscribers = nil
}
