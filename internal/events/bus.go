// Package events is the fire-and-forget side-effect channel of the core.
// Publishers never block and never observe subscriber failures; a slow
// subscriber drops events rather than stalling the pipeline.
package events

import (
	"log"
	"sync"
	"time"
)

type Type string

const (
	TypeActionLogged    Type = "action_logged"
	TypeNewInboxArrival Type = "new_inbox_arrival"
	TypeMessageSent     Type = "message_sent"
	TypeContactUsed     Type = "contact_used"
	TypePendingCount    Type = "pending_count"
	TypeSyncStatus      Type = "sync_status"
)

type Event struct {
	Type      Type
	AccountID string
	Timestamp time.Time
	Payload   any
}

// Filter decides whether a subscriber receives an event. A nil filter
// receives everything.
type Filter func(Event) bool

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Bus fans events out to subscribers without ever blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a buffered subscription. The returned id unsubscribes.
func (b *Bus) Subscribe(filter Filter) (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	sub := &subscriber{
		ch:     make(chan Event, 64),
		filter: filter,
	}
	b.subs[id] = sub

	return id, sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}

	delete(b.subs, id)
	close(sub.ch)
}

// Publish delivers the event to every matching subscriber. Delivery is
// best-effort: a full subscriber buffer drops the event.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			log.Printf("events: subscriber %d full, dropping %s event", id, event.Type)
		}
	}
}
