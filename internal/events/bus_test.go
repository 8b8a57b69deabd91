package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus()

	_, all := bus.Subscribe(nil)
	_, filtered := bus.Subscribe(func(e Event) bool { return e.Type == TypeMessageSent })

	bus.Publish(Event{Type: TypeActionLogged, AccountID: "acct-1"})
	bus.Publish(Event{Type: TypeMessageSent, AccountID: "acct-1"})

	// The nil filter sees both events.
	first := <-all
	second := <-all
	assert.Equal(t, TypeActionLogged, first.Type)
	assert.Equal(t, TypeMessageSent, second.Type)

	// The filtered subscriber sees only the match.
	event := <-filtered
	assert.Equal(t, TypeMessageSent, event.Type)
	select {
	case extra := <-filtered:
		t.Fatalf("unexpected extra event: %v", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusPublishFillsTimestamp(t *testing.T) {
	bus := NewBus()
	_, ch := bus.Subscribe(nil)

	bus.Publish(Event{Type: TypePendingCount})

	event := <-ch
	assert.False(t, event.Timestamp.IsZero())
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	_, ch := bus.Subscribe(nil)

	// Overflow the subscriber buffer without draining it; publish must
	// return anyway.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			bus.Publish(Event{Type: TypePendingCount, Payload: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The buffered prefix survived; the overflow was dropped.
	event := <-ch
	assert.Equal(t, 0, event.Payload.(int))
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	id, ch := bus.Subscribe(nil)

	bus.Unsubscribe(id)

	_, open := <-ch
	require.False(t, open)

	// Unsubscribing twice is harmless.
	bus.Unsubscribe(id)
}
