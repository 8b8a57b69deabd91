package notify

import (
	"context"

	"github.com/ferrymail/ferry/internal/events"
)

// uiEventTypes are the bus events a UI cares about live; everything else it
// learns by re-reading the mirror.
var uiEventTypes = map[events.Type]struct{}{
	events.TypeSyncStatus:      {},
	events.TypePendingCount:    {},
	events.TypeNewInboxArrival: {},
	events.TypeMessageSent:     {},
}

// Bridge forwards UI-relevant bus events to the hub as frames. Runs until
// the context is cancelled.
func Bridge(ctx context.Context, bus *events.Bus, hub *Hub) {
	id, ch := bus.Subscribe(func(e events.Event) bool {
		_, ok := uiEventTypes[e.Type]
		return ok
	})
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}

			hub.Broadcast(Frame{
				Type:      string(event.Type),
				AccountID: event.AccountID,
				Timestamp: event.Timestamp,
				Payload:   event.Payload,
			})
		}
	}
}
