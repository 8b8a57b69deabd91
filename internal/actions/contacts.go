package actions

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrymail/ferry/internal/db"
	"github.com/ferrymail/ferry/internal/events"
)

// RecordContacts consumes contact-used events and bumps the persisted
// per-recipient frequency counters the composer ranks suggestions by. Runs
// until the context is cancelled; failures are logged and dropped, never
// retried.
func RecordContacts(ctx context.Context, pool *pgxpool.Pool, bus *events.Bus) {
	id, ch := bus.Subscribe(func(e events.Event) bool {
		return e.Type == events.TypeContactUsed
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
			address, ok := event.Payload.(string)
			if !ok || address == "" {
				continue
			}
			if err := db.TouchContact(ctx, pool, event.AccountID, address); err != nil {
				log.Printf("Warning: failed to record contact %s: %v", address, err)
			}
		}
	}
}
