package queue

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrymail/ferry/internal/actions"
	"github.com/ferrymail/ferry/internal/connectivity"
	"github.com/ferrymail/ferry/internal/db"
	"github.com/ferrymail/ferry/internal/events"
	"github.com/ferrymail/ferry/internal/models"
	"github.com/ferrymail/ferry/internal/protocol"
)

const (
	initialRetryInterval = 30 * time.Second
	maxRetryInterval     = 30 * time.Minute
)

// Processor replays queued operations against the remote service. One drain
// pass per interval tick while online, plus an immediate pass when the
// process transitions from offline to online.
type Processor struct {
	pool     *pgxpool.Pool
	clients  actions.ClientFactory
	monitor  *connectivity.Monitor
	bus      *events.Bus
	interval time.Duration

	// now is swappable for tests.
	now func() time.Time
}

func NewProcessor(pool *pgxpool.Pool, clients actions.ClientFactory, monitor *connectivity.Monitor, bus *events.Bus, interval time.Duration) *Processor {
	return &Processor{
		pool:     pool,
		clients:  clients,
		monitor:  monitor,
		bus:      bus,
		interval: interval,
		now:      time.Now,
	}
}

// Run loops until the context is cancelled.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	online := p.monitor.OnOnline()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-online:
		}

		if !p.monitor.Online() {
			continue
		}

		if err := p.DrainAll(ctx); err != nil {
			log.Printf("queue: drain pass failed: %v", err)
		}
	}
}

// DrainAll runs one drain pass over every account's queue.
func (p *Processor) DrainAll(ctx context.Context) error {
	accounts, err := db.ListAccounts(ctx, p.pool)
	if err != nil {
		return err
	}

	for _, account := range accounts {
		if err := p.DrainAccount(ctx, account.ID); err != nil {
			log.Printf("queue: draining account %s failed: %v", account.ID, err)
		}
	}

	return nil
}

// DrainAccount compacts and replays one account's pending operations in
// creation order, then publishes the remaining pending count.
func (p *Processor) DrainAccount(ctx context.Context, accountID string) error {
	// Operations stranded in "executing" by a crash mid-replay would
	// otherwise never be seen again.
	recovered, err := db.ResetExecutingOperations(ctx, p.pool, accountID)
	if err != nil {
		return err
	}
	if recovered > 0 {
		log.Printf("queue: recovered %d interrupted operations for account %s", recovered, accountID)
	}

	ops, err := db.ListPendingOperations(ctx, p.pool, accountID)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	keep, dropped := Compact(ops)
	if len(dropped) > 0 {
		ids := make([]string, 0, len(dropped))
		for _, op := range dropped {
			ids = append(ids, op.ID)
		}
		if err := db.DeleteOperations(ctx, p.pool, ids); err != nil {
			return err
		}
		log.Printf("queue: compacted %d superseded operations for account %s", len(dropped), accountID)
	}

	client, err := p.clients(accountID)
	if err != nil {
		return err
	}

	// Once an operation is held back, every later operation on the same
	// resource holds with it; replaying them out of order could apply an
	// edit before the operation that creates its target.
	deferred := make(map[string]struct{})

	for _, op := range keep {
		// Going offline mid-pass: stop replaying, leave the rest queued.
		if !p.monitor.Online() {
			break
		}
		if op.ResourceID != "" {
			if _, held := deferred[op.ResourceID]; held {
				continue
			}
		}
		if op.NextRetryAt != nil && op.NextRetryAt.After(p.now()) {
			if op.ResourceID != "" {
				deferred[op.ResourceID] = struct{}{}
			}
			continue
		}
		if settled := p.replay(ctx, client, op); !settled && op.ResourceID != "" {
			deferred[op.ResourceID] = struct{}{}
		}
	}

	p.publishPendingCount(ctx, accountID)
	return nil
}

// replay executes one operation and settles its row: deleted on success,
// rescheduled on retryable failure, marked failed on permanent failure,
// decode failure, or retry exhaustion. The returned bool reports whether the
// row was settled (deleted or terminally failed) rather than left queued.
func (p *Processor) replay(ctx context.Context, client protocol.Client, op *models.PendingOperation) bool {
	if err := db.MarkOperationExecuting(ctx, p.pool, op.ID); err != nil {
		log.Printf("Warning: failed to mark operation %s executing: %v", op.ID, err)
		return false
	}

	action, err := actions.Decode(op.OperationType, op.Params)
	if err != nil {
		log.Printf("queue: operation %s is undecodable, marking failed: %v", op.ID, err)
		p.markFailed(ctx, op, err)
		return true
	}

	err = actions.Dispatch(ctx, client, action)
	if err == nil {
		if derr := db.DeleteOperation(ctx, p.pool, op.ID); derr != nil {
			log.Printf("Warning: failed to delete completed operation %s: %v", op.ID, derr)
		}
		if action.Kind == actions.KindSendMessage {
			p.publishSendEffects(op.AccountID, action)
		}
		return true
	}

	if !protocol.IsRetryable(err) {
		p.markFailed(ctx, op, err)
		return true
	}

	if op.RetryCount >= op.MaxRetries {
		log.Printf("queue: operation %s exhausted %d retries, marking failed", op.ID, op.MaxRetries)
		p.markFailed(ctx, op, err)
		return true
	}

	nextRetryAt := p.now().Add(retryDelay(op.RetryCount))
	if rerr := db.RescheduleOperation(ctx, p.pool, op.ID, nextRetryAt, err.Error()); rerr != nil {
		log.Printf("Warning: failed to reschedule operation %s: %v", op.ID, rerr)
	}
	return false
}

func (p *Processor) markFailed(ctx context.Context, op *models.PendingOperation, cause error) {
	if err := db.MarkOperationFailed(ctx, p.pool, op.ID, cause.Error()); err != nil {
		log.Printf("Warning: failed to mark operation %s failed: %v", op.ID, err)
	}
}

func (p *Processor) publishPendingCount(ctx context.Context, accountID string) {
	count, err := db.CountPendingOperations(ctx, p.pool, accountID)
	if err != nil {
		log.Printf("Warning: failed to count pending operations for %s: %v", accountID, err)
		return
	}

	p.bus.Publish(events.Event{
		Type:      events.TypePendingCount,
		AccountID: accountID,
		Payload:   count,
	})
}

// publishSendEffects mirrors the pipeline's post-send side effects for sends
// that were confirmed via replay instead of live dispatch.
func (p *Processor) publishSendEffects(accountID string, a actions.Action) {
	p.bus.Publish(events.Event{
		Type:      events.TypeMessageSent,
		AccountID: accountID,
		Payload:   a.MessageID,
	})

	for _, address := range append(append(append([]string{}, a.Outgoing.To...), a.Outgoing.CC...), a.Outgoing.BCC...) {
		if address == "" {
			continue
		}
		p.bus.Publish(events.Event{
			Type:      events.TypeContactUsed,
			AccountID: accountID,
			Payload:   address,
		})
	}
}

// retryDelay computes the backoff delay for the attempt that just failed.
// The schedule is deterministic so a delay recomputed after a restart lands
// on the same value.
func retryDelay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialRetryInterval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxRetryInterval
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 0; i < retryCount; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
