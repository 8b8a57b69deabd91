package actions

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrymail/ferry/internal/connectivity"
	"github.com/ferrymail/ferry/internal/db"
	"github.com/ferrymail/ferry/internal/events"
	"github.com/ferrymail/ferry/internal/models"
	"github.com/ferrymail/ferry/internal/protocol"
)

// ClientFactory returns the remote client for one account.
type ClientFactory func(accountID string) (protocol.Client, error)

// Result is the settled outcome of Execute. Queued means the action was
// accepted locally and will reach the remote later; the caller treats it as
// success.
type Result struct {
	Success bool
	Queued  bool
	Err     error
}

// Pipeline runs user actions: optimistic view patch, synchronous mirror
// write, then remote dispatch or durable enqueue.
type Pipeline struct {
	pool       *pgxpool.Pool
	clients    ClientFactory
	monitor    *connectivity.Monitor
	bus        *events.Bus
	view       *View
	maxRetries int
}

func NewPipeline(pool *pgxpool.Pool, clients ClientFactory, monitor *connectivity.Monitor, bus *events.Bus, view *View, maxRetries int) *Pipeline {
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	return &Pipeline{
		pool:       pool,
		clients:    clients,
		monitor:    monitor,
		bus:        bus,
		view:       view,
		maxRetries: maxRetries,
	}
}

// Execute runs one action to a settled result. Offline and retryable
// failures both come back as queued success; only permanent failures revert
// the optimistic update and report an error.
func (p *Pipeline) Execute(ctx context.Context, accountID string, a Action) Result {
	if err := a.Validate(); err != nil {
		return Result{Err: err}
	}

	// New compositions get their id up front so the queued form replays
	// against the same resource.
	if a.MessageID == "" && (a.Kind == KindSendMessage || a.Kind == KindCreateDraft) {
		a.MessageID = uuid.NewString()
	}

	p.bus.Publish(events.Event{
		Type:      events.TypeActionLogged,
		AccountID: accountID,
		Payload:   map[string]string{"kind": string(a.Kind), "resource_id": a.ResourceID()},
	})

	cmd := buildCommand(p.view, a)
	cmd.Apply()

	if err := applyMirror(ctx, p.pool, accountID, a); err != nil {
		cmd.Revert()
		return Result{Err: err}
	}

	if !p.monitor.Online() {
		if err := p.enqueue(ctx, accountID, a, ""); err != nil {
			p.rollback(ctx, accountID, a, cmd)
			return Result{Err: err}
		}
		return Result{Success: true, Queued: true}
	}

	err := p.dispatchRemote(ctx, accountID, a)
	if err == nil {
		if a.Kind == KindSendMessage {
			p.publishSendEffects(accountID, a)
		}
		return Result{Success: true}
	}

	if protocol.IsRetryable(err) {
		if qerr := p.enqueue(ctx, accountID, a, err.Error()); qerr != nil {
			p.rollback(ctx, accountID, a, cmd)
			return Result{Err: qerr}
		}
		return Result{Success: true, Queued: true}
	}

	p.rollback(ctx, accountID, a, cmd)
	return Result{Err: err}
}

// rollback unwinds a rejected action: the view command exactly, the mirror as
// far as its inverse reaches. A failed mirror revert is logged, not returned;
// the next sync corrects the row anyway.
func (p *Pipeline) rollback(ctx context.Context, accountID string, a Action, cmd command) {
	cmd.Revert()
	if err := revertMirror(ctx, p.pool, accountID, a); err != nil {
		log.Printf("Warning: failed to revert mirror for rejected %s on %s: %v", a.Kind, a.ResourceID(), err)
	}
}

// FetchAttachment downloads attachment bytes on demand through the account's
// protocol client.
func (p *Pipeline) FetchAttachment(ctx context.Context, accountID, blobRef string) ([]byte, error) {
	client, err := p.clients(accountID)
	if err != nil {
		return nil, err
	}
	return client.FetchBlob(ctx, blobRef)
}

func (p *Pipeline) dispatchRemote(ctx context.Context, accountID string, a Action) error {
	client, err := p.clients(accountID)
	if err != nil {
		return err
	}
	return Dispatch(ctx, client, a)
}

func (p *Pipeline) enqueue(ctx context.Context, accountID string, a Action, lastError string) error {
	raw, err := a.Encode()
	if err != nil {
		return err
	}

	op := &models.PendingOperation{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		OperationType: string(a.Kind),
		ResourceID:    a.ResourceID(),
		Params:        raw,
		Status:        models.OperationPending,
		MaxRetries:    p.maxRetries,
	}
	if lastError != "" {
		op.ErrorMessage = &lastError
	}

	if err := db.EnqueueOperation(ctx, p.pool, op); err != nil {
		return err
	}

	p.publishPendingCount(ctx, accountID)
	return nil
}

func (p *Pipeline) publishPendingCount(ctx context.Context, accountID string) {
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

// publishSendEffects fires the post-send side effects: a UI refresh signal so
// the sent message shows up, and one contact-frequency event per recipient.
func (p *Pipeline) publishSendEffects(accountID string, a Action) {
	p.bus.Publish(events.Event{
		Type:      events.TypeMessageSent,
		AccountID: accountID,
		Payload:   a.MessageID,
	})

	recipients := make([]string, 0, len(a.Outgoing.To)+len(a.Outgoing.CC)+len(a.Outgoing.BCC))
	recipients = append(recipients, a.Outgoing.To...)
	recipients = append(recipients, a.Outgoing.CC...)
	recipients = append(recipients, a.Outgoing.BCC...)

	for _, address := range recipients {
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
