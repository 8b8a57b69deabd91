package syncer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrymail/ferry/internal/db"
	"github.com/ferrymail/ferry/internal/models"
	"github.com/ferrymail/ferry/internal/protocol"
)

// Status is the per-account sync phase reported to the UI.
type Status string

const (
	StatusSyncing Status = "syncing"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Progress is coarse UI-only feedback; it carries no correctness obligation.
type Progress struct {
	Phase   string `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// StatusFunc receives per-account status updates. Best-effort: it must not
// block and its errors are nobody's business but its own.
type StatusFunc func(accountID string, status Status, progress *Progress, err error)

// AdapterFactory builds the protocol adapter for one account, typically by
// obtaining a usable client from credential management first.
type AdapterFactory func(account *models.Account) (Adapter, error)

// Orchestrator owns the process-wide sync run state: at most one run is
// active at a time, and requests arriving while one is active merge into a
// pending set that the drain loop picks up before going idle.
type Orchestrator struct {
	pool     *pgxpool.Pool
	adapters AdapterFactory
	status   StatusFunc
	lookback time.Duration

	// baseCtx scopes drain runs to the process, not to whichever request
	// happened to start them. A fire-and-forget trigger must keep syncing
	// after its HTTP request context is cancelled.
	baseCtx context.Context

	mu      sync.Mutex
	running bool
	pending map[string]struct{}
	doneCh  chan struct{}

	tickerStop chan struct{}
	tickerWG   sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. ctx bounds the lifetime of every
// sync run it starts; status may be nil.
func NewOrchestrator(ctx context.Context, pool *pgxpool.Pool, adapters AdapterFactory, status StatusFunc, lookback time.Duration) *Orchestrator {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Orchestrator{
		pool:     pool,
		adapters: adapters,
		status:   status,
		lookback: lookback,
		baseCtx:  ctx,
		pending:  make(map[string]struct{}),
	}
}

// RunSync requests a sync of the given accounts. If no run is active one is
// started; otherwise the accounts merge into the active run's pending set.
// The returned channel closes once every requested account has been
// processed and the orchestrator is idle again, so overlapping callers share
// one future instead of spawning duplicate runs. The run itself executes
// under the orchestrator's own context; callers that only want to wait can
// select on the returned channel against their request context.
func (o *Orchestrator) RunSync(accountIDs []string) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, id := range accountIDs {
		o.pending[id] = struct{}{}
	}

	if o.running {
		return o.doneCh
	}

	o.running = true
	o.doneCh = make(chan struct{})
	done := o.doneCh

	go o.drain(o.baseCtx, done)

	return done
}

// TriggerSync is the user-initiated "refresh now": it syncs every configured
// account and returns the shared completion future.
func (o *Orchestrator) TriggerSync(ctx context.Context) (<-chan struct{}, error) {
	accounts, err := db.ListAccounts(ctx, o.pool)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.ID)
	}

	return o.RunSync(ids), nil
}

// ForceFullSync discards the accounts' cursors and cached mail before
// syncing, so the next run rebuilds the mirror from scratch and stale rows
// cannot linger.
func (o *Orchestrator) ForceFullSync(ctx context.Context, accountIDs []string) (<-chan struct{}, error) {
	for _, accountID := range accountIDs {
		if err := db.DeleteThreadsForAccount(ctx, o.pool, accountID); err != nil {
			return nil, err
		}
		if err := db.UpdateSyncCursor(ctx, o.pool, accountID, nil); err != nil {
			return nil, err
		}
	}

	return o.RunSync(accountIDs), nil
}

// drain processes batches until no pending accounts remain, then closes the
// run's done channel. Requests that arrive mid-batch are observed on the next
// loop iteration, never dropped.
func (o *Orchestrator) drain(ctx context.Context, done chan struct{}) {
	for {
		o.mu.Lock()
		if len(o.pending) == 0 {
			o.running = false
			o.mu.Unlock()
			close(done)
			return
		}

		batch := make([]string, 0, len(o.pending))
		for id := range o.pending {
			batch = append(batch, id)
		}
		o.pending = make(map[string]struct{})
		o.mu.Unlock()

		for _, accountID := range batch {
			// One account's failure must not abort its batch siblings.
			if err := o.syncAccount(ctx, accountID); err != nil {
				log.Printf("syncer: account %s sync failed: %v", accountID, err)
			}
		}
	}
}

// syncAccount routes one account to initial or delta sync, recovers from an
// expired cursor with a single full-sync fallback, and persists the new
// cursor on success.
func (o *Orchestrator) syncAccount(ctx context.Context, accountID string) error {
	o.report(accountID, StatusSyncing, nil, nil)

	account, err := db.GetAccount(ctx, o.pool, accountID)
	if err != nil {
		o.report(accountID, StatusError, nil, err)
		return err
	}

	adapter, err := o.adapters(account)
	if err != nil {
		o.report(accountID, StatusError, nil, err)
		return err
	}

	progress := func(phase string, current, total int) {
		o.report(accountID, StatusSyncing, &Progress{Phase: phase, Current: current, Total: total}, nil)
	}

	var cursor string
	if account.SyncCursor == nil {
		cursor, err = adapter.InitialSync(ctx, account, o.lookback, progress)
	} else {
		cursor, err = adapter.DeltaSync(ctx, account, *account.SyncCursor, progress)
		if errors.Is(err, protocol.ErrCursorExpired) {
			log.Printf("syncer: account %s cursor expired, falling back to full sync", accountID)
			cursor, err = adapter.InitialSync(ctx, account, o.lookback, progress)
		}
	}

	if err != nil {
		o.report(accountID, StatusError, nil, err)
		return err
	}

	if err := db.UpdateSyncCursor(ctx, o.pool, accountID, &cursor); err != nil {
		o.report(accountID, StatusError, nil, err)
		return err
	}

	o.report(accountID, StatusDone, nil, nil)
	return nil
}

func (o *Orchestrator) report(accountID string, status Status, progress *Progress, err error) {
	if o.status == nil {
		return
	}
	o.status(accountID, status, progress, err)
}

// Start launches the periodic timer that syncs all accounts at the given
// interval. The interval is independent of any in-flight run; the run
// coalescing above absorbs overlap.
func (o *Orchestrator) Start(interval time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.tickerStop != nil {
		return
	}
	o.tickerStop = make(chan struct{})
	stop := o.tickerStop

	o.tickerWG.Add(1)
	go func() {
		defer o.tickerWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-o.baseCtx.Done():
				return
			case <-ticker.C:
				if _, err := o.TriggerSync(o.baseCtx); err != nil {
					log.Printf("syncer: periodic sync trigger failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts the periodic timer. The unit of cancellation is "stop scheduling
// new runs": an in-flight run completes on its own.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.tickerStop == nil {
		o.mu.Unlock()
		return
	}
	close(o.tickerStop)
	o.tickerStop = nil
	o.mu.Unlock()

	o.tickerWG.Wait()
}
