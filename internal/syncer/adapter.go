// Package syncer owns per-account synchronization: three protocol adapters
// that turn remote change feeds into mirror snapshots, and the orchestrator
// that decides when and how they run.
package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ferrymail/ferry/internal/events"
	"github.com/ferrymail/ferry/internal/mirror"
	"github.com/ferrymail/ferry/internal/models"
	"github.com/ferrymail/ferry/internal/protocol"
)

// defaultWorkerCap bounds concurrent thread refetches within one delta sync.
const defaultWorkerCap = 5

// ProgressFunc receives coarse progress for UI feedback: the remote-object
// phase being fetched and a current/total counter. Best-effort only.
type ProgressFunc func(phase string, current, total int)

// Adapter syncs one account's remote changes into the local mirror.
// InitialSync bounds its backfill to the lookback window; DeltaSync fetches
// changes since cursor and returns protocol.ErrCursorExpired when the remote
// no longer honors it. Both return the cursor to persist.
type Adapter interface {
	InitialSync(ctx context.Context, account *models.Account, lookback time.Duration, report ProgressFunc) (string, error)
	DeltaSync(ctx context.Context, account *models.Account, cursor string, report ProgressFunc) (string, error)
}

// NewAdapter selects the adapter implementation for the account's protocol
// kind at construction time.
func NewAdapter(kind models.Protocol, client protocol.Client, upserter *mirror.Upserter, bus *events.Bus, workerCap int) (Adapter, error) {
	core := newAdapterCore(client, upserter, bus, workerCap)
	switch kind {
	case models.ProtocolAPICursor:
		return &apiCursorAdapter{adapterCore: core}, nil
	case models.ProtocolIMAP:
		return &imapUIDAdapter{adapterCore: core}, nil
	case models.ProtocolJMAP:
		return &jmapStateAdapter{adapterCore: core}, nil
	default:
		return nil, fmt.Errorf("unknown protocol kind %q", kind)
	}
}

// adapterCore holds what every adapter needs: the protocol client, the mirror
// writer, the event bus for arrival signals, and the fan-out cap.
type adapterCore struct {
	client    protocol.Client
	upserter  *mirror.Upserter
	bus       *events.Bus
	workerCap int
}

func newAdapterCore(client protocol.Client, upserter *mirror.Upserter, bus *events.Bus, workerCap int) adapterCore {
	if workerCap <= 0 {
		workerCap = defaultWorkerCap
	}
	return adapterCore{client: client, upserter: upserter, bus: bus, workerCap: workerCap}
}

// normalizeFunc rewrites one message's protocol-native labels into the
// normalized vocabulary and derives its flag booleans. Each adapter supplies
// its own.
type normalizeFunc func(msg *models.Message)

// runFeed pages through the change feed and reconciles each page before
// fetching the next, so memory stays bounded on large mailboxes. It returns
// the final page's cursor; merging it with the previous cursor is the
// adapter's business.
func (a *adapterCore) runFeed(ctx context.Context, account *models.Account, cursor string, since time.Time, phase string, normalize normalizeFunc, report ProgressFunc) (string, error) {
	pageToken := ""
	newCursor := cursor

	for {
		page, err := a.client.FetchChanges(ctx, cursor, protocol.FetchOptions{
			Since:     since,
			PageToken: pageToken,
		})
		if err != nil {
			return "", err
		}

		a.reconcilePage(ctx, account, page, phase, normalize, report)

		if page.NewCursor != "" {
			newCursor = page.NewCursor
		}

		if !page.More {
			break
		}
		pageToken = page.NextPage
	}

	return newCursor, nil
}

// reconcilePage refetches and upserts every thread touched by the page with
// bounded parallelism. Thread ids are deduplicated first, so the same thread
// is never upserted concurrently. One thread's failure is logged and skipped;
// it never aborts its siblings.
func (a *adapterCore) reconcilePage(ctx context.Context, account *models.Account, page *protocol.ChangePage, phase string, normalize normalizeFunc, report ProgressFunc) {
	threadOrder := make([]string, 0, len(page.Changes))
	added := make(map[string][]string) // threadID -> message ids newly added
	seen := make(map[string]struct{})

	for i := range page.Changes {
		change := &page.Changes[i]
		if change.ThreadID == "" {
			continue
		}
		if _, ok := seen[change.ThreadID]; !ok {
			seen[change.ThreadID] = struct{}{}
			threadOrder = append(threadOrder, change.ThreadID)
		}
		if change.Kind == protocol.ChangeAdded && change.MessageID != "" {
			added[change.ThreadID] = append(added[change.ThreadID], change.MessageID)
		}
	}

	total := page.Total
	if total == 0 {
		total = len(threadOrder)
	}

	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, a.workerCap)
		mu        sync.Mutex
		current   int
	)

	for _, threadID := range threadOrder {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(threadID string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := a.reconcileThread(ctx, account, threadID, added[threadID], normalize); err != nil {
				log.Printf("syncer: account %s: failed to reconcile thread %s: %v", account.ID, threadID, err)
			}

			if report != nil {
				mu.Lock()
				current++
				n := current
				mu.Unlock()
				report(phase, n, total)
			}
		}(threadID)
	}

	wg.Wait()
}

// reconcileThread refetches the whole thread, normalizes every message, and
// writes the snapshot. New unread inbox arrivals are announced on the bus for
// notification and filter consumers; only the yes/no signal is produced here.
func (a *adapterCore) reconcileThread(ctx context.Context, account *models.Account, threadID string, addedMessageIDs []string, normalize normalizeFunc) error {
	messages, err := a.client.FetchThread(ctx, threadID)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		normalize(msg)
	}

	if err := a.upserter.UpsertThreadSnapshot(ctx, account.ID, threadID, messages); err != nil {
		return err
	}

	for _, msgID := range addedMessageIDs {
		for _, msg := range messages {
			if msg.ID != msgID {
				continue
			}
			if !msg.IsRead && msg.HasLabel(models.LabelInbox) {
				a.bus.Publish(events.Event{
					Type:      events.TypeNewInboxArrival,
					AccountID: account.ID,
					Payload:   map[string]string{"thread_id": threadID, "message_id": msgID},
				})
			}
			break
		}
	}

	return nil
}
