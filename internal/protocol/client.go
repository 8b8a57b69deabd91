// Package protocol defines the abstraction this core consumes to talk to a
// remote mail service. One implementation exists per protocol family
// (API-cursor, IMAP, JMAP); wire formats, pagination transport, and
// credential refresh all live behind it.
package protocol

import (
	"context"
	"time"

	"github.com/ferrymail/ferry/internal/models"
)

// Client is the per-account remote mail client. Implementations are obtained
// from application code ("get a usable client") and are expected to handle
// token refresh internally; auth failures that refresh cannot fix surface as
// permanent errors.
type Client interface {
	// FetchChanges returns one page of changes since cursor. An empty
	// cursor means "from scratch bounded by opts.Since". Implementations
	// return ErrCursorExpired when the remote reports the cursor as no
	// longer usable.
	FetchChanges(ctx context.Context, cursor string, opts FetchOptions) (*ChangePage, error)

	// FetchThread returns all currently-known messages of a thread with
	// protocol-native labels already mapped into the messages' Labels.
	FetchThread(ctx context.Context, threadID string) ([]*models.Message, error)

	// ApplyMutation executes one user action remotely. Kind matches the
	// action pipeline's operation types; params is the action's payload.
	ApplyMutation(ctx context.Context, kind string, params map[string]any) error

	// FetchBlob downloads attachment bytes by their opaque reference.
	FetchBlob(ctx context.Context, blobRef string) ([]byte, error)
}

// FetchOptions bounds and pages a FetchChanges call.
type FetchOptions struct {
	// Since bounds initial syncs to a lookback window instead of full
	// history. Ignored when a cursor is present.
	Since time.Time
	// PageToken continues a multi-page fetch. Page tokens are never
	// persisted; resumability is via cursor only.
	PageToken string
}

// ChangeKind says what happened to a remote object.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change is one changed remote object. Labels and Flags carry protocol-native
// identifiers (Gmail label IDs, IMAP folder names and flags, JMAP mailbox
// roles and keywords); the sync adapters normalize them.
type Change struct {
	Kind      ChangeKind
	ThreadID  string
	MessageID string
	Labels    []string
	Flags     []string
	// Message is the full payload when the protocol delivers it with the
	// change; nil means the thread must be refetched.
	Message *models.Message
}

// ChangePage is one page of a change feed.
type ChangePage struct {
	Changes []Change
	// NewCursor is the cursor covering everything up to and including this
	// page. Only valid to persist once every page has been consumed.
	NewCursor string
	// NextPage continues pagination when More is true.
	NextPage string
	More     bool
	// Total is a best-effort count of remote objects in this feed, used
	// for progress reporting only. Zero when unknown.
	Total int
}
