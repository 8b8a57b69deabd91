// Package mirror converts normalized message snapshots into idempotent writes
// against the local mail mirror, deriving thread-level aggregates as it goes.
package mirror

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrymail/ferry/internal/db"
	"github.com/ferrymail/ferry/internal/models"
)

const snippetLength = 120

// Upserter writes thread snapshots into the mirror. Safe for concurrent use
// on different threads; callers must not upsert the same thread concurrently.
type Upserter struct {
	pool        *pgxpool.Pool
	categorizer Categorizer
}

// NewUpserter creates an Upserter. A nil categorizer disables the
// categorization hook.
func NewUpserter(pool *pgxpool.Pool, categorizer Categorizer) *Upserter {
	return &Upserter{pool: pool, categorizer: categorizer}
}

// UpsertThreadSnapshot replaces the mirror's view of one thread with the
// given complete message set: thread row with derived aggregates, the atomic
// union label set, every message and attachment, and removal of messages no
// longer in the snapshot. Re-applying an identical snapshot is a no-op. An
// empty snapshot deletes the thread.
func (u *Upserter) UpsertThreadSnapshot(ctx context.Context, accountID, threadID string, messages []*models.Message) error {
	if len(messages) == 0 {
		return db.DeleteThread(ctx, u.pool, accountID, threadID)
	}

	thread, labels := deriveThread(accountID, threadID, messages)

	wasInboxed, err := u.threadHasLabel(ctx, accountID, threadID, models.LabelInbox)
	if err != nil {
		return err
	}

	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := db.SaveThread(ctx, tx, thread); err != nil {
		return err
	}

	if err := db.ReplaceThreadLabels(ctx, tx, accountID, threadID, labels); err != nil {
		return err
	}

	keep := make([]string, 0, len(messages))
	for _, msg := range messages {
		msg.AccountID = accountID
		msg.ThreadID = threadID
		if err := db.SaveMessage(ctx, tx, msg); err != nil {
			return err
		}
		keep = append(keep, msg.ID)

		for i := range msg.Attachments {
			att := msg.Attachments[i]
			att.AccountID = accountID
			att.MessageID = msg.ID
			if err := db.SaveAttachment(ctx, tx, &att); err != nil {
				return err
			}
		}
	}

	if err := db.DeleteMessagesNotIn(ctx, tx, accountID, threadID, keep); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	u.maybeCategorize(accountID, thread, messages, wasInboxed)

	return nil
}

// threadHasLabel reports the pre-upsert label state, tolerating a thread that
// does not exist yet.
func (u *Upserter) threadHasLabel(ctx context.Context, accountID, threadID, label string) (bool, error) {
	labels, err := db.GetThreadLabels(ctx, u.pool, accountID, threadID)
	if err != nil {
		return false, err
	}
	for _, l := range labels {
		if l == label {
			return true, nil
		}
	}
	return false, nil
}

// maybeCategorize fires the best-effort categorization hook for threads that
// just arrived in the inbox. It never blocks the upsert and its failures are
// only logged.
func (u *Upserter) maybeCategorize(accountID string, thread *models.Thread, messages []*models.Message, wasInboxed bool) {
	if u.categorizer == nil || wasInboxed {
		return
	}

	inboxed := false
	for _, msg := range messages {
		if msg.HasLabel(models.LabelInbox) {
			inboxed = true
			break
		}
	}
	if !inboxed {
		return
	}

	threadID := thread.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		stored, err := db.GetThread(ctx, u.pool, accountID, threadID)
		if err != nil {
			log.Printf("mirror: failed to load thread %s for categorization: %v", threadID, err)
			return
		}
		// Manually or previously categorized threads are left alone.
		if stored.Category != nil {
			return
		}

		category, ok := u.categorizer.Categorize(stored, messages)
		if !ok {
			return
		}

		if err := db.SetThreadCategory(ctx, u.pool, accountID, threadID, category); err != nil {
			log.Printf("mirror: failed to categorize thread %s: %v", threadID, err)
		}
	}()
}

// deriveThread computes the thread row and union label set from its messages.
// Aggregate invariants: read iff every message is read, starred iff any
// message is starred.
func deriveThread(accountID, threadID string, messages []*models.Message) (*models.Thread, []string) {
	thread := &models.Thread{
		ID:           threadID,
		AccountID:    accountID,
		MessageCount: len(messages),
		IsRead:       true,
	}

	labelSet := make(map[string]struct{})
	var newest *models.Message

	for _, msg := range messages {
		if !msg.IsRead {
			thread.IsRead = false
		}
		if msg.IsStarred {
			thread.IsStarred = true
		}
		if msg.IsImportant {
			thread.IsImportant = true
		}
		if len(msg.Attachments) > 0 {
			thread.HasAttachments = true
		}
		for _, label := range msg.Labels {
			labelSet[label] = struct{}{}
		}

		at := messageTime(msg)
		if at != nil && (thread.LastActivityAt == nil || at.After(*thread.LastActivityAt)) {
			thread.LastActivityAt = at
			newest = msg
		}
		if newest == nil {
			newest = msg
		}
	}

	if first := messages[0]; first.Subject != "" {
		thread.Subject = first.Subject
	} else if newest != nil {
		thread.Subject = newest.Subject
	}
	if newest != nil {
		thread.Snippet = makeSnippet(newest)
	}

	labels := make([]string, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}

	return thread, labels
}

func messageTime(msg *models.Message) *time.Time {
	if msg.ReceivedAt != nil {
		return msg.ReceivedAt
	}
	return msg.SentAt
}

func makeSnippet(msg *models.Message) string {
	text := strings.Join(strings.Fields(msg.BodyText), " ")
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength])
}
