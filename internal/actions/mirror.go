package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrymail/ferry/internal/db"
	"github.com/ferrymail/ferry/internal/models"
)

// applyMirror writes the action's effect into the local mirror inside one
// transaction, so a reader never sees a thread row disagreeing with its
// label or message rows. The mirror write happens before remote dispatch and
// survives a process restart; the next sync reconciles any divergence.
func applyMirror(ctx context.Context, pool *pgxpool.Pool, accountID string, a Action) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin mirror transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := applyMirrorTx(ctx, tx, accountID, a); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit mirror transaction: %w", err)
	}

	return nil
}

// revertMirror undoes a mirror write whose action was rejected by the remote.
// Only kinds with a cheap exact-enough inverse are reverted: flag flips and
// label moves. Removals (trash, delete, delete_draft) stay removed since the
// deleted rows cannot be resurrected locally, and locally mirrored drafts keep
// their content; the next sync reconciles whatever remains.
func revertMirror(ctx context.Context, pool *pgxpool.Pool, accountID string, a Action) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin mirror transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := revertMirrorTx(ctx, tx, accountID, a); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit mirror transaction: %w", err)
	}

	return nil
}

func revertMirrorTx(ctx context.Context, q db.Querier, accountID string, a Action) error {
	switch a.Kind {
	case KindArchive:
		return swapLabel(ctx, q, accountID, a.ThreadID, models.LabelArchive, models.LabelInbox)

	case KindMarkRead, KindMarkUnread:
		wasRead := a.Kind == KindMarkUnread
		if err := db.SetThreadMessagesRead(ctx, q, accountID, a.ThreadID, wasRead); err != nil {
			return err
		}
		return db.SetThreadRead(ctx, q, accountID, a.ThreadID, wasRead)

	case KindStar, KindUnstar:
		wasStarred := a.Kind == KindUnstar
		if err := db.SetThreadMessagesStarred(ctx, q, accountID, a.ThreadID, wasStarred); err != nil {
			return err
		}
		return db.SetThreadStarred(ctx, q, accountID, a.ThreadID, wasStarred)

	case KindMarkSpam:
		return swapLabel(ctx, q, accountID, a.ThreadID, models.LabelSpam, models.LabelInbox)

	case KindMarkNotSpam:
		return swapLabel(ctx, q, accountID, a.ThreadID, models.LabelInbox, models.LabelSpam)

	case KindMoveToFolder:
		return swapLabel(ctx, q, accountID, a.ThreadID, a.Folder, models.LabelInbox)

	case KindAddLabel:
		return removeLabelEverywhere(ctx, q, accountID, a.ThreadID, a.Label)

	case KindRemoveLabel:
		return addLabelEverywhere(ctx, q, accountID, a.ThreadID, a.Label)

	default:
		return nil
	}
}

func applyMirrorTx(ctx context.Context, q db.Querier, accountID string, a Action) error {
	switch a.Kind {
	case KindArchive:
		return swapLabel(ctx, q, accountID, a.ThreadID, models.LabelInbox, models.LabelArchive)

	case KindTrash:
		if err := removeLabelEverywhere(ctx, q, accountID, a.ThreadID, models.LabelInbox); err != nil {
			return err
		}
		if err := removeLabelEverywhere(ctx, q, accountID, a.ThreadID, models.LabelSpam); err != nil {
			return err
		}
		return addLabelEverywhere(ctx, q, accountID, a.ThreadID, models.LabelTrash)

	case KindDelete:
		return db.DeleteThread(ctx, q, accountID, a.ThreadID)

	case KindMarkRead, KindMarkUnread:
		isRead := a.Kind == KindMarkRead
		if err := db.SetThreadMessagesRead(ctx, q, accountID, a.ThreadID, isRead); err != nil {
			return err
		}
		return db.SetThreadRead(ctx, q, accountID, a.ThreadID, isRead)

	case KindStar, KindUnstar:
		isStarred := a.Kind == KindStar
		if err := db.SetThreadMessagesStarred(ctx, q, accountID, a.ThreadID, isStarred); err != nil {
			return err
		}
		return db.SetThreadStarred(ctx, q, accountID, a.ThreadID, isStarred)

	case KindMarkSpam:
		return swapLabel(ctx, q, accountID, a.ThreadID, models.LabelInbox, models.LabelSpam)

	case KindMarkNotSpam:
		return swapLabel(ctx, q, accountID, a.ThreadID, models.LabelSpam, models.LabelInbox)

	case KindMoveToFolder:
		return swapLabel(ctx, q, accountID, a.ThreadID, models.LabelInbox, a.Folder)

	case KindAddLabel:
		return addLabelEverywhere(ctx, q, accountID, a.ThreadID, a.Label)

	case KindRemoveLabel:
		return removeLabelEverywhere(ctx, q, accountID, a.ThreadID, a.Label)

	case KindCreateDraft, KindUpdateDraft:
		return saveDraft(ctx, q, accountID, a)

	case KindDeleteDraft:
		return db.DeleteMessage(ctx, q, accountID, a.MessageID)

	case KindSendMessage:
		// Sent mail enters the mirror through the next sync; there is
		// nothing truthful to write locally before the remote accepts it.
		return nil

	default:
		return fmt.Errorf("no mirror mapping for action kind %q", a.Kind)
	}
}

// swapLabel removes one label and adds another on the thread and all of its
// messages.
func swapLabel(ctx context.Context, q db.Querier, accountID, threadID, remove, add string) error {
	if err := removeLabelEverywhere(ctx, q, accountID, threadID, remove); err != nil {
		return err
	}
	return addLabelEverywhere(ctx, q, accountID, threadID, add)
}

func addLabelEverywhere(ctx context.Context, q db.Querier, accountID, threadID, label string) error {
	if err := db.AddThreadLabel(ctx, q, accountID, threadID, label); err != nil {
		return err
	}
	return db.AddThreadMessagesLabel(ctx, q, accountID, threadID, label)
}

func removeLabelEverywhere(ctx context.Context, q db.Querier, accountID, threadID, label string) error {
	if err := db.RemoveThreadLabel(ctx, q, accountID, threadID, label); err != nil {
		return err
	}
	return db.RemoveThreadMessagesLabel(ctx, q, accountID, threadID, label)
}

// saveDraft mirrors a composed draft as a draft-labeled message. A new draft
// gets a single-message thread of its own until the remote assigns real ids
// at the next sync.
func saveDraft(ctx context.Context, q db.Querier, accountID string, a Action) error {
	threadID := a.ThreadID
	if threadID == "" {
		threadID = a.MessageID
	}

	now := time.Now().UTC()

	thread := &models.Thread{
		ID:             threadID,
		AccountID:      accountID,
		Subject:        a.Outgoing.Subject,
		Snippet:        a.Outgoing.BodyText,
		LastActivityAt: &now,
		MessageCount:   1,
		IsRead:         true,
	}
	if err := db.SaveThread(ctx, q, thread); err != nil {
		return err
	}
	if err := db.AddThreadLabel(ctx, q, accountID, threadID, models.LabelDraft); err != nil {
		return err
	}

	message := &models.Message{
		ID:          a.MessageID,
		ThreadID:    threadID,
		AccountID:   accountID,
		ToAddresses: a.Outgoing.To,
		CCAddresses: a.Outgoing.CC,
		Subject:     a.Outgoing.Subject,
		BodyHTML:    a.Outgoing.BodyHTML,
		BodyText:    a.Outgoing.BodyText,
		Labels:      []string{models.LabelDraft},
		IsRead:      true,
		SentAt:      &now,
	}
	return db.SaveMessage(ctx, q, message)
}
