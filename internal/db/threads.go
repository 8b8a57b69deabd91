package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ferrymail/ferry/internal/models"
)

// ErrThreadNotFound is returned when a requested thread cannot be found.
var ErrThreadNotFound = errors.New("thread not found")

// SaveThread saves or updates a thread row, including its derived aggregate
// flags. The category is preserved on update unless the incoming thread
// carries one.
func SaveThread(ctx context.Context, q Querier, thread *models.Thread) error {
	_, err := q.Exec(ctx, `
		INSERT INTO threads (
			id,
			account_id,
			subject,
			snippet,
			last_activity_at,
			message_count,
			is_read,
			is_starred,
			is_important,
			has_attachments,
			category
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (account_id, id) DO UPDATE SET
			subject = EXCLUDED.subject,
			snippet = EXCLUDED.snippet,
			last_activity_at = EXCLUDED.last_activity_at,
			message_count = EXCLUDED.message_count,
			is_read = EXCLUDED.is_read,
			is_starred = EXCLUDED.is_starred,
			is_important = EXCLUDED.is_important,
			has_attachments = EXCLUDED.has_attachments,
			category = COALESCE(EXCLUDED.category, threads.category)
	`,
		thread.ID,
		thread.AccountID,
		thread.Subject,
		thread.Snippet,
		thread.LastActivityAt,
		thread.MessageCount,
		thread.IsRead,
		thread.IsStarred,
		thread.IsImportant,
		thread.HasAttachments,
		thread.Category,
	)

	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}

	return nil
}

// GetThread returns a thread with its label set populated.
func GetThread(ctx context.Context, q Querier, accountID, threadID string) (*models.Thread, error) {
	var thread models.Thread

	err := q.QueryRow(ctx, `
		SELECT id, account_id, subject, snippet, last_activity_at, message_count,
		       is_read, is_starred, is_important, has_attachments, category
		FROM threads
		WHERE account_id = $1 AND id = $2
	`, accountID, threadID).Scan(
		&thread.ID,
		&thread.AccountID,
		&thread.Subject,
		&thread.Snippet,
		&thread.LastActivityAt,
		&thread.MessageCount,
		&thread.IsRead,
		&thread.IsStarred,
		&thread.IsImportant,
		&thread.HasAttachments,
		&thread.Category,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrThreadNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	labels, err := GetThreadLabels(ctx, q, accountID, threadID)
	if err != nil {
		return nil, err
	}
	thread.Labels = labels

	return &thread, nil
}

// GetThreadsByLabel returns threads carrying the given normalized label,
// newest activity first.
func GetThreadsByLabel(ctx context.Context, q Querier, accountID, label string, limit, offset int) ([]*models.Thread, error) {
	rows, err := q.Query(ctx, `
		SELECT t.id, t.account_id, t.subject, t.snippet, t.last_activity_at, t.message_count,
		       t.is_read, t.is_starred, t.is_important, t.has_attachments, t.category
		FROM threads t
		INNER JOIN thread_labels tl
			ON tl.account_id = t.account_id AND tl.thread_id = t.id
		WHERE t.account_id = $1 AND tl.label = $2
		ORDER BY t.last_activity_at DESC NULLS LAST
		LIMIT $3 OFFSET $4
	`, accountID, label, limit, offset)

	if err != nil {
		return nil, fmt.Errorf("failed to get threads by label: %w", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		var thread models.Thread
		if err := rows.Scan(
			&thread.ID,
			&thread.AccountID,
			&thread.Subject,
			&thread.Snippet,
			&thread.LastActivityAt,
			&thread.MessageCount,
			&thread.IsRead,
			&thread.IsStarred,
			&thread.IsImportant,
			&thread.HasAttachments,
			&thread.Category,
		); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, &thread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}

	return threads, nil
}

// ReplaceThreadLabels atomically replaces the thread's label-membership set.
// Call inside a transaction together with the thread upsert so readers never
// see a half-updated label set.
func ReplaceThreadLabels(ctx context.Context, q Querier, accountID, threadID string, labels []string) error {
	if _, err := q.Exec(ctx, `
		DELETE FROM thread_labels WHERE account_id = $1 AND thread_id = $2
	`, accountID, threadID); err != nil {
		return fmt.Errorf("failed to clear thread labels: %w", err)
	}

	for _, label := range labels {
		if _, err := q.Exec(ctx, `
			INSERT INTO thread_labels (account_id, thread_id, label)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, accountID, threadID, label); err != nil {
			return fmt.Errorf("failed to insert thread label %q: %w", label, err)
		}
	}

	return nil
}

// GetThreadLabels returns the thread's label set in sorted order.
func GetThreadLabels(ctx context.Context, q Querier, accountID, threadID string) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT label FROM thread_labels
		WHERE account_id = $1 AND thread_id = $2
		ORDER BY label
	`, accountID, threadID)

	if err != nil {
		return nil, fmt.Errorf("failed to get thread labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, label)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labels: %w", err)
	}

	return labels, nil
}

// AddThreadLabel adds a single label to a thread's membership set.
func AddThreadLabel(ctx context.Context, q Querier, accountID, threadID, label string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO thread_labels (account_id, thread_id, label)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, accountID, threadID, label)

	if err != nil {
		return fmt.Errorf("failed to add thread label: %w", err)
	}

	return nil
}

// RemoveThreadLabel removes a single label from a thread's membership set.
func RemoveThreadLabel(ctx context.Context, q Querier, accountID, threadID, label string) error {
	_, err := q.Exec(ctx, `
		DELETE FROM thread_labels
		WHERE account_id = $1 AND thread_id = $2 AND label = $3
	`, accountID, threadID, label)

	if err != nil {
		return fmt.Errorf("failed to remove thread label: %w", err)
	}

	return nil
}

// SetThreadCategory records a categorization result for a thread.
func SetThreadCategory(ctx context.Context, q Querier, accountID, threadID, category string) error {
	tag, err := q.Exec(ctx, `
		UPDATE threads SET category = $3
		WHERE account_id = $1 AND id = $2
	`, accountID, threadID, category)

	if err != nil {
		return fmt.Errorf("failed to set thread category: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrThreadNotFound
	}

	return nil
}

// UpdateThreadFlags updates the thread's aggregate read/starred flags in
// place. Used by the action pipeline's optimistic mirror writes; sync
// recomputes them from the full snapshot.
func UpdateThreadFlags(ctx context.Context, q Querier, accountID, threadID string, isRead, isStarred bool) error {
	tag, err := q.Exec(ctx, `
		UPDATE threads SET is_read = $3, is_starred = $4
		WHERE account_id = $1 AND id = $2
	`, accountID, threadID, isRead, isStarred)

	if err != nil {
		return fmt.Errorf("failed to update thread flags: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrThreadNotFound
	}

	return nil
}

// SetThreadRead updates only the thread's aggregate read flag.
func SetThreadRead(ctx context.Context, q Querier, accountID, threadID string, isRead bool) error {
	_, err := q.Exec(ctx, `
		UPDATE threads SET is_read = $3
		WHERE account_id = $1 AND id = $2
	`, accountID, threadID, isRead)

	if err != nil {
		return fmt.Errorf("failed to set thread read flag: %w", err)
	}

	return nil
}

// SetThreadStarred updates only the thread's aggregate starred flag.
func SetThreadStarred(ctx context.Context, q Querier, accountID, threadID string, isStarred bool) error {
	_, err := q.Exec(ctx, `
		UPDATE threads SET is_starred = $3
		WHERE account_id = $1 AND id = $2
	`, accountID, threadID, isStarred)

	if err != nil {
		return fmt.Errorf("failed to set thread starred flag: %w", err)
	}

	return nil
}

// DeleteThread removes a thread; messages, attachments, and labels cascade.
func DeleteThread(ctx context.Context, q Querier, accountID, threadID string) error {
	_, err := q.Exec(ctx, `
		DELETE FROM threads WHERE account_id = $1 AND id = $2
	`, accountID, threadID)

	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}

	return nil
}

// DeleteThreadsForAccount purges every cached thread for the account. Used by
// force-full-sync so stale mirror data cannot outlive a cleared cursor.
func DeleteThreadsForAccount(ctx context.Context, q Querier, accountID string) error {
	_, err := q.Exec(ctx, `
		DELETE FROM threads WHERE account_id = $1
	`, accountID)

	if err != nil {
		return fmt.Errorf("failed to delete threads for account: %w", err)
	}

	return nil
}
