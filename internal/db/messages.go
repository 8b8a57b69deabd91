package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ferrymail/ferry/internal/models"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

// SaveMessage saves or updates a message. Bodies are only overwritten by
// non-empty values so a metadata-only change record cannot wipe out an
// already-fetched body.
func SaveMessage(ctx context.Context, q Querier, message *models.Message) error {
	_, err := q.Exec(ctx, `
		INSERT INTO messages (
			id,
			account_id,
			thread_id,
			from_address,
			to_addresses,
			cc_addresses,
			subject,
			body_html,
			body_text,
			labels,
			is_read,
			is_starred,
			is_important,
			size_bytes,
			sent_at,
			received_at,
			unsubscribe_header
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (account_id, id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			from_address = EXCLUDED.from_address,
			to_addresses = EXCLUDED.to_addresses,
			cc_addresses = EXCLUDED.cc_addresses,
			subject = EXCLUDED.subject,
			body_html = CASE WHEN EXCLUDED.body_html = '' THEN messages.body_html ELSE EXCLUDED.body_html END,
			body_text = CASE WHEN EXCLUDED.body_text = '' THEN messages.body_text ELSE EXCLUDED.body_text END,
			labels = EXCLUDED.labels,
			is_read = EXCLUDED.is_read,
			is_starred = EXCLUDED.is_starred,
			is_important = EXCLUDED.is_important,
			size_bytes = EXCLUDED.size_bytes,
			sent_at = EXCLUDED.sent_at,
			received_at = EXCLUDED.received_at,
			unsubscribe_header = EXCLUDED.unsubscribe_header
	`,
		message.ID,
		message.AccountID,
		message.ThreadID,
		message.FromAddress,
		message.ToAddresses,
		message.CCAddresses,
		message.Subject,
		message.BodyHTML,
		message.BodyText,
		message.Labels,
		message.IsRead,
		message.IsStarred,
		message.IsImportant,
		message.SizeBytes,
		message.SentAt,
		message.ReceivedAt,
		message.UnsubscribeHeader,
	)

	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// GetMessage returns a single message by id.
func GetMessage(ctx context.Context, q Querier, accountID, messageID string) (*models.Message, error) {
	row := q.QueryRow(ctx, `
		SELECT id, account_id, thread_id, from_address, to_addresses, cc_addresses,
		       subject, body_html, body_text, labels, is_read, is_starred, is_important,
		       size_bytes, sent_at, received_at, unsubscribe_header
		FROM messages
		WHERE account_id = $1 AND id = $2
	`, accountID, messageID)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// GetMessagesForThread returns all messages for a thread in sent order.
func GetMessagesForThread(ctx context.Context, q Querier, accountID, threadID string) ([]*models.Message, error) {
	rows, err := q.Query(ctx, `
		SELECT id, account_id, thread_id, from_address, to_addresses, cc_addresses,
		       subject, body_html, body_text, labels, is_read, is_starred, is_important,
		       size_bytes, sent_at, received_at, unsubscribe_header
		FROM messages
		WHERE account_id = $1 AND thread_id = $2
		ORDER BY sent_at NULLS LAST
	`, accountID, threadID)

	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.AccountID,
		&msg.ThreadID,
		&msg.FromAddress,
		&msg.ToAddresses,
		&msg.CCAddresses,
		&msg.Subject,
		&msg.BodyHTML,
		&msg.BodyText,
		&msg.Labels,
		&msg.IsRead,
		&msg.IsStarred,
		&msg.IsImportant,
		&msg.SizeBytes,
		&msg.SentAt,
		&msg.ReceivedAt,
		&msg.UnsubscribeHeader,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessagesNotIn removes thread messages whose ids are absent from keep.
// Makes a snapshot upsert authoritative for the whole thread.
func DeleteMessagesNotIn(ctx context.Context, q Querier, accountID, threadID string, keep []string) error {
	_, err := q.Exec(ctx, `
		DELETE FROM messages
		WHERE account_id = $1 AND thread_id = $2 AND NOT (id = ANY($3))
	`, accountID, threadID, keep)

	if err != nil {
		return fmt.Errorf("failed to delete stale messages: %w", err)
	}

	return nil
}

// SetThreadMessagesRead flips the read flag on every message in a thread.
func SetThreadMessagesRead(ctx context.Context, q Querier, accountID, threadID string, isRead bool) error {
	_, err := q.Exec(ctx, `
		UPDATE messages SET is_read = $3
		WHERE account_id = $1 AND thread_id = $2
	`, accountID, threadID, isRead)

	if err != nil {
		return fmt.Errorf("failed to update message read flags: %w", err)
	}

	return nil
}

// SetThreadMessagesStarred flips the starred flag on every message in a thread.
func SetThreadMessagesStarred(ctx context.Context, q Querier, accountID, threadID string, isStarred bool) error {
	_, err := q.Exec(ctx, `
		UPDATE messages SET is_starred = $3
		WHERE account_id = $1 AND thread_id = $2
	`, accountID, threadID, isStarred)

	if err != nil {
		return fmt.Errorf("failed to update message starred flags: %w", err)
	}

	return nil
}

// AddThreadMessagesLabel appends a label to every message in a thread that
// does not already carry it.
func AddThreadMessagesLabel(ctx context.Context, q Querier, accountID, threadID, label string) error {
	_, err := q.Exec(ctx, `
		UPDATE messages SET labels = array_append(labels, $3)
		WHERE account_id = $1 AND thread_id = $2 AND NOT ($3 = ANY(labels))
	`, accountID, threadID, label)

	if err != nil {
		return fmt.Errorf("failed to add message label: %w", err)
	}

	return nil
}

// RemoveThreadMessagesLabel removes a label from every message in a thread.
func RemoveThreadMessagesLabel(ctx context.Context, q Querier, accountID, threadID, label string) error {
	_, err := q.Exec(ctx, `
		UPDATE messages SET labels = array_remove(labels, $3)
		WHERE account_id = $1 AND thread_id = $2
	`, accountID, threadID, label)

	if err != nil {
		return fmt.Errorf("failed to remove message label: %w", err)
	}

	return nil
}

// DeleteMessage removes a single message (attachments cascade).
func DeleteMessage(ctx context.Context, q Querier, accountID, messageID string) error {
	_, err := q.Exec(ctx, `
		DELETE FROM messages WHERE account_id = $1 AND id = $2
	`, accountID, messageID)

	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}

// SaveAttachment saves or updates attachment metadata for a message.
func SaveAttachment(ctx context.Context, q Querier, attachment *models.Attachment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO attachments (id, account_id, message_id, filename, mime_type, size_bytes, blob_ref, is_inline, content_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id, message_id, id) DO UPDATE SET
			filename = EXCLUDED.filename,
			mime_type = EXCLUDED.mime_type,
			size_bytes = EXCLUDED.size_bytes,
			blob_ref = EXCLUDED.blob_ref,
			is_inline = EXCLUDED.is_inline,
			content_id = EXCLUDED.content_id
	`,
		attachment.ID,
		attachment.AccountID,
		attachment.MessageID,
		attachment.Filename,
		attachment.MimeType,
		attachment.SizeBytes,
		attachment.BlobRef,
		attachment.IsInline,
		attachment.ContentID,
	)

	if err != nil {
		return fmt.Errorf("failed to save attachment: %w", err)
	}

	return nil
}

// GetAttachmentsForMessage returns all attachments for a message.
func GetAttachmentsForMessage(ctx context.Context, q Querier, accountID, messageID string) ([]*models.Attachment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, account_id, message_id, filename, mime_type, size_bytes, blob_ref, is_inline, content_id
		FROM attachments
		WHERE account_id = $1 AND message_id = $2
		ORDER BY id
	`, accountID, messageID)

	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.AccountID,
			&att.MessageID,
			&att.Filename,
			&att.MimeType,
			&att.SizeBytes,
			&att.BlobRef,
			&att.IsInline,
			&att.ContentID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, &att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}
