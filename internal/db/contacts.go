package db

import (
	"context"
	"fmt"
	"time"
)

// TouchContact bumps the send count and last-used timestamp for a recipient
// address. Called best-effort from the contact-frequency event subscriber.
func TouchContact(ctx context.Context, q Querier, accountID, address string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO contacts (account_id, address, send_count, last_used_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (account_id, address) DO UPDATE SET
			send_count = contacts.send_count + 1,
			last_used_at = now()
	`, accountID, address)

	if err != nil {
		return fmt.Errorf("failed to touch contact: %w", err)
	}

	return nil
}

// Contact is a recipient address with usage bookkeeping.
type Contact struct {
	AccountID  string
	Address    string
	SendCount  int
	LastUsedAt time.Time
}

// GetFrequentContacts returns the most-used recipient addresses for an account.
func GetFrequentContacts(ctx context.Context, q Querier, accountID string, limit int) ([]*Contact, error) {
	rows, err := q.Query(ctx, `
		SELECT account_id, address, send_count, last_used_at
		FROM contacts
		WHERE account_id = $1
		ORDER BY send_count DESC, last_used_at DESC
		LIMIT $2
	`, accountID, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to get frequent contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.AccountID, &c.Address, &c.SendCount, &c.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}

	return contacts, nil
}
