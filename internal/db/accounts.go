package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ferrymail/ferry/internal/models"
)

// ErrAccountNotFound is returned when a requested account cannot be found.
var ErrAccountNotFound = errors.New("account not found")

// SaveAccount inserts or updates an account. The sync cursor is deliberately
// left untouched on update; only UpdateSyncCursor moves it.
func SaveAccount(ctx context.Context, q Querier, account *models.Account) error {
	_, err := q.Exec(ctx, `
		INSERT INTO accounts (id, email_address, protocol)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			email_address = EXCLUDED.email_address,
			protocol = EXCLUDED.protocol
	`, account.ID, account.EmailAddress, account.Protocol)

	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// GetAccount returns an account by its ID.
func GetAccount(ctx context.Context, q Querier, accountID string) (*models.Account, error) {
	var account models.Account

	err := q.QueryRow(ctx, `
		SELECT id, email_address, protocol, sync_cursor, created_at
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(
		&account.ID,
		&account.EmailAddress,
		&account.Protocol,
		&account.SyncCursor,
		&account.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// ListAccounts returns all configured accounts in creation order.
func ListAccounts(ctx context.Context, q Querier) ([]*models.Account, error) {
	rows, err := q.Query(ctx, `
		SELECT id, email_address, protocol, sync_cursor, created_at
		FROM accounts
		ORDER BY created_at
	`)

	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(
			&account.ID,
			&account.EmailAddress,
			&account.Protocol,
			&account.SyncCursor,
			&account.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// UpdateSyncCursor stores the account's sync cursor. A nil cursor resets the
// account to the never-synced state, forcing the next run to do a full sync.
func UpdateSyncCursor(ctx context.Context, q Querier, accountID string, cursor *string) error {
	tag, err := q.Exec(ctx, `
		UPDATE accounts SET sync_cursor = $2 WHERE id = $1
	`, accountID, cursor)

	if err != nil {
		return fmt.Errorf("failed to update sync cursor: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}
