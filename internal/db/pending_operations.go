package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ferrymail/ferry/internal/models"
)

// ErrOperationNotFound is returned when a requested pending operation cannot be found.
var ErrOperationNotFound = errors.New("pending operation not found")

// EnqueueOperation persists a new pending operation.
func EnqueueOperation(ctx context.Context, q Querier, op *models.PendingOperation) error {
	if op.MaxRetries <= 0 {
		op.MaxRetries = models.DefaultMaxRetries
	}
	if op.Status == "" {
		op.Status = models.OperationPending
	}
	params := op.Params
	if len(params) == 0 {
		params = []byte("{}")
	}

	err := q.QueryRow(ctx, `
		INSERT INTO pending_operations (id, account_id, operation_type, resource_id, params, status, retry_count, max_retries, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`,
		op.ID,
		op.AccountID,
		op.OperationType,
		op.ResourceID,
		params,
		op.Status,
		op.RetryCount,
		op.MaxRetries,
		op.NextRetryAt,
	).Scan(&op.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}

	return nil
}

// ListPendingOperations returns every operation with status "pending" for the
// account in creation order. The queue processor relies on this ordering to
// replay per-resource operations in the order the user issued them.
func ListPendingOperations(ctx context.Context, q Querier, accountID string) ([]*models.PendingOperation, error) {
	rows, err := q.Query(ctx, `
		SELECT id, account_id, operation_type, resource_id, params, status,
		       retry_count, max_retries, next_retry_at, created_at, error_message
		FROM pending_operations
		WHERE account_id = $1 AND status = 'pending'
		ORDER BY created_at, id
	`, accountID)

	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

// ListFailedOperations returns terminally failed operations for visibility.
func ListFailedOperations(ctx context.Context, q Querier, accountID string) ([]*models.PendingOperation, error) {
	rows, err := q.Query(ctx, `
		SELECT id, account_id, operation_type, resource_id, params, status,
		       retry_count, max_retries, next_retry_at, created_at, error_message
		FROM pending_operations
		WHERE account_id = $1 AND status = 'failed'
		ORDER BY created_at, id
	`, accountID)

	if err != nil {
		return nil, fmt.Errorf("failed to list failed operations: %w", err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

func collectOperations(rows pgx.Rows) ([]*models.PendingOperation, error) {
	var ops []*models.PendingOperation
	for rows.Next() {
		var op models.PendingOperation
		if err := rows.Scan(
			&op.ID,
			&op.AccountID,
			&op.OperationType,
			&op.ResourceID,
			&op.Params,
			&op.Status,
			&op.RetryCount,
			&op.MaxRetries,
			&op.NextRetryAt,
			&op.CreatedAt,
			&op.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, &op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// ResetExecutingOperations returns the account's "executing" rows to the
// pending state. A crash between picking an operation up and settling it
// leaves the row stuck in executing, where no replay pass would ever see it
// again; replay is idempotent on the remote, so re-pending is safe. Returns
// the number of rows recovered.
func ResetExecutingOperations(ctx context.Context, q Querier, accountID string) (int, error) {
	tag, err := q.Exec(ctx, `
		UPDATE pending_operations SET status = 'pending'
		WHERE account_id = $1 AND status = 'executing'
	`, accountID)

	if err != nil {
		return 0, fmt.Errorf("failed to reset executing operations: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// MarkOperationExecuting transitions an operation to the executing state.
func MarkOperationExecuting(ctx context.Context, q Querier, operationID string) error {
	tag, err := q.Exec(ctx, `
		UPDATE pending_operations SET status = 'executing' WHERE id = $1
	`, operationID)

	if err != nil {
		return fmt.Errorf("failed to mark operation executing: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrOperationNotFound
	}

	return nil
}

// RescheduleOperation records a retryable failure: increments the retry count,
// stores the error, schedules the next attempt, and returns the operation to
// the pending state.
func RescheduleOperation(ctx context.Context, q Querier, operationID string, nextRetryAt time.Time, errorMessage string) error {
	tag, err := q.Exec(ctx, `
		UPDATE pending_operations
		SET status = 'pending',
		    retry_count = retry_count + 1,
		    next_retry_at = $2,
		    error_message = $3
		WHERE id = $1
	`, operationID, nextRetryAt, errorMessage)

	if err != nil {
		return fmt.Errorf("failed to reschedule operation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrOperationNotFound
	}

	return nil
}

// MarkOperationFailed moves an operation to the terminal failed state. The row
// is retained so the user can see the failure; it is never retried again.
func MarkOperationFailed(ctx context.Context, q Querier, operationID, errorMessage string) error {
	tag, err := q.Exec(ctx, `
		UPDATE pending_operations
		SET status = 'failed', error_message = $2
		WHERE id = $1
	`, operationID, errorMessage)

	if err != nil {
		return fmt.Errorf("failed to mark operation failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrOperationNotFound
	}

	return nil
}

// DeleteOperation removes an operation after successful replay.
func DeleteOperation(ctx context.Context, q Querier, operationID string) error {
	_, err := q.Exec(ctx, `
		DELETE FROM pending_operations WHERE id = $1
	`, operationID)

	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}

	return nil
}

// DeleteOperations removes a batch of operations, used by queue compaction.
func DeleteOperations(ctx context.Context, q Querier, operationIDs []string) error {
	if len(operationIDs) == 0 {
		return nil
	}

	_, err := q.Exec(ctx, `
		DELETE FROM pending_operations WHERE id = ANY($1)
	`, operationIDs)

	if err != nil {
		return fmt.Errorf("failed to delete operations: %w", err)
	}

	return nil
}

// CountPendingOperations counts operations still awaiting delivery.
func CountPendingOperations(ctx context.Context, q Querier, accountID string) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM pending_operations
		WHERE account_id = $1 AND status IN ('pending', 'executing')
	`, accountID).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}

	return count, nil
}
