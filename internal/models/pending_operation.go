package models

import (
	"encoding/json"
	"time"
)

// OperationStatus is the lifecycle state of a queued user action.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationExecuting OperationStatus = "executing"
	OperationFailed    OperationStatus = "failed"
)

// DefaultMaxRetries is the retry limit applied to newly enqueued operations.
const DefaultMaxRetries = 10

// PendingOperation is a durable record of a user action awaiting delivery to
// the remote service. Rows survive process restarts; they are deleted on
// successful replay and retained with status "failed" after permanent errors
// or retry exhaustion so the user can see what never made it out.
type PendingOperation struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	OperationType string          `json:"operation_type"`
	// ResourceID is the thread or draft the operation targets, used for
	// queue compaction.
	ResourceID   string          `json:"resource_id"`
	Params       json.RawMessage `json:"params"`
	Status       OperationStatus `json:"status"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}
