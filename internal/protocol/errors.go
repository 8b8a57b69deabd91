package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrCursorExpired signals that the remote protocol no longer accepts the
// incremental cursor (history purged, UIDVALIDITY changed, state superseded).
// The orchestrator recovers by falling back to a full sync.
var ErrCursorExpired = errors.New("sync cursor expired")

// ErrOffline is returned by clients that detect connectivity loss themselves.
var ErrOffline = errors.New("network unavailable")

// StatusError is a remote rejection with an HTTP-like status code, the common
// currency of the protocol client implementations.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("remote error: status %d", e.Code)
	}
	return fmt.Sprintf("remote error: status %d: %s", e.Code, e.Reason)
}

// IsRetryable classifies an error from a protocol client. Connectivity loss,
// timeouts, and 5xx-class responses are transient and worth retrying;
// everything else (malformed requests, permission denied, not found,
// unresolvable auth failures) is permanent. Unknown error types are treated
// as permanent so a broken request cannot clog the queue forever.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrOffline) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code >= 500:
			return true
		case statusErr.Code == 408 || statusErr.Code == 429:
			return true
		default:
			return false
		}
	}

	return false
}
