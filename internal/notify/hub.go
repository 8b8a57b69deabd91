// Package notify pushes sync status and badge counts to connected UIs over
// WebSocket. Delivery is best-effort; the UI re-reads the mirror for truth.
package notify

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrTooManyConnections is returned by Register when an account is already
// at its connection limit.
var ErrTooManyConnections = errors.New("too many connections for this account")

// Frame is the JSON envelope written to connected UIs.
type Frame struct {
	Type      string    `json:"type"`
	AccountID string    `json:"account_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Hub fans frames out to the WebSocket connections of one account. Multiple
// windows on the same account each hold their own connection, up to a
// per-account cap.
type Hub struct {
	mu            sync.RWMutex
	conns         map[string]map[*websocket.Conn]struct{}
	maxPerAccount int
}

// NewHub creates a Hub with a per-account connection limit.
func NewHub(maxPerAccount int) *Hub {
	if maxPerAccount <= 0 {
		maxPerAccount = 10
	}
	return &Hub{
		conns:         make(map[string]map[*websocket.Conn]struct{}),
		maxPerAccount: maxPerAccount,
	}
}

// Register adds a connection for the given account. Over the limit, the
// connection is closed with a policy-violation frame and
// ErrTooManyConnections is returned.
func (h *Hub) Register(accountID string, conn *websocket.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	accountConns, ok := h.conns[accountID]
	if !ok {
		accountConns = make(map[*websocket.Conn]struct{})
		h.conns[accountID] = accountConns
	}

	if len(accountConns) >= h.maxPerAccount {
		log.Printf("notify: account %s exceeded max connections (%d), closing new connection", accountID, h.maxPerAccount)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ErrTooManyConnections.Error()),
			// Zero deadline - best effort.
			time.Time{},
		)
		_ = conn.Close()
		return ErrTooManyConnections
	}

	accountConns[conn] = struct{}{}
	return nil
}

// Unregister removes a connection for the given account and closes it.
// Unknown connections are closed all the same.
func (h *Hub) Unregister(accountID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if accountConns, ok := h.conns[accountID]; ok {
		delete(accountConns, conn)
		if len(accountConns) == 0 {
			delete(h.conns, accountID)
		}
	}

	_ = conn.Close()
}

// Broadcast encodes the frame and writes it to every connection of the
// frame's account. A connection that fails its write is dropped.
func (h *Hub) Broadcast(frame Frame) {
	h.mu.RLock()
	accountConns := h.conns[frame.AccountID]
	targets := make([]*websocket.Conn, 0, len(accountConns))
	for conn := range accountConns {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("Warning: failed to encode %s frame: %v", frame.Type, err)
		return
	}

	for _, conn := range targets {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("notify: failed to write %s frame for account %s: %v", frame.Type, frame.AccountID, err)
			go h.Unregister(frame.AccountID, conn)
		}
	}
}

// ActiveConnections returns the number of active connections for an account.
func (h *Hub) ActiveConnections(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.conns[accountID])
}
