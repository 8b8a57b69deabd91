package protocol

import (
	"fmt"
	"sync"

	"github.com/ferrymail/ferry/internal/models"
)

// Factory builds a Client for one account, handling credential lookup and
// transport setup.
type Factory func(account *models.Account) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[models.Protocol]Factory)
)

// Register installs the client factory for a protocol kind. Implementations
// register themselves from an init function, database/sql driver style.
// Registering the same kind twice panics.
func Register(kind models.Protocol, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("protocol: Register called with nil factory")
	}
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("protocol: Register called twice for kind %q", kind))
	}
	registry[kind] = factory
}

// NewClient builds a client for the account using the registered factory.
func NewClient(account *models.Account) (Client, error) {
	registryMu.RLock()
	factory, ok := registry[account.Protocol]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no client registered for protocol %q", account.Protocol)
	}
	return factory(account)
}
