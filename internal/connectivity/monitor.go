// Package connectivity tracks the process-wide online/offline flag. The flag
// is fed by an external collaborator (OS network monitor, ping loop); this
// core only consumes it to gate remote execution and queue draining.
package connectivity

import "sync"

// Monitor holds the current online state and notifies subscribers when the
// process transitions from offline to online.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	subs   []chan struct{}
}

// NewMonitor starts in the given state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline updates the state. A transition from offline to online wakes
// every subscriber; going offline is silent.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	becameOnline := online && !m.online
	m.online = online
	subs := m.subs
	m.mu.Unlock()

	if !becameOnline {
		return
	}

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// OnOnline returns a channel that receives a value each time the monitor
// transitions from offline to online. The channel is buffered; a pending
// notification coalesces with later ones.
func (m *Monitor) OnOnline() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan struct{}, 1)
	m.subs = append(m.subs, ch)
	return ch
}
