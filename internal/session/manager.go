package session

import (
	"context"
	"sync"

	"github.com/nhle/mail-export/internal/model"
)

// Manager keeps at most one live session. Connecting again tears down
// the previous session first.
type Manager struct {
	opts Options

	mu      sync.Mutex
	current *Session
	state   model.SessionState
}

// NewManager creates a Manager that opens sessions with opts.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts, state: model.SessionDisconnected}
}

// Connect disconnects any current session (best effort) and opens a new
// one for account.
func (m *Manager) Connect(ctx context.Context, account model.Account) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Disconnect()
		m.current = nil
	}

	m.state = model.SessionConnecting
	s, err := Connect(ctx, account, m.opts)
	if err != nil {
		m.state = model.SessionFailed
		return nil, err
	}

	m.current = s
	return s, nil
}

// Open starts an extra session for account that the Manager does not
// track. Export pools use it; the caller disconnects it.
func (m *Manager) Open(ctx context.Context, account model.Account) (*Session, error) {
	return Connect(ctx, account, m.opts)
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// State returns the state of the live session, or the outcome of the
// last connection attempt when there is none.
func (m *Manager) State() model.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current.State()
	}
	return m.state
}

// Close disconnects the live session, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Disconnect()
		m.current = nil
	}
	m.state = model.SessionDisconnected
}
