package readiness

import (
	"context"
	"sync"
	"time"
)

type State int

const (
	StateNotReady State = iota
	StateStarting
	StateReady
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateNotReady:
		return "not_ready"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Manager tracks whether the node may serve. Waiters block until the state is
// Ready; leaving Ready re-arms the wait.
type Manager struct {
	state    State
	mu       sync.RWMutex
	waitChan chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		state:    StateNotReady,
		waitChan: make(chan struct{}),
	}
}

func (m *Manager) SetState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldState := m.state
	m.state = state

	switch {
	case oldState != StateReady && state == StateReady:
		close(m.waitChan)
	case oldState == StateReady && state != StateReady:
		m.waitChan = make(chan struct{})
	}
}

func (m *Manager) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) IsReady() bool {
	return m.GetState() == StateReady
}

func (m *Manager) WaitUntilReady(ctx context.Context) error {
	m.mu.RLock()
	ready := m.state == StateReady
	wait := m.waitChan
	m.mu.RUnlock()

	if ready {
		return nil
	}

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) WaitUntilReadyTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.WaitUntilReady(ctx)
}
