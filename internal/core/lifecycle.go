package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/ports"
	"github.com/eleven-am/gridboot/internal/readiness"
)

type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Sequencer runs the start sequence and hands back the runtime it started.
type Sequencer interface {
	Run(ctx context.Context, hooks ports.LifecycleHooks) (ports.RuntimeHandle, error)
}

// LifecycleAdapter turns the host's start and stop signals into a start
// sequence and a teardown. It is the only owner of the runtime handle.
type LifecycleAdapter struct {
	mu        sync.Mutex
	state     State
	sequencer Sequencer
	handle    ports.RuntimeHandle
	readiness *readiness.Manager
	logger    *slog.Logger

	hooksMu  sync.RWMutex
	preStart []ports.PreStartHook
	preStop  []ports.PreStopHook
}

func NewLifecycleAdapter(sequencer Sequencer, ready *readiness.Manager, logger *slog.Logger) *LifecycleAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if ready == nil {
		ready = readiness.NewManager()
	}
	return &LifecycleAdapter{
		state:     StateStopped,
		sequencer: sequencer,
		readiness: ready,
		logger:    logger.With("component", "lifecycle"),
	}
}

func (a *LifecycleAdapter) AddPreStartHook(hook ports.PreStartHook) {
	a.hooksMu.Lock()
	defer a.hooksMu.Unlock()
	a.preStart = append(a.preStart, hook)
}

func (a *LifecycleAdapter) AddPreStopHook(hook ports.PreStopHook) {
	a.hooksMu.Lock()
	defer a.hooksMu.Unlock()
	a.preStop = append(a.preStop, hook)
}

// Start handles the process starting signal. A failure leaves the adapter
// stopped with no runtime held.
func (a *LifecycleAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateStopped {
		state := a.state
		a.mu.Unlock()
		return domain.NewValidationError(
			"start signal received in wrong state",
			domain.ErrAlreadyStarted,
			domain.WithComponent("core.LifecycleAdapter"),
			domain.WithContextDetail("state", state.String()),
		)
	}
	a.state = StateStarting
	a.mu.Unlock()

	a.readiness.SetState(readiness.StateStarting)
	a.logger.Info("start signal received")

	handle, err := a.sequencer.Run(ctx, a)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		if handle != nil {
			if closeErr := handle.Close(); closeErr != nil {
				a.logger.Error("failed to close runtime after failed start", "error", closeErr)
			}
		}
		a.state = StateStopped
		a.readiness.SetState(readiness.StateNotReady)
		a.logger.Error("node failed to start", "error", err)
		return err
	}

	a.handle = handle
	a.state = StateRunning
	a.readiness.SetState(readiness.StateReady)
	a.logger.Info("node is ready", "node_id", handle.NodeID())
	return nil
}

// Stop handles the process stopping signal. Only a running node is stopped;
// in any other state it is a no-op. Close errors are logged and the reference
// is cleared regardless.
func (a *LifecycleAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateRunning || a.handle == nil {
		if a.state == StateStarting {
			a.logger.Warn("stop signal ignored while start is in progress")
		}
		return nil
	}

	a.state = StateStopping
	a.readiness.SetState(readiness.StateStopping)
	a.logger.Info("stop signal received", "node_id", a.handle.NodeID())

	if err := a.handle.Close(); err != nil {
		a.logger.Error("runtime close reported errors", "error", err)
	}

	a.handle = nil
	a.state = StateStopped
	a.readiness.SetState(readiness.StateNotReady)
	return nil
}

// OnLifecycleEvent is handed to the runtime as its callback sink.
func (a *LifecycleAdapter) OnLifecycleEvent(ctx context.Context, event ports.LifecycleEvent) error {
	a.logger.Debug("runtime lifecycle event", "event", event.String())

	a.hooksMu.RLock()
	preStart := append([]ports.PreStartHook(nil), a.preStart...)
	preStop := append([]ports.PreStopHook(nil), a.preStop...)
	a.hooksMu.RUnlock()

	switch event {
	case ports.BeforeNodeStart:
		for _, hook := range preStart {
			if err := hook.BeforeNodeStart(ctx); err != nil {
				return err
			}
		}
	case ports.BeforeNodeStop:
		for _, hook := range preStop {
			if err := hook.BeforeNodeStop(ctx); err != nil {
				a.logger.Warn("pre-stop hook failed", "error", err)
			}
		}
	}
	return nil
}

func (a *LifecycleAdapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *LifecycleAdapter) Handle() ports.RuntimeHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

func (a *LifecycleAdapter) Readiness() *readiness.Manager {
	return a.readiness
}
