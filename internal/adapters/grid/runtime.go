package grid

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/helpers/netutil"
	"github.com/eleven-am/gridboot/internal/ports"
	"github.com/eleven-am/gridboot/internal/readiness"
	"github.com/hashicorp/raft"
	"go.uber.org/multierr"
)

const runtimeComponent = "adapters.grid.Runtime"

type Options struct {
	Logger    *slog.Logger
	Readiness *readiness.Manager

	// ApplyTimeout bounds a single consensus write.
	ApplyTimeout time.Duration
	// OperationTimeout bounds a cluster operation including its retries.
	OperationTimeout time.Duration
	RetryDelay       time.Duration
	LeaveTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Readiness == nil {
		o.Readiness = readiness.NewManager()
	}
	if o.ApplyTimeout <= 0 {
		o.ApplyTimeout = 10 * time.Second
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = 60 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 200 * time.Millisecond
	}
	if o.LeaveTimeout <= 0 {
		o.LeaveTimeout = 2 * time.Second
	}
	return o
}

// Runtime starts grid nodes backed by raft consensus over badger storage,
// memberlist discovery and an HTTP connector.
type Runtime struct {
	opts Options
}

var _ ports.GridRuntime = (*Runtime)(nil)

func NewRuntime(opts Options) *Runtime {
	return &Runtime{opts: opts.withDefaults()}
}

func (rt *Runtime) Start(ctx context.Context, config domain.NodeConfiguration, hooks ports.LifecycleHooks) (ports.RuntimeHandle, error) {
	if hooks == nil {
		hooks = noopHooks{}
	}
	if config.ClientMode {
		return nil, startupError("client mode nodes cannot own grid data", nil)
	}
	if !config.Storage.PersistenceEnabled {
		return nil, startupError("persistence must be enabled for a server node", nil)
	}

	if err := hooks.OnLifecycleEvent(ctx, ports.BeforeNodeStart); err != nil {
		return nil, startupError("node start aborted by lifecycle hook", err)
	}

	n := &Node{
		config: config,
		hooks:  hooks,
		opts:   rt.opts,
		logger: rt.opts.Logger.With("instance", config.InstanceName),
	}
	n.cluster = &cluster{node: n}

	if err := n.start(); err != nil {
		if shutdownErr := n.shutdown(); shutdownErr != nil {
			n.logger.Warn("cleanup after failed start reported errors", "error", shutdownErr)
		}
		return nil, err
	}

	if err := hooks.OnLifecycleEvent(ctx, ports.AfterNodeStart); err != nil {
		n.logger.Warn("after-start hook failed", "error", err)
	}

	n.logger.Info("grid node started",
		"node_id", n.id,
		"raft", n.transport.LocalAddr(),
		"discovery", n.discovery.Address(),
		"connector", n.connectorAddr,
	)
	return n, nil
}

// Node is a running grid node. It is returned as the runtime handle.
type Node struct {
	id     domain.NodeID
	config domain.NodeConfiguration
	hooks  ports.LifecycleHooks
	opts   Options
	logger *slog.Logger

	storage       *Storage
	fsm           *FSM
	transport     *raft.NetworkTransport
	raft          *raft.Raft
	discovery     *Discovery
	server        *http.Server
	listener      net.Listener
	connectorAddr string
	forwarder     *forwarder
	cluster       *cluster

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

var _ ports.RuntimeHandle = (*Node)(nil)

func (n *Node) start() error {
	id, err := loadOrCreateNodeID(n.config.WorkDirectory)
	if err != nil {
		return startupError("failed to resolve node id", err)
	}
	n.id = id
	n.logger = n.logger.With("node_id", id)

	storage, err := NewStorage(StorageConfigFor(n.config.Storage, n.config.Quiet), n.logger)
	if err != nil {
		return startupError("failed to open persistent storage", err)
	}
	n.storage = storage
	n.fsm = NewFSM(storage.StateDB(), n.logger)

	host := n.config.Discovery.LocalAddress
	raftLogger := newHCLogger(n.logger.With("component", "raft"), n.config.Quiet)

	_, err = netutil.TryPorts(n.config.Communication.LocalPort, n.config.Communication.LocalPortRange, func(port int) error {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		advertise, err := net.ResolveTCPAddr("tcp", addr)
		if err != nil {
			return err
		}
		transport, err := raft.NewTCPTransportWithLogger(addr, advertise, 3, 10*time.Second, raftLogger)
		if err != nil {
			return err
		}
		n.transport = transport
		return nil
	})
	if err != nil {
		return startupError("failed to bind communication port", err)
	}

	listener, _, err := netutil.ListenTCPInRange(n.config.Connector.Host, n.config.Connector.Port, n.config.Connector.PortRange)
	if err != nil {
		return startupError("failed to bind connector port", err)
	}
	n.listener = listener
	n.connectorAddr = listener.Addr().String()
	n.forwarder = newForwarder(n.opts.ApplyTimeout, n.logger)

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(n.id)
	raftConfig.HeartbeatTimeout = 500 * time.Millisecond
	raftConfig.ElectionTimeout = 500 * time.Millisecond
	raftConfig.LeaderLeaseTimeout = 250 * time.Millisecond
	raftConfig.CommitTimeout = 50 * time.Millisecond
	raftConfig.Logger = raftLogger

	r, err := raft.NewRaft(raftConfig, n.fsm, storage.LogStore(), storage.StableStore(), storage.SnapshotStore(), n.transport)
	if err != nil {
		return startupError("failed to start consensus", err)
	}
	n.raft = r

	n.discovery = NewDiscovery(DiscoveryConfig{
		Host:      host,
		Port:      n.config.Discovery.LocalPort,
		PortRange: n.config.Discovery.LocalPortRange,
		Seeds:     n.config.Discovery.Addresses,
		Quiet:     n.config.Quiet,
	}, nodeMeta{
		ID:            n.id,
		Role:          roleServer,
		RaftAddr:      string(n.transport.LocalAddr()),
		ConnectorAddr: n.connectorAddr,
		Instance:      n.config.InstanceName,
		Attributes:    metaAttributes(n.config.UserAttributes()),
	}, n.logger)
	if err := n.discovery.Start(); err != nil {
		n.discovery = nil
		return startupError("failed to bind discovery port", err)
	}

	if active, err := n.fsm.Active(); err == nil && active {
		n.discovery.SetActive(true)
	}

	n.server = newConnector(n, n.opts.Readiness, n.logger).server()
	go func() {
		if err := n.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("connector stopped", "error", err)
		}
	}()

	return nil
}

func (n *Node) NodeID() domain.NodeID {
	return n.id
}

func (n *Node) Cluster() ports.ClusterHandle {
	return n.cluster
}

func (n *Node) CacheNames(ctx context.Context) ([]string, error) {
	if n.closed.Load() {
		return nil, domain.ErrClosed
	}
	return n.fsm.DatasetNames()
}

// Close leaves the grid and releases every resource. Only the first call does
// any work; later calls return its result.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.opts.OperationTimeout)
		defer cancel()

		var errs error
		if err := n.hooks.OnLifecycleEvent(ctx, ports.BeforeNodeStop); err != nil {
			errs = multierr.Append(errs, err)
		}

		errs = multierr.Append(errs, n.shutdown())

		if err := n.hooks.OnLifecycleEvent(ctx, ports.AfterNodeStop); err != nil {
			errs = multierr.Append(errs, err)
		}

		n.closeErr = errs
		n.logger.Info("grid node stopped")
	})
	return n.closeErr
}

// shutdown tears down whatever start managed to bring up, in reverse order.
func (n *Node) shutdown() error {
	n.closed.Store(true)
	var errs error

	if n.discovery != nil {
		errs = multierr.Append(errs, n.discovery.Leave(n.opts.LeaveTimeout))
	}

	if n.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = multierr.Append(errs, n.server.Shutdown(ctx))
		cancel()
	} else if n.listener != nil {
		errs = multierr.Append(errs, n.listener.Close())
	}

	if n.raft != nil {
		errs = multierr.Append(errs, n.raft.Shutdown().Error())
	}

	if n.transport != nil {
		errs = multierr.Append(errs, n.transport.Close())
	}

	if n.storage != nil {
		errs = multierr.Append(errs, n.storage.Close())
	}

	return errs
}

func startupError(message string, cause error) *domain.DomainError {
	return domain.NewStartupError(message, cause, domain.WithComponent(runtimeComponent))
}

type noopHooks struct{}

func (noopHooks) OnLifecycleEvent(context.Context, ports.LifecycleEvent) error { return nil }
