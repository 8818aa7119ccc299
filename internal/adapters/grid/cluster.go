package grid

import (
	"context"
	"errors"

	"github.com/avast/retry-go/v4"
	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/ports"
	"github.com/hashicorp/raft"
)

var errFormationPending = errors.New("waiting for another node to form the cluster")

// cluster implements ports.ClusterHandle for a Node. Writes go to the leader,
// forwarded over the connector when this node is not it.
type cluster struct {
	node *Node
}

var _ ports.ClusterHandle = (*cluster)(nil)

// Activate with true forms the cluster if nobody has: the lowest visible
// server bootstraps consensus, everybody else waits for an active peer.
func (c *cluster) Activate(ctx context.Context, active bool) error {
	n := c.node
	if n.closed.Load() {
		return domain.ErrClosed
	}

	current, err := n.fsm.Active()
	if err != nil {
		return err
	}
	if current == active {
		n.discovery.SetActive(active)
		return nil
	}

	if active {
		joined, err := n.ensureFormed(ctx)
		if err != nil {
			return err
		}
		if joined {
			n.logger.Info("joined an already active cluster")
			n.discovery.SetActive(true)
			return nil
		}
	}

	if _, err := n.apply(ctx, domain.NewActivateCommand(active)); err != nil {
		return err
	}
	n.discovery.SetActive(active)
	return nil
}

func (c *cluster) Active(ctx context.Context) (bool, error) {
	active, err := c.node.fsm.Active()
	if err != nil || active {
		return active, err
	}
	return len(c.node.discovery.ActivePeers()) > 0, nil
}

func (c *cluster) ServerNodeIDs(ctx context.Context) (domain.NodeSet, error) {
	if c.node.closed.Load() {
		return nil, domain.ErrClosed
	}
	return c.node.discovery.ServerIDs(), nil
}

// SetBaselineTopologyVersion commits the server set the leader saw at the
// given topology version.
func (c *cluster) SetBaselineTopologyVersion(ctx context.Context, version uint64) error {
	_, err := c.node.setBaseline(ctx, baselineRequest{Version: version})
	return err
}

func (c *cluster) SetBaselineTopology(ctx context.Context, nodes domain.NodeSet) error {
	if len(nodes) == 0 {
		return domain.NewValidationError("baseline topology cannot be empty", nil,
			domain.WithComponent(runtimeComponent))
	}
	_, err := c.node.setBaseline(ctx, baselineRequest{Nodes: nodes})
	return err
}

func (c *cluster) BaselineTopology(ctx context.Context) (domain.BaselineTopology, error) {
	return c.node.fsm.Baseline()
}

type formationStep int

const (
	formationDone formationStep = iota
	formationJoin
	formationWait
	formationBootstrap
)

// formationInput is what a node knows when deciding how to form the cluster.
type formationInput struct {
	self          domain.NodeID
	configured    bool
	existingState bool
	activePeers   int
	servers       domain.NodeSet
}

// decideFormation picks the next formation step. Only the lowest visible
// server with no persisted consensus state and no active peer may bootstrap.
func decideFormation(in formationInput) formationStep {
	switch {
	case in.configured:
		return formationDone
	case in.activePeers > 0:
		return formationJoin
	case in.existingState:
		return formationWait
	case len(in.servers) == 0 || in.servers[0] != in.self:
		return formationWait
	default:
		return formationBootstrap
	}
}

// ensureFormed reports joined=true when another node already runs an active
// cluster that this node should wait to be added to.
func (n *Node) ensureFormed(ctx context.Context) (bool, error) {
	joined := false
	err := n.withRetry(ctx, "form cluster", func() error {
		future := n.raft.GetConfiguration()
		if err := future.Error(); err != nil {
			return err
		}

		in := formationInput{
			self:          n.id,
			configured:    len(future.Configuration().Servers) > 0,
			existingState: n.storage.HasExistingState(),
			activePeers:   len(n.discovery.ActivePeers()),
			servers:       n.discovery.ServerIDs(),
		}
		switch decideFormation(in) {
		case formationDone:
			return nil
		case formationJoin:
			joined = true
			return nil
		case formationWait:
			return errFormationPending
		}

		n.logger.Info("forming cluster", "visible_servers", in.servers.Strings())
		bootstrap := raft.Configuration{
			Servers: []raft.Server{{
				ID:      raft.ServerID(n.id),
				Address: n.transport.LocalAddr(),
			}},
		}
		if err := n.raft.BootstrapCluster(bootstrap).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			return domain.NewRaftError("failed to bootstrap cluster", err,
				domain.WithComponent(runtimeComponent), domain.WithRetryable(false))
		}
		return nil
	})
	return joined, err
}

func (n *Node) isLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

func (n *Node) leaderConnectorAddr() string {
	_, id := n.raft.LeaderWithID()
	if id == "" {
		return ""
	}
	meta, ok := n.discovery.Member(domain.NodeID(id))
	if !ok {
		return ""
	}
	return meta.ConnectorAddr
}

// forwardTarget picks the connector to send a write to. Without a known
// leader any active peer will do; it follows up with its own leader hint.
func (n *Node) forwardTarget() string {
	if addr := n.leaderConnectorAddr(); addr != "" && addr != n.connectorAddr {
		return addr
	}
	for _, peer := range n.discovery.ActivePeers() {
		if peer.ConnectorAddr != "" {
			return peer.ConnectorAddr
		}
	}
	return ""
}

func (n *Node) apply(ctx context.Context, cmd *domain.Command) (*domain.CommandResult, error) {
	var result *domain.CommandResult
	err := n.withRetry(ctx, cmd.Type.String(), func() error {
		if n.isLeader() {
			res, err := n.applyLocal(ctx, cmd)
			if err != nil {
				return err
			}
			result = res
			return nil
		}

		target := n.forwardTarget()
		if target == "" {
			return domain.ErrNoLeader
		}

		var res domain.CommandResult
		if err := n.forwarder.post(ctx, target, pathCommands, cmd, &res); err != nil {
			return err
		}
		if !res.Success {
			return commandFailed(cmd, res.Error)
		}
		result = &res
		return nil
	})
	return result, err
}

func (n *Node) applyLocal(ctx context.Context, cmd *domain.Command) (*domain.CommandResult, error) {
	data, err := cmd.Marshal()
	if err != nil {
		return nil, domain.NewValidationError("failed to encode command", err, domain.WithComponent(runtimeComponent))
	}

	future := n.raft.Apply(data, n.opts.ApplyTimeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return nil, domain.ErrNotLeader
		}
		return nil, domain.NewRaftError("failed to commit command", err,
			domain.WithComponent(runtimeComponent),
			domain.WithContextDetail("command", cmd.Type.String()),
		)
	}

	result, ok := future.Response().(*domain.CommandResult)
	if !ok {
		return nil, domain.NewRaftError("unexpected command response", nil, domain.WithComponent(runtimeComponent))
	}
	if !result.Success {
		return nil, commandFailed(cmd, result.Error)
	}
	return result, nil
}

func (n *Node) setBaseline(ctx context.Context, req baselineRequest) (domain.BaselineTopology, error) {
	var baseline domain.BaselineTopology
	err := n.withRetry(ctx, "set baseline", func() error {
		if n.isLeader() {
			b, err := n.setBaselineLocal(ctx, req)
			if err != nil {
				return err
			}
			baseline = b
			return nil
		}

		target := n.forwardTarget()
		if target == "" {
			return domain.ErrNoLeader
		}
		return n.forwarder.post(ctx, target, pathBaseline, req, &baseline)
	})
	return baseline, err
}

// setBaselineLocal runs on the leader. Baseline members missing from the
// consensus configuration are added as voters; nobody is removed.
func (n *Node) setBaselineLocal(ctx context.Context, req baselineRequest) (domain.BaselineTopology, error) {
	nodes := req.Nodes
	if len(nodes) == 0 {
		snapshot, ok := n.discovery.Topology(req.Version)
		if !ok {
			return domain.BaselineTopology{}, domain.NewValidationError("unknown topology version", nil,
				domain.WithComponent(runtimeComponent),
				domain.WithContextDetail("version", req.Version),
			)
		}
		nodes = snapshot.Nodes
	}

	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return domain.BaselineTopology{}, domain.NewRaftError("failed to read consensus configuration", err,
			domain.WithComponent(runtimeComponent))
	}
	voters := make(map[raft.ServerID]bool)
	for _, server := range future.Configuration().Servers {
		voters[server.ID] = true
	}

	for _, id := range nodes {
		if voters[raft.ServerID(id)] {
			continue
		}
		meta, ok := n.discovery.Member(id)
		if !ok {
			return domain.BaselineTopology{}, domain.NewValidationError("baseline node is not visible", domain.ErrUnknownNode,
				domain.WithComponent(runtimeComponent),
				domain.WithContextDetail("node_id", string(id)),
			)
		}
		n.logger.Info("adding baseline node to consensus", "peer", id, "address", meta.RaftAddr)
		if err := n.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(meta.RaftAddr), 0, n.opts.ApplyTimeout).Error(); err != nil {
			if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
				return domain.BaselineTopology{}, domain.ErrNotLeader
			}
			return domain.BaselineTopology{}, domain.NewRaftError("failed to add voter", err,
				domain.WithComponent(runtimeComponent),
				domain.WithContextDetail("node_id", string(id)),
			)
		}
	}

	result, err := n.applyLocal(ctx, domain.NewSetBaselineCommand(nodes))
	if err != nil {
		return domain.BaselineTopology{}, err
	}
	return domain.BaselineTopology{Revision: result.Revision, Nodes: domain.NewNodeSet(nodes...)}, nil
}

func (n *Node) status(ctx context.Context) (ClusterStatus, error) {
	active, err := n.cluster.Active(ctx)
	if err != nil {
		return ClusterStatus{}, err
	}
	baseline, err := n.fsm.Baseline()
	if err != nil {
		return ClusterStatus{}, err
	}
	_, leader := n.raft.LeaderWithID()
	local, _ := n.discovery.Member(n.id)

	return ClusterStatus{
		NodeID:          n.id,
		Leader:          domain.NodeID(leader),
		LeaderConnector: n.leaderConnectorAddr(),
		Active:          active,
		Baseline:        baseline,
		Servers:         n.discovery.ServerIDs(),
		TopologyVersion: n.discovery.TopologyVersion(),
		Attributes:      local.Attributes,
	}, nil
}

// withRetry repeats op while the failure is one that goes away once a leader
// is elected or gossip catches up.
func (n *Node) withRetry(ctx context.Context, operation string, op func() error) error {
	ctx, cancel := context.WithTimeout(ctx, n.opts.OperationTimeout)
	defer cancel()

	return retry.Do(
		func() error {
			if n.closed.Load() {
				return retry.Unrecoverable(domain.ErrClosed)
			}
			return op()
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(n.opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(attempt uint, err error) {
			if attempt%10 == 0 {
				n.logger.Debug("retrying cluster operation", "operation", operation, "attempt", attempt, "error", err)
			}
		}),
	)
}

func isTransient(err error) bool {
	switch {
	case errors.Is(err, domain.ErrNoLeader),
		errors.Is(err, domain.ErrNotLeader),
		errors.Is(err, domain.ErrUnknownNode),
		errors.Is(err, errFormationPending):
		return true
	}
	return domain.IsRetryableError(err)
}

func commandFailed(cmd *domain.Command, reason string) error {
	return domain.NewValidationError("command rejected: "+reason, nil,
		domain.WithComponent(runtimeComponent),
		domain.WithContextDetail("command", cmd.Type.String()),
	)
}
