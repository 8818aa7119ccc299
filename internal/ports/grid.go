package ports

import (
	"context"

	"github.com/eleven-am/gridboot/internal/domain"
)

// GridRuntime is the boundary to the clustered data-grid. Start blocks until the
// node's storage and endpoints are up; it never activates the cluster.
type GridRuntime interface {
	Start(ctx context.Context, config domain.NodeConfiguration, hooks LifecycleHooks) (RuntimeHandle, error)
}

type RuntimeHandle interface {
	NodeID() domain.NodeID
	Cluster() ClusterHandle
	ComputeTask(ctx context.Context, task Task) (TaskResult, error)
	CacheNames(ctx context.Context) ([]string, error)
	// Close is idempotent.
	Close() error
}

type ClusterHandle interface {
	// Activate(true) on an already active cluster is a no-op.
	Activate(ctx context.Context, active bool) error
	Active(ctx context.Context) (bool, error)
	ServerNodeIDs(ctx context.Context) (domain.NodeSet, error)
	SetBaselineTopologyVersion(ctx context.Context, version uint64) error
	SetBaselineTopology(ctx context.Context, nodes domain.NodeSet) error
	BaselineTopology(ctx context.Context) (domain.BaselineTopology, error)
}

// Task runs through the grid's compute capability.
type Task interface {
	Name() string
	Execute(ctx context.Context, tc TaskContext) (TaskResult, error)
}

type TaskContext interface {
	NodeID() domain.NodeID
	// CreateDataset is create-if-not-exists; created is false when another
	// submission got there first.
	CreateDataset(ctx context.Context, def domain.DatasetDefinition) (created bool, err error)
}

type TaskResult struct {
	TaskID  string
	Task    string
	NodeID  domain.NodeID
	Outcome domain.DatasetOutcome
}
