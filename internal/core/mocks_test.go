package core

import (
	"context"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/ports"
	"github.com/stretchr/testify/mock"
)

type MockGridRuntime struct {
	mock.Mock
}

func (m *MockGridRuntime) Start(ctx context.Context, config domain.NodeConfiguration, hooks ports.LifecycleHooks) (ports.RuntimeHandle, error) {
	args := m.Called(ctx, config, hooks)
	handle, _ := args.Get(0).(ports.RuntimeHandle)
	return handle, args.Error(1)
}

type MockRuntimeHandle struct {
	mock.Mock
	cluster *MockClusterHandle
}

func newMockHandle() *MockRuntimeHandle {
	return &MockRuntimeHandle{cluster: new(MockClusterHandle)}
}

func (m *MockRuntimeHandle) NodeID() domain.NodeID {
	return "node-a"
}

func (m *MockRuntimeHandle) Cluster() ports.ClusterHandle {
	return m.cluster
}

func (m *MockRuntimeHandle) ComputeTask(ctx context.Context, task ports.Task) (ports.TaskResult, error) {
	args := m.Called(ctx, task)
	return args.Get(0).(ports.TaskResult), args.Error(1)
}

func (m *MockRuntimeHandle) CacheNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockRuntimeHandle) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockClusterHandle struct {
	mock.Mock
}

func (m *MockClusterHandle) Activate(ctx context.Context, active bool) error {
	args := m.Called(ctx, active)
	return args.Error(0)
}

func (m *MockClusterHandle) Active(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockClusterHandle) ServerNodeIDs(ctx context.Context) (domain.NodeSet, error) {
	args := m.Called(ctx)
	nodes, _ := args.Get(0).(domain.NodeSet)
	return nodes, args.Error(1)
}

func (m *MockClusterHandle) SetBaselineTopologyVersion(ctx context.Context, version uint64) error {
	args := m.Called(ctx, version)
	return args.Error(0)
}

func (m *MockClusterHandle) SetBaselineTopology(ctx context.Context, nodes domain.NodeSet) error {
	args := m.Called(ctx, nodes)
	return args.Error(0)
}

func (m *MockClusterHandle) BaselineTopology(ctx context.Context) (domain.BaselineTopology, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.BaselineTopology), args.Error(1)
}

type MockSequencer struct {
	mock.Mock
}

func (m *MockSequencer) Run(ctx context.Context, hooks ports.LifecycleHooks) (ports.RuntimeHandle, error) {
	args := m.Called(ctx, hooks)
	handle, _ := args.Get(0).(ports.RuntimeHandle)
	return handle, args.Error(1)
}

type fakeTaskContext struct {
	nodeID   domain.NodeID
	existing map[string]bool
	calls    int
}

func (f *fakeTaskContext) NodeID() domain.NodeID {
	return f.nodeID
}

func (f *fakeTaskContext) CreateDataset(_ context.Context, def domain.DatasetDefinition) (bool, error) {
	f.calls++
	if f.existing[def.Name] {
		return false, nil
	}
	f.existing[def.Name] = true
	return true, nil
}
