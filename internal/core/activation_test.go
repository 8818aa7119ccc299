package core

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, runtime ports.GridRuntime) *ActivationController {
	t.Helper()
	return NewActivationController(ActivationControllerDeps{
		Runtime:      runtime,
		HomePath:     filepath.Join(t.TempDir(), "node1"),
		InstanceName: "node1",
		Logger:       slog.Default(),
	})
}

func expectHealthyCluster(handle *MockRuntimeHandle, servers domain.NodeSet) {
	handle.cluster.On("Activate", mock.Anything, true).Return(nil)
	handle.cluster.On("SetBaselineTopologyVersion", mock.Anything, uint64(1)).Return(nil)
	handle.cluster.On("ServerNodeIDs", mock.Anything).Return(servers, nil)
	handle.cluster.On("SetBaselineTopology", mock.Anything, servers).Return(nil)
}

func TestActivationController_RunsFullSequence(t *testing.T) {
	runtime := new(MockGridRuntime)
	handle := newMockHandle()

	var order []string
	runtime.On("Start", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "start") }).
		Return(handle, nil)
	handle.cluster.On("Activate", mock.Anything, true).
		Run(func(mock.Arguments) { order = append(order, "activate") }).
		Return(nil)
	handle.cluster.On("SetBaselineTopologyVersion", mock.Anything, uint64(1)).
		Run(func(mock.Arguments) { order = append(order, "baseline-version") }).
		Return(nil)
	handle.cluster.On("ServerNodeIDs", mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "servers") }).
		Return(domain.NewNodeSet("node-a"), nil)
	handle.cluster.On("SetBaselineTopology", mock.Anything, domain.NewNodeSet("node-a")).
		Run(func(mock.Arguments) { order = append(order, "baseline") }).
		Return(nil)
	handle.On("CacheNames", mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "cache-names") }).
		Return([]string{domain.BootstrapDatasetName}, nil)

	controller := newTestController(t, runtime)
	got, err := controller.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Same(t, handle, got)
	assert.Equal(t, []string{"start", "activate", "baseline-version", "servers", "baseline", "cache-names"}, order)
	handle.AssertNotCalled(t, "ComputeTask", mock.Anything, mock.Anything)
}

func TestActivationController_PassesBuiltConfiguration(t *testing.T) {
	runtime := new(MockGridRuntime)
	handle := newMockHandle()
	expectHealthyCluster(handle, domain.NewNodeSet("node-a"))
	handle.On("CacheNames", mock.Anything).Return([]string{domain.BootstrapDatasetName}, nil)

	var seen domain.NodeConfiguration
	runtime.On("Start", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { seen = args.Get(1).(domain.NodeConfiguration) }).
		Return(handle, nil)

	controller := newTestController(t, runtime)
	_, err := controller.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, seen.ClientMode)
	assert.True(t, seen.Storage.PersistenceEnabled)
	assert.Equal(t, "node1", seen.InstanceName)
}

func TestActivationController_StartFailureStopsSequence(t *testing.T) {
	runtime := new(MockGridRuntime)
	bindErr := domain.NewStartupError("failed to bind communication port", errors.New("address already in use"))
	runtime.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(nil, bindErr)

	controller := newTestController(t, runtime)
	handle, err := controller.Run(context.Background(), nil)

	require.Error(t, err)
	assert.Nil(t, handle)
	assert.True(t, domain.IsStartupError(err))
	assert.ErrorIs(t, err, bindErr)
}

func TestActivationController_WrapsUntypedStartError(t *testing.T) {
	runtime := new(MockGridRuntime)
	runtime.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("corrupt wal"))

	controller := newTestController(t, runtime)
	_, err := controller.Run(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, domain.IsStartupError(err))
	assert.Contains(t, err.Error(), "corrupt wal")
}

func TestActivationController_ConfigurationFailureNeverStartsRuntime(t *testing.T) {
	runtime := new(MockGridRuntime)
	controller := NewActivationController(ActivationControllerDeps{
		Runtime:      runtime,
		HomePath:     t.TempDir(),
		InstanceName: "bad name/with slash",
	})

	_, err := controller.Run(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, domain.IsConfigurationError(err))
	runtime.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
}

func TestActivationController_ActivationFailureReturnsHandle(t *testing.T) {
	runtime := new(MockGridRuntime)
	handle := newMockHandle()
	runtime.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(handle, nil)
	handle.cluster.On("Activate", mock.Anything, true).Return(errors.New("peers unreachable"))

	controller := newTestController(t, runtime)
	got, err := controller.Run(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, domain.IsActivationError(err))
	assert.Same(t, handle, got)
	handle.cluster.AssertNotCalled(t, "SetBaselineTopology", mock.Anything, mock.Anything)
	handle.AssertNotCalled(t, "CacheNames", mock.Anything)
}

func TestActivationController_BaselineContainsObservedServers(t *testing.T) {
	runtime := new(MockGridRuntime)
	handle := newMockHandle()
	servers := domain.NewNodeSet("A", "B")
	runtime.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(handle, nil)
	expectHealthyCluster(handle, servers)
	handle.On("CacheNames", mock.Anything).Return([]string{domain.BootstrapDatasetName}, nil)

	controller := newTestController(t, runtime)
	_, err := controller.Run(context.Background(), nil)
	require.NoError(t, err)

	handle.cluster.AssertCalled(t, "SetBaselineTopology", mock.Anything, domain.NewNodeSet("A", "B"))
}

func TestActivationController_BaselineFailureIsActivationError(t *testing.T) {
	runtime := new(MockGridRuntime)
	handle := newMockHandle()
	runtime.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(handle, nil)
	handle.cluster.On("Activate", mock.Anything, true).Return(nil)
	handle.cluster.On("SetBaselineTopologyVersion", mock.Anything, uint64(1)).Return(nil)
	handle.cluster.On("ServerNodeIDs", mock.Anything).Return(domain.NewNodeSet("A"), nil)
	handle.cluster.On("SetBaselineTopology", mock.Anything, mock.Anything).Return(domain.ErrNoLeader)

	controller := newTestController(t, runtime)
	_, err := controller.Run(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, domain.IsActivationError(err))
	assert.ErrorIs(t, err, domain.ErrNoLeader)
}

func TestActivationController_CreatesMissingDataset(t *testing.T) {
	runtime := new(MockGridRuntime)
	handle := newMockHandle()
	runtime.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(handle, nil)
	expectHealthyCluster(handle, domain.NewNodeSet("node-a"))
	handle.On("CacheNames", mock.Anything).Return([]string{}, nil)
	handle.On("ComputeTask", mock.Anything, mock.Anything).
		Return(ports.TaskResult{Outcome: domain.DatasetCreated}, nil)

	controller := newTestController(t, runtime)
	_, err := controller.Run(context.Background(), nil)

	require.NoError(t, err)
	handle.AssertNumberOfCalls(t, "ComputeTask", 1)
}

func TestActivationController_AttachesUserAttributes(t *testing.T) {
	runtime := new(MockGridRuntime)
	handle := newMockHandle()
	expectHealthyCluster(handle, domain.NewNodeSet("node-a"))
	handle.On("CacheNames", mock.Anything).Return([]string{domain.BootstrapDatasetName}, nil)

	var seen domain.NodeConfiguration
	runtime.On("Start", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { seen = args.Get(1).(domain.NodeConfiguration) }).
		Return(handle, nil)

	home := filepath.Join(t.TempDir(), "node1")
	controller := NewActivationController(ActivationControllerDeps{
		Runtime:      runtime,
		HomePath:     home,
		InstanceName: "node1",
		Attributes:   map[string]interface{}{"zone": "a", domain.HomeAttribute: "/elsewhere"},
	})
	_, err := controller.Run(context.Background(), nil)
	require.NoError(t, err)

	zone, ok := seen.UserAttribute("zone")
	require.True(t, ok)
	assert.Equal(t, "a", zone)

	got, ok := seen.UserAttribute(domain.HomeAttribute)
	require.True(t, ok)
	assert.Equal(t, seen.HomeDirectory, got)
}
