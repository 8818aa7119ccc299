package core

import (
	"context"
	"errors"
	"testing"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// taskRunningHandle executes submitted tasks against a shared fake store.
type taskRunningHandle struct {
	*MockRuntimeHandle
	tc *fakeTaskContext
}

func (h *taskRunningHandle) ComputeTask(ctx context.Context, task ports.Task) (ports.TaskResult, error) {
	h.MockRuntimeHandle.Called(ctx, task)
	return task.Execute(ctx, h.tc)
}

func TestDatasetInitializer_ExistingDatasetSubmitsNothing(t *testing.T) {
	handle := newMockHandle()
	handle.On("CacheNames", mock.Anything).Return([]string{"other", domain.BootstrapDatasetName}, nil)

	outcome, err := NewDatasetInitializer(nil).EnsureExists(context.Background(), handle, domain.BootstrapDatasetName)

	require.NoError(t, err)
	assert.Equal(t, domain.DatasetAlreadyPresent, outcome)
	handle.AssertNotCalled(t, "ComputeTask", mock.Anything, mock.Anything)
}

func TestDatasetInitializer_MissingDatasetIsCreated(t *testing.T) {
	tc := &fakeTaskContext{nodeID: "node-a", existing: map[string]bool{}}
	handle := &taskRunningHandle{MockRuntimeHandle: newMockHandle(), tc: tc}
	handle.On("CacheNames", mock.Anything).Return([]string{}, nil)
	handle.On("ComputeTask", mock.Anything, mock.Anything).Return(ports.TaskResult{}, nil)

	outcome, err := NewDatasetInitializer(nil).EnsureExists(context.Background(), handle, domain.BootstrapDatasetName)

	require.NoError(t, err)
	assert.Equal(t, domain.DatasetCreated, outcome)
	assert.True(t, tc.existing[domain.BootstrapDatasetName])
}

func TestDatasetInitializer_RacingSubmittersCreateOnce(t *testing.T) {
	tc := &fakeTaskContext{nodeID: "node-a", existing: map[string]bool{}}

	first := &taskRunningHandle{MockRuntimeHandle: newMockHandle(), tc: tc}
	second := &taskRunningHandle{MockRuntimeHandle: newMockHandle(), tc: tc}
	for _, h := range []*taskRunningHandle{first, second} {
		h.On("CacheNames", mock.Anything).Return([]string{}, nil)
		h.On("ComputeTask", mock.Anything, mock.Anything).Return(ports.TaskResult{}, nil)
	}

	initializer := NewDatasetInitializer(nil)
	firstOutcome, err := initializer.EnsureExists(context.Background(), first, domain.BootstrapDatasetName)
	require.NoError(t, err)
	secondOutcome, err := initializer.EnsureExists(context.Background(), second, domain.BootstrapDatasetName)
	require.NoError(t, err)

	assert.Equal(t, domain.DatasetCreated, firstOutcome)
	assert.Equal(t, domain.DatasetCreatedByOther, secondOutcome)
	assert.Equal(t, 2, tc.calls)
	assert.Len(t, tc.existing, 1)
}

func TestDatasetInitializer_TaskFailureIsBootstrapTaskError(t *testing.T) {
	handle := newMockHandle()
	handle.On("CacheNames", mock.Anything).Return([]string{}, nil)
	handle.On("ComputeTask", mock.Anything, mock.Anything).
		Return(ports.TaskResult{}, errors.New("commit rejected"))

	_, err := NewDatasetInitializer(nil).EnsureExists(context.Background(), handle, domain.BootstrapDatasetName)

	require.Error(t, err)
	assert.True(t, domain.IsBootstrapTaskError(err))
	assert.Contains(t, err.Error(), "commit rejected")
}

func TestDatasetInitializer_ListFailureIsBootstrapTaskError(t *testing.T) {
	handle := newMockHandle()
	handle.On("CacheNames", mock.Anything).Return(nil, errors.New("storage closed"))

	_, err := NewDatasetInitializer(nil).EnsureExists(context.Background(), handle, domain.BootstrapDatasetName)

	require.Error(t, err)
	assert.True(t, domain.IsBootstrapTaskError(err))
	handle.AssertNotCalled(t, "ComputeTask", mock.Anything, mock.Anything)
}

func TestCreateDatasetTask_StampsCreator(t *testing.T) {
	tc := &fakeTaskContext{nodeID: "node-b", existing: map[string]bool{}}
	task := NewCreateDatasetTask(domain.DatasetDefinition{Name: "configuration", Mode: domain.DatasetReplicated})

	result, err := task.Execute(context.Background(), tc)

	require.NoError(t, err)
	assert.Equal(t, "create-dataset:configuration", task.Name())
	assert.Equal(t, domain.NodeID("node-b"), result.NodeID)
	assert.Equal(t, domain.DatasetCreated, result.Outcome)
}
