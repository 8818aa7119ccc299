package grid

import (
	"context"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/ports"
	"github.com/google/uuid"
)

// ComputeTask runs the task on this node. Whatever the task writes goes
// through consensus, so its effect is grid-wide.
func (n *Node) ComputeTask(ctx context.Context, task ports.Task) (ports.TaskResult, error) {
	if n.closed.Load() {
		return ports.TaskResult{}, domain.ErrClosed
	}

	taskID := uuid.NewString()
	n.logger.Debug("running compute task", "task", task.Name(), "task_id", taskID)

	result, err := task.Execute(ctx, taskContext{node: n})
	result.TaskID = taskID
	if result.Task == "" {
		result.Task = task.Name()
	}
	if result.NodeID == "" {
		result.NodeID = n.id
	}
	return result, err
}

type taskContext struct {
	node *Node
}

func (t taskContext) NodeID() domain.NodeID {
	return t.node.id
}

func (t taskContext) CreateDataset(ctx context.Context, def domain.DatasetDefinition) (bool, error) {
	result, err := t.node.apply(ctx, domain.NewCreateDatasetCommand(def))
	if err != nil {
		return false, err
	}
	return result.Created, nil
}
