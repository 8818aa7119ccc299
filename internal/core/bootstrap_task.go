package core

import (
	"context"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/ports"
)

// CreateDatasetTask creates its dataset if nobody has yet. Running it twice, or
// on two nodes at once, leaves exactly one dataset.
type CreateDatasetTask struct {
	definition domain.DatasetDefinition
}

func NewCreateDatasetTask(def domain.DatasetDefinition) *CreateDatasetTask {
	return &CreateDatasetTask{definition: def}
}

func (t *CreateDatasetTask) Name() string {
	return "create-dataset:" + t.definition.Name
}

func (t *CreateDatasetTask) Execute(ctx context.Context, tc ports.TaskContext) (ports.TaskResult, error) {
	def := t.definition
	def.CreatedBy = tc.NodeID()

	created, err := tc.CreateDataset(ctx, def)
	if err != nil {
		return ports.TaskResult{}, err
	}

	outcome := domain.DatasetCreatedByOther
	if created {
		outcome = domain.DatasetCreated
	}

	return ports.TaskResult{
		Task:    t.Name(),
		NodeID:  tc.NodeID(),
		Outcome: outcome,
	}, nil
}
