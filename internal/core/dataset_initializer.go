package core

import (
	"context"
	"log/slog"
	"slices"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/ports"
)

// TaskFactory builds the compute task that creates a missing dataset.
type TaskFactory func(datasetName string) ports.Task

// DatasetInitializer makes sure a named dataset exists. The presence check and
// the create task are not atomic: two nodes can both see the dataset missing and
// both submit. The task creates at most once; the second submitter gets
// DatasetCreatedByOther. No distributed lock is taken.
type DatasetInitializer struct {
	newTask TaskFactory
	logger  *slog.Logger
}

func NewDatasetInitializer(logger *slog.Logger) *DatasetInitializer {
	return NewDatasetInitializerWithTask(func(name string) ports.Task {
		return NewCreateDatasetTask(domain.DatasetDefinition{
			Name: name,
			Mode: domain.DatasetReplicated,
		})
	}, logger)
}

func NewDatasetInitializerWithTask(factory TaskFactory, logger *slog.Logger) *DatasetInitializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetInitializer{
		newTask: factory,
		logger:  logger.With("component", "dataset-initializer"),
	}
}

func (i *DatasetInitializer) EnsureExists(ctx context.Context, handle ports.RuntimeHandle, datasetName string) (domain.DatasetOutcome, error) {
	names, err := handle.CacheNames(ctx)
	if err != nil {
		return 0, domain.NewBootstrapTaskError(
			"failed to list datasets",
			err,
			domain.WithComponent("core.DatasetInitializer"),
			domain.WithContextDetail("dataset", datasetName),
		)
	}

	if slices.Contains(names, datasetName) {
		i.logger.Debug("dataset already present", "dataset", datasetName)
		return domain.DatasetAlreadyPresent, nil
	}

	task := i.newTask(datasetName)
	i.logger.Info("dataset missing, submitting create task", "dataset", datasetName, "task", task.Name())

	result, err := handle.ComputeTask(ctx, task)
	if err != nil {
		return 0, domain.NewBootstrapTaskError(
			"dataset create task failed",
			err,
			domain.WithComponent("core.DatasetInitializer"),
			domain.WithContextDetail("dataset", datasetName),
			domain.WithContextDetail("task", task.Name()),
		)
	}

	if result.Outcome == domain.DatasetCreatedByOther {
		i.logger.Info("dataset was created concurrently by another node", "dataset", datasetName)
	}

	return result.Outcome, nil
}
