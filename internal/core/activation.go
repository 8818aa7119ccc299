package core

import (
	"context"
	"log/slog"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/ports"
)

const (
	activationComponent = "core.ActivationController"

	// The first baseline is the topology at version one, which always holds the
	// node that formed the cluster. It is widened to the observed set right after.
	bootstrapBaselineVersion uint64 = 1
)

type ConfigurationBuilder func(homePath, instanceName string) (domain.NodeConfiguration, error)

type ActivationControllerDeps struct {
	Runtime      ports.GridRuntime
	Initializer  *DatasetInitializer
	Builder      ConfigurationBuilder
	HomePath     string
	InstanceName string
	Attributes   map[string]interface{}
	DatasetName  string
	Logger       *slog.Logger
}

// ActivationController drives configure, start, activate, baseline and dataset
// initialization, strictly in that order, once per call to Run.
type ActivationController struct {
	runtime      ports.GridRuntime
	initializer  *DatasetInitializer
	builder      ConfigurationBuilder
	homePath     string
	instanceName string
	datasetName  string
	logger       *slog.Logger
}

func NewActivationController(deps ActivationControllerDeps) *ActivationController {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	builder := deps.Builder
	if builder == nil {
		attrs := deps.Attributes
		builder = func(home, instance string) (domain.NodeConfiguration, error) {
			return domain.BuildNodeConfiguration(home, instance, domain.WithUserAttributes(attrs))
		}
	}

	initializer := deps.Initializer
	if initializer == nil {
		initializer = NewDatasetInitializer(logger)
	}

	datasetName := deps.DatasetName
	if datasetName == "" {
		datasetName = domain.BootstrapDatasetName
	}

	return &ActivationController{
		runtime:      deps.Runtime,
		initializer:  initializer,
		builder:      builder,
		homePath:     deps.HomePath,
		instanceName: deps.InstanceName,
		datasetName:  datasetName,
		logger:       logger.With("component", "activation"),
	}
}

// Run executes the start sequence. If the runtime started but a later step
// failed, the handle is returned together with the error so the caller can
// close it.
func (c *ActivationController) Run(ctx context.Context, hooks ports.LifecycleHooks) (ports.RuntimeHandle, error) {
	var seq sequence

	config, err := c.builder(c.homePath, c.instanceName)
	if err != nil {
		return nil, ensureCategory(err, domain.CategoryConfiguration, domain.NewConfigurationError, "failed to build node configuration")
	}
	if err := seq.advance(PhaseConfigured); err != nil {
		return nil, err
	}
	c.logger.Info("node configuration built",
		"home", config.HomeDirectory,
		"instance", config.InstanceName,
	)

	handle, err := c.runtime.Start(ctx, config.Clone(), hooks)
	if err != nil {
		c.logger.Error("grid runtime failed to start", "error", err)
		return nil, ensureCategory(err, domain.CategoryStartup, domain.NewStartupError, "grid runtime failed to start")
	}
	if err := seq.advance(PhaseStarted); err != nil {
		return handle, err
	}
	c.logger.Info("grid runtime started", "node_id", handle.NodeID())

	cluster := handle.Cluster()

	if err := cluster.Activate(ctx, true); err != nil {
		return handle, ensureCategory(err, domain.CategoryActivation, domain.NewActivationError, "cluster activation failed")
	}
	if err := seq.advance(PhaseActivated); err != nil {
		return handle, err
	}
	c.logger.Info("cluster activated")

	baseline, err := c.setBaseline(ctx, cluster)
	if err != nil {
		return handle, err
	}
	if err := seq.advance(PhaseBaselineSet); err != nil {
		return handle, err
	}
	c.logger.Info("baseline topology set", "nodes", baseline.Strings())

	outcome, err := c.initializer.EnsureExists(ctx, handle, c.datasetName)
	if err != nil {
		return handle, err
	}
	if err := seq.advance(PhaseDatasetReady); err != nil {
		return handle, err
	}
	c.logger.Info("bootstrap dataset ready", "dataset", c.datasetName, "outcome", outcome.String())

	return handle, nil
}

func (c *ActivationController) setBaseline(ctx context.Context, cluster ports.ClusterHandle) (domain.NodeSet, error) {
	if err := cluster.SetBaselineTopologyVersion(ctx, bootstrapBaselineVersion); err != nil {
		return nil, ensureCategory(err, domain.CategoryActivation, domain.NewActivationError, "failed to set bootstrap baseline topology")
	}

	servers, err := cluster.ServerNodeIDs(ctx)
	if err != nil {
		return nil, ensureCategory(err, domain.CategoryActivation, domain.NewActivationError, "failed to read server nodes")
	}

	if err := cluster.SetBaselineTopology(ctx, servers); err != nil {
		return nil, ensureCategory(err, domain.CategoryActivation, domain.NewActivationError, "failed to set baseline topology")
	}

	return servers, nil
}

type errorConstructor func(message string, cause error, opts ...domain.ErrorOption) *domain.DomainError

func ensureCategory(err error, category domain.ErrorCategory, wrap errorConstructor, message string) error {
	if domain.GetErrorCategory(err) == category {
		return err
	}
	return wrap(message, err, domain.WithComponent(activationComponent))
}
