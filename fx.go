package gridboot

import (
	"log/slog"

	"github.com/eleven-am/gridboot/internal/adapters/grid"
	"github.com/eleven-am/gridboot/internal/core"
	"github.com/eleven-am/gridboot/internal/ports"
	"github.com/eleven-am/gridboot/internal/readiness"
	"go.uber.org/fx"
)

// Module provides a Node and binds it to the fx lifecycle. The application
// must supply Settings and a *slog.Logger.
func Module() fx.Option {
	return fx.Module("gridboot",
		fx.Provide(
			readiness.NewManager,
			newRuntime,
			newController,
			newNode,
		),
		fx.Invoke(bindLifecycle),
	)
}

func newRuntime(s Settings, logger *slog.Logger, ready *readiness.Manager) ports.GridRuntime {
	return grid.NewRuntime(grid.Options{
		Logger:           logger,
		Readiness:        ready,
		OperationTimeout: s.OperationTimeout,
	})
}

func newController(s Settings, logger *slog.Logger, runtime ports.GridRuntime) core.Sequencer {
	return core.NewActivationController(core.ActivationControllerDeps{
		Runtime:      runtime,
		HomePath:     s.HomePath,
		InstanceName: s.InstanceName,
		Attributes:   s.Attributes.Map(),
		Logger:       logger,
	})
}

func newNode(sequencer core.Sequencer, ready *readiness.Manager, logger *slog.Logger) *Node {
	return core.NewLifecycleAdapter(sequencer, ready, logger)
}

func bindLifecycle(lc fx.Lifecycle, node *Node) {
	lc.Append(fx.Hook{
		OnStart: node.Start,
		OnStop:  node.Stop,
	})
}
