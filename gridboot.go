// Package gridboot starts one server node of a persistent, clustered data grid
// and walks the cluster to a usable state before the node reports ready:
//
//   - builds the node configuration under a home directory
//   - starts the grid runtime (storage, discovery, consensus, connector)
//   - activates the cluster and fixes its baseline topology
//   - makes sure the "configuration" dataset exists
//
// The node is driven by a host's start and stop signals:
//
//	s, _ := gridboot.LoadSettings()
//	node := gridboot.New(s, logger)
//	if err := node.Start(ctx); err != nil {
//	    // configuration, startup, activation or bootstrap task error
//	}
//	defer node.Stop(context.Background())
//
// Module wires the same pieces into an fx application.
package gridboot

import (
	"log/slog"

	"github.com/eleven-am/gridboot/internal/adapters/grid"
	"github.com/eleven-am/gridboot/internal/core"
	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/ports"
	"github.com/eleven-am/gridboot/internal/readiness"
	"github.com/eleven-am/gridboot/internal/settings"
)

// Node is a grid node bound to a host lifecycle. Start runs the whole start
// sequence; Stop closes the runtime and is safe to call at any time.
type Node = core.LifecycleAdapter

// NodeState is the lifecycle state of a Node.
type NodeState = core.State

const (
	NodeStopped  = core.StateStopped
	NodeStarting = core.StateStarting
	NodeRunning  = core.StateRunning
	NodeStopping = core.StateStopping
)

// Settings is the process configuration read from GRIDBOOT_* variables.
type Settings = settings.Settings

type NodeConfiguration = domain.NodeConfiguration

type NodeID = domain.NodeID

type NodeSet = domain.NodeSet

type BaselineTopology = domain.BaselineTopology

// DatasetOutcome tells how the bootstrap dataset came to exist.
type DatasetOutcome = domain.DatasetOutcome

const (
	DatasetAlreadyPresent = domain.DatasetAlreadyPresent
	DatasetCreated        = domain.DatasetCreated
	DatasetCreatedByOther = domain.DatasetCreatedByOther
)

const BootstrapDatasetName = domain.BootstrapDatasetName

type RuntimeHandle = ports.RuntimeHandle

type ClusterHandle = ports.ClusterHandle

type PreStartHook = ports.PreStartHook

type PreStopHook = ports.PreStopHook

// ClusterStatus is what a node serves on its connector at /v1/cluster.
type ClusterStatus = grid.ClusterStatus

type DomainError = domain.DomainError

func LoadSettings() (Settings, error) {
	return settings.Load()
}

// BuildNodeConfiguration resolves a home path and instance name into a full
// node configuration without starting anything.
func BuildNodeConfiguration(homePath, instanceName string) (NodeConfiguration, error) {
	return domain.BuildNodeConfiguration(homePath, instanceName)
}

// New assembles a node from settings. Nothing is started until Start.
func New(s Settings, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	ready := readiness.NewManager()
	runtime := newRuntime(s, logger, ready)
	return newNode(newController(s, logger, runtime), ready, logger)
}

func IsConfigurationError(err error) bool { return domain.IsConfigurationError(err) }
func IsStartupError(err error) bool       { return domain.IsStartupError(err) }
func IsActivationError(err error) bool    { return domain.IsActivationError(err) }
func IsBootstrapTaskError(err error) bool { return domain.IsBootstrapTaskError(err) }
