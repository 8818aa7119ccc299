package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"dario.cat/mergo"
)

// Network defaults. A single node, or a small fixed group on one host, finds its
// peers by probing the discovery window on loopback without any external
// coordination service.
const (
	DefaultHost              = "127.0.0.1"
	DefaultPortRange         = 20
	DefaultDiscoveryPort     = 48500
	DefaultCommunicationPort = 48100
	DefaultConnectorPort     = 13211
)

const (
	HomeAttribute     = "GRIDBOOT_HOME"
	InstanceAttribute = "GRIDBOOT_INSTANCE"

	storageDirName    = "db"
	walDirName        = "wal"
	walArchiveDirName = "wal-archive"
	workDirName       = "work"
)

var instanceNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

type BuildOption func(*buildOptions)

type buildOptions struct {
	attributes map[string]interface{}
}

// WithUserAttributes attaches extra metadata to the node. The home attribute
// always wins over a caller-supplied value with the same key.
func WithUserAttributes(attrs map[string]interface{}) BuildOption {
	return func(o *buildOptions) {
		for k, v := range attrs {
			o.attributes[k] = v
		}
	}
}

// BuildNodeConfiguration resolves the home setting into an absolute, writable
// directory and derives every other path beneath it. It starts nothing.
func BuildNodeConfiguration(homePathSetting, instanceNameSetting string, opts ...BuildOption) (NodeConfiguration, error) {
	if !instanceNamePattern.MatchString(instanceNameSetting) {
		return NodeConfiguration{}, NewConfigurationError(
			"malformed instance name",
			nil,
			WithComponent("domain.BuildNodeConfiguration"),
			WithContextDetail("instance_name", instanceNameSetting),
		)
	}

	home, err := resolveHome(homePathSetting)
	if err != nil {
		return NodeConfiguration{}, err
	}

	options := buildOptions{attributes: make(map[string]interface{})}
	for _, opt := range opts {
		opt(&options)
	}

	attrs := map[string]interface{}{
		HomeAttribute:     home,
		InstanceAttribute: instanceNameSetting,
	}
	if err := mergo.Merge(&attrs, options.attributes); err != nil {
		return NodeConfiguration{}, NewConfigurationError(
			"failed to merge user attributes",
			err,
			WithComponent("domain.BuildNodeConfiguration"),
		)
	}

	return NodeConfiguration{
		HomeDirectory: home,
		InstanceName:  instanceNameSetting,
		WorkDirectory: filepath.Join(home, workDirName),

		ClientMode:              false,
		PeerClassLoadingEnabled: true,
		ActiveOnStart:           true,
		AutoActivationEnabled:   true,
		Quiet:                   true,

		Storage: StorageConfiguration{
			PersistenceEnabled: true,
			StoragePath:        filepath.Join(home, storageDirName),
			WALPath:            filepath.Join(home, walDirName),
			WALArchivePath:     filepath.Join(home, walArchiveDirName),
		},
		Discovery: DiscoveryConfiguration{
			LocalAddress:   DefaultHost,
			LocalPort:      DefaultDiscoveryPort,
			LocalPortRange: DefaultPortRange,
			Addresses:      PortWindow(DefaultHost, DefaultDiscoveryPort, DefaultPortRange),
		},
		Communication: CommunicationConfiguration{
			LocalPort:      DefaultCommunicationPort,
			LocalPortRange: DefaultPortRange,
		},
		Connector: ConnectorConfiguration{
			Host:      DefaultHost,
			Port:      DefaultConnectorPort,
			PortRange: DefaultPortRange,
		},

		userAttributes: attrs,
	}, nil
}

// PortWindow lists host:port for every port in [base, base+portRange].
func PortWindow(host string, base, portRange int) []string {
	addrs := make([]string, 0, portRange+1)
	for port := base; port <= base+portRange; port++ {
		addrs = append(addrs, fmt.Sprintf("%s:%d", host, port))
	}
	return addrs
}

func resolveHome(setting string) (string, error) {
	if setting == "" {
		return "", NewConfigurationError(
			"home path is required",
			nil,
			WithComponent("domain.BuildNodeConfiguration"),
		)
	}

	home, err := filepath.Abs(setting)
	if err != nil {
		return "", NewConfigurationError(
			"failed to resolve home path",
			err,
			WithComponent("domain.BuildNodeConfiguration"),
			WithContextDetail("home_path", setting),
		)
	}

	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", NewConfigurationError(
			"failed to create home directory",
			err,
			WithComponent("domain.BuildNodeConfiguration"),
			WithContextDetail("home_path", home),
		)
	}

	probe, err := os.CreateTemp(home, ".write-probe-*")
	if err != nil {
		return "", NewConfigurationError(
			"home directory is not writable",
			err,
			WithComponent("domain.BuildNodeConfiguration"),
			WithContextDetail("home_path", home),
		)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return home, nil
}
