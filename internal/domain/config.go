package domain

// NodeConfiguration describes one server node: where it persists state, which
// endpoints it binds and which runtime flags are on. Values are built once per
// start attempt by BuildNodeConfiguration and are never mutated afterwards; the
// runtime receives a copy.
type NodeConfiguration struct {
	HomeDirectory string
	InstanceName  string
	WorkDirectory string

	ClientMode              bool
	PeerClassLoadingEnabled bool
	ActiveOnStart           bool
	AutoActivationEnabled   bool
	Quiet                   bool

	Storage       StorageConfiguration
	Discovery     DiscoveryConfiguration
	Communication CommunicationConfiguration
	Connector     ConnectorConfiguration

	userAttributes map[string]interface{}
}

type StorageConfiguration struct {
	PersistenceEnabled bool
	StoragePath        string
	WALPath            string
	WALArchivePath     string
}

type DiscoveryConfiguration struct {
	LocalAddress   string
	LocalPort      int
	LocalPortRange int
	// Addresses is the static finder list, host:port for every port of the window.
	Addresses []string
}

type CommunicationConfiguration struct {
	LocalPort      int
	LocalPortRange int
}

type ConnectorConfiguration struct {
	Host      string
	Port      int
	PortRange int
}

// UserAttributes returns a copy of the attributes attached to the node.
func (c NodeConfiguration) UserAttributes() map[string]interface{} {
	attrs := make(map[string]interface{}, len(c.userAttributes))
	for k, v := range c.userAttributes {
		attrs[k] = v
	}
	return attrs
}

func (c NodeConfiguration) UserAttribute(key string) (interface{}, bool) {
	v, ok := c.userAttributes[key]
	return v, ok
}

// Clone returns a configuration that shares no mutable state with c.
func (c NodeConfiguration) Clone() NodeConfiguration {
	clone := c
	clone.userAttributes = c.UserAttributes()
	clone.Discovery.Addresses = append([]string(nil), c.Discovery.Addresses...)
	return clone
}
