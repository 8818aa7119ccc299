package grid

import (
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/helpers/netutil"
	"github.com/eleven-am/gridboot/internal/xjson"
	"github.com/hashicorp/memberlist"
)

const roleServer = "server"

// nodeMeta is gossiped with every member. It must fit memberlist.MetaMaxSize.
type nodeMeta struct {
	ID            domain.NodeID     `json:"id"`
	Role          string            `json:"role"`
	RaftAddr      string            `json:"raft"`
	ConnectorAddr string            `json:"http"`
	Instance      string            `json:"instance,omitempty"`
	Active        bool              `json:"active,omitempty"`
	Attributes    map[string]string `json:"attrs,omitempty"`
}

// metaAttributes flattens node user attributes for gossip.
func metaAttributes(attrs map[string]interface{}) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = fmt.Sprint(v)
	}
	return out
}

type DiscoveryConfig struct {
	Host      string
	Port      int
	PortRange int
	// Seeds are probed on join; the local address is skipped.
	Seeds []string
	Quiet bool
}

// Discovery tracks the visible members of the grid over memberlist and keeps
// a numbered history of the server topology. Version 1 is the topology the
// node saw on start: itself.
type Discovery struct {
	config DiscoveryConfig
	logger *slog.Logger

	list      *memberlist.Memberlist
	bindAddr  string
	broadcast time.Duration

	mu      sync.RWMutex
	local   nodeMeta
	members map[domain.NodeID]nodeMeta
	version uint64
	history map[uint64]domain.NodeSet
}

func NewDiscovery(config DiscoveryConfig, local nodeMeta, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		config:    config,
		logger:    logger.With("component", "discovery"),
		broadcast: 2 * time.Second,
		local:     local,
		members:   make(map[domain.NodeID]nodeMeta),
		history:   make(map[uint64]domain.NodeSet),
	}
}

// Start binds the first free port of the discovery window and joins whatever
// seeds answer. Finding nobody is not an error.
func (d *Discovery) Start() error {
	var list *memberlist.Memberlist
	port, err := netutil.TryPorts(d.config.Port, d.config.PortRange, func(port int) error {
		cfg := memberlist.DefaultLocalConfig()
		cfg.Name = string(d.local.ID)
		cfg.BindAddr = d.config.Host
		cfg.BindPort = port
		cfg.AdvertiseAddr = d.config.Host
		cfg.AdvertisePort = port
		cfg.Delegate = d
		cfg.Events = d
		cfg.Logger = newStdLogger(d.logger, quietFloor(d.config.Quiet))

		created, err := memberlist.Create(cfg)
		if err != nil {
			return err
		}
		list = created
		return nil
	})
	if err != nil {
		return err
	}

	d.list = list
	d.bindAddr = net.JoinHostPort(d.config.Host, strconv.Itoa(port))
	d.logger.Info("discovery bound", "address", d.bindAddr)

	seeds := make([]string, 0, len(d.config.Seeds))
	for _, seed := range d.config.Seeds {
		if seed != d.bindAddr {
			seeds = append(seeds, seed)
		}
	}

	contacted, err := list.Join(seeds)
	if contacted == 0 {
		d.logger.Debug("no peers answered on the discovery window", "seeds", len(seeds), "error", err)
	} else {
		d.logger.Info("joined grid", "contacted", contacted, "members", list.NumMembers())
	}
	return nil
}

func (d *Discovery) Address() string {
	return d.bindAddr
}

// SetActive gossips the local activation flag.
func (d *Discovery) SetActive(active bool) {
	d.mu.Lock()
	changed := d.local.Active != active
	d.local.Active = active
	d.mu.Unlock()

	if changed && d.list != nil {
		if err := d.list.UpdateNode(d.broadcast); err != nil {
			d.logger.Warn("failed to gossip activation flag", "error", err)
		}
	}
}

// Member looks up a visible member, including the local node. The returned
// attributes are a copy.
func (d *Discovery) Member(id domain.NodeID) (nodeMeta, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	meta, ok := d.members[id]
	if id == d.local.ID {
		meta, ok = d.local, true
	}
	meta.Attributes = maps.Clone(meta.Attributes)
	return meta, ok
}

// ServerIDs lists every visible server node, always including this one.
func (d *Discovery) ServerIDs() domain.NodeSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.serverIDsLocked()
}

func (d *Discovery) serverIDsLocked() domain.NodeSet {
	ids := []domain.NodeID{d.local.ID}
	for id, meta := range d.members {
		if meta.Role == roleServer {
			ids = append(ids, id)
		}
	}
	return domain.NewNodeSet(ids...)
}

// ActivePeers lists remote servers that report an active cluster.
func (d *Discovery) ActivePeers() []nodeMeta {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var peers []nodeMeta
	for _, meta := range d.members {
		if meta.Role == roleServer && meta.Active {
			peers = append(peers, meta)
		}
	}
	return peers
}

func (d *Discovery) TopologyVersion() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

func (d *Discovery) Topology(version uint64) (domain.TopologySnapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	nodes, ok := d.history[version]
	return domain.TopologySnapshot{Version: version, Nodes: nodes}, ok
}

// Leave announces departure and stops gossip.
func (d *Discovery) Leave(timeout time.Duration) error {
	if d.list == nil {
		return nil
	}
	if err := d.list.Leave(timeout); err != nil {
		d.logger.Warn("leave broadcast incomplete", "error", err)
	}
	return d.list.Shutdown()
}

// recordTopologyLocked bumps the topology version when the server set moved.
func (d *Discovery) recordTopologyLocked() {
	servers := d.serverIDsLocked()
	if d.version > 0 && slices.Equal(d.history[d.version], servers) {
		return
	}
	d.version++
	d.history[d.version] = servers
	d.logger.Debug("topology changed", "version", d.version, "servers", servers.Strings())
}

func (d *Discovery) NodeMeta(limit int) []byte {
	d.mu.RLock()
	meta := d.local
	d.mu.RUnlock()

	data, err := xjson.Marshal(meta)
	if err == nil && len(data) <= limit {
		return data
	}
	d.logger.Error("node metadata does not fit gossip limit", "size", len(data), "limit", limit, "error", err)

	// Keep the home attribute, then nothing optional at all.
	if home, ok := meta.Attributes[domain.HomeAttribute]; ok {
		meta.Attributes = map[string]string{domain.HomeAttribute: home}
		if data, err = xjson.Marshal(meta); err == nil && len(data) <= limit {
			return data
		}
	}
	meta.Attributes = nil
	meta.Instance = ""
	data, _ = xjson.Marshal(meta)
	return data
}

func (d *Discovery) NotifyMsg([]byte)                           {}
func (d *Discovery) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *Discovery) LocalState(join bool) []byte                { return nil }
func (d *Discovery) MergeRemoteState(buf []byte, join bool)     {}

// Event callbacks run under memberlist's own lock and must not call back
// into the memberlist.

func (d *Discovery) NotifyJoin(node *memberlist.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if node.Name == string(d.local.ID) {
		d.recordTopologyLocked()
		return
	}

	meta, ok := decodeMeta(node)
	if !ok {
		d.logger.Warn("ignoring member with unreadable metadata", "member", node.Name)
		return
	}
	d.members[meta.ID] = meta
	d.logger.Info("member joined", "node_id", meta.ID, "role", meta.Role, "address", node.Address())
	d.recordTopologyLocked()
}

func (d *Discovery) NotifyLeave(node *memberlist.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := domain.NodeID(node.Name)
	if _, ok := d.members[id]; !ok {
		return
	}
	delete(d.members, id)
	d.logger.Info("member left", "node_id", id)
	d.recordTopologyLocked()
}

func (d *Discovery) NotifyUpdate(node *memberlist.Node) {
	if node.Name == string(d.local.ID) {
		return
	}
	meta, ok := decodeMeta(node)
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[meta.ID] = meta
	d.recordTopologyLocked()
}

func decodeMeta(node *memberlist.Node) (nodeMeta, bool) {
	var meta nodeMeta
	if len(node.Meta) == 0 {
		return meta, false
	}
	if err := xjson.Unmarshal(node.Meta, &meta); err != nil {
		return meta, false
	}
	if meta.ID == "" {
		meta.ID = domain.NodeID(node.Name)
	}
	return meta, true
}

func quietFloor(quiet bool) slog.Level {
	if quiet {
		return slog.LevelWarn
	}
	return slog.LevelDebug - 4
}
