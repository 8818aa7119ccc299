package domain

import "sort"

type NodeID string

// NodeSet is a sorted, duplicate-free list of node ids.
type NodeSet []NodeID

func NewNodeSet(ids ...NodeID) NodeSet {
	seen := make(map[NodeID]struct{}, len(ids))
	set := make(NodeSet, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		set = append(set, id)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

func (s NodeSet) Contains(id NodeID) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= id })
	return i < len(s) && s[i] == id
}

func (s NodeSet) Strings() []string {
	out := make([]string, len(s))
	for i, id := range s {
		out[i] = string(id)
	}
	return out
}

// TopologySnapshot is the server set visible at one topology version.
type TopologySnapshot struct {
	Version uint64  `json:"version"`
	Nodes   NodeSet `json:"nodes"`
}

// BaselineTopology is the committed data-owning membership.
type BaselineTopology struct {
	Revision uint64  `json:"revision"`
	Nodes    NodeSet `json:"nodes"`
}
