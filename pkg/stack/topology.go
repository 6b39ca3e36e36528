// Package stack models the undirected graph of datapaths connected by
// dedicated stack ports. Every Valve knows the
// whole graph and computes shortest-path-to-root and shortest-path-port
// deterministically — this package is that shared, side-effect-free
// computation. It intentionally has no dependency on pkg/valve: the
// cross-Valve coordinator in pkg/fabric wires the two together.
package stack

import (
	"sort"
	"sync"
)

// Edge is one stack link between two datapaths' named ports.
type Edge struct {
	DPA, DPB     string
	PortA, PortB int
}

// Topology is the undirected stack graph rooted at RootName.
type Topology struct {
	mu       sync.RWMutex
	rootName string
	edges    map[string]Edge // keyed by canonical edge key
}

// NewTopology creates an empty topology rooted at rootName.
func NewTopology(rootName string) *Topology {
	return &Topology{rootName: rootName, edges: make(map[string]Edge)}
}

func edgeKey(dpA string, portA int, dpB string, portB int) string {
	a := dpA + "#" + itoa(portA)
	b := dpB + "#" + itoa(portB)
	if a > b {
		a, b = b, a
	}
	return a + "->" + b
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// RootName returns the stack root's DP name.
func (t *Topology) RootName() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootName
}

// SetRoot changes the stack root, e.g. after a reload changes stack_priority.
func (t *Topology) SetRoot(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rootName = name
}

// AddLink inserts (or replaces) the stack link between dpA:portA and
// dpB:portB.
func (t *Topology) AddLink(dpA string, portA int, dpB string, portB int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.edges[edgeKey(dpA, portA, dpB, portB)] = Edge{DPA: dpA, PortA: portA, DPB: dpB, PortB: portB}
}

// RemoveLink deletes the stack link incident to dp:port, on either side.
func (t *Topology) RemoveLink(dp string, port int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.edges {
		if (e.DPA == dp && e.PortA == port) || (e.DPB == dp && e.PortB == port) {
			delete(t.edges, k)
		}
	}
}

// adj is one adjacency entry (peerDP, viaPort, peerPort), as returned by
// neighborsLocked.
type adj struct {
	peerDP   string
	viaPort  int
	peerPort int
}

func (t *Topology) neighborsLocked(dp string) []adj {
	var out []adj
	for _, e := range t.edges {
		if e.DPA == dp {
			out = append(out, adj{peerDP: e.DPB, viaPort: e.PortA, peerPort: e.PortB})
		} else if e.DPB == dp {
			out = append(out, adj{peerDP: e.DPA, viaPort: e.PortB, peerPort: e.PortA})
		}
	}
	// Deterministic iteration order regardless of map iteration.
	sort.Slice(out, func(i, j int) bool {
		if out[i].peerDP != out[j].peerDP {
			return out[i].peerDP < out[j].peerDP
		}
		return out[i].viaPort < out[j].viaPort
	})
	return out
}

// ShortestPathToRoot returns the DP-name path from dp to the stack root
// (inclusive of both ends), using BFS over the undirected graph with a
// deterministic tie-break by sorted neighbor DP name. Returns ok=false if
// dp is not connected to the root.
func (t *Topology) ShortestPathToRoot(dp string) (path []string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bfsLocked(dp, t.rootName)
}

func (t *Topology) bfsLocked(from, to string) ([]string, bool) {
	if from == to {
		return []string{from}, true
	}
	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range t.neighborsLocked(cur) {
			if _, seen := prev[n.peerDP]; seen {
				continue
			}
			prev[n.peerDP] = cur
			if n.peerDP == to {
				return reconstruct(prev, from, to), true
			}
			queue = append(queue, n.peerDP)
		}
	}
	return nil, false
}

func reconstruct(prev map[string]string, from, to string) []string {
	var rev []string
	cur := to
	for cur != from {
		rev = append(rev, cur)
		cur = prev[cur]
	}
	rev = append(rev, from)
	out := make([]string, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}

// ShortestPathPort returns the local port number on dp that leads along the
// shortest path to the stack root, and true if dp has one (i.e. dp is not
// itself the root and is connected to it).
func (t *Topology) ShortestPathPort(dp string) (port int, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if dp == t.rootName {
		return 0, false
	}
	path, ok := t.bfsLocked(dp, t.rootName)
	if !ok || len(path) < 2 {
		return 0, false
	}
	next := path[1]
	for _, n := range t.neighborsLocked(dp) {
		if n.peerDP == next {
			return n.viaPort, true
		}
	}
	return 0, false
}

// PortTowards returns the local port on dp that connects directly to
// target, if any — used for rewriting packet-in metadata onto the correct
// stack port during multi-DP learning.
func (t *Topology) PortTowards(dp, target string) (port int, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, n := range t.neighborsLocked(dp) {
		if n.peerDP == target {
			return n.viaPort, true
		}
	}
	return 0, false
}

// IsRoot reports whether dp is the stack root.
func (t *Topology) IsRoot(dp string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return dp == t.rootName
}

// DPNames returns every DP name that appears in the topology, sorted.
func (t *Topology) DPNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := map[string]bool{t.rootName: true}
	for _, e := range t.edges {
		set[e.DPA] = true
		set[e.DPB] = true
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
