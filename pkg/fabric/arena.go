// Package fabric implements the cross-Valve coordinator: it owns every Valve
// in a stack plus the shared stack.Topology, and is the only caller
// permitted to invoke cross-Valve operations — stack fan-out and multi-DP
// learning.
package fabric

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/l2fabric/valved/internal/ofpctl/errorkit"
	"github.com/l2fabric/valved/internal/ofpctl/log"
	"github.com/l2fabric/valved/pkg/stack"
	"github.com/l2fabric/valved/pkg/valve"
)

// arenaLockTTL bounds how long a FastStateExpire fan-out may hold the
// coordinated-step lock before a cross-process backend considers it
// abandoned and lets another coordinator take over.
const arenaLockTTL = 5 * time.Second

// Arena owns a set of Valves that participate in one stack and the shared
// topology used to compute flood sets and edge-learn ports.
type Arena struct {
	valves   map[string]*valve.Valve
	topology *stack.Topology

	stackRouteLearning bool
	exclusivity        ExclusivityBackend
	holder             string
}

// NewArena builds an empty arena rooted at the given stack root DP name.
// The exclusivity backend defaults to an in-process mutex; call
// SetExclusivityBackend to upgrade to a cross-process Lock.
func NewArena(rootName string, stackRouteLearning bool) *Arena {
	return &Arena{
		valves:             make(map[string]*valve.Valve),
		topology:           stack.NewTopology(rootName),
		stackRouteLearning: stackRouteLearning,
		exclusivity:        &inProcessBackend{},
		holder:             fmt.Sprintf("%s|%d", hostname(), os.Getpid()),
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// Register adds v to the arena under its DP name.
func (a *Arena) Register(v *valve.Valve) {
	a.valves[v.Name()] = v
}

// Topology exposes the shared stack graph so callers can build
// ShortestPathFunc-backed Flood/ACL managers before registering a Valve.
func (a *Arena) Topology() *stack.Topology { return a.topology }

func (a *Arena) peers() map[string]valve.Peer {
	out := make(map[string]valve.Peer, len(a.valves))
	for name, v := range a.valves {
		out[name] = v
	}
	return out
}

// sortedNames returns every registered DP name, sorted — used wherever fan
// out order must be deterministic.
func (a *Arena) sortedNames() []string {
	names := make([]string, 0, len(a.valves))
	for name := range a.valves {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DispatchPacketIn routes a packet-in on dpName through that Valve, fanning
// out to peer Valves for multi-DP stack-route learning when enabled.
func (a *Arena) DispatchPacketIn(dpName string, now time.Time, pkt valve.PacketMeta) (valve.OFMsgMap, error) {
	v, ok := a.valves[dpName]
	if !ok {
		return nil, errorkit.ErrValveNotFound
	}
	isRoot := a.topology.IsRoot(dpName)
	edgePort := func(srcDP string, srcPort int) (int, bool) {
		return valve.EdgeLearnPort(dpName, srcDP, srcPort, func(from, to string) (int, bool) {
			return a.topology.PortTowards(from, to)
		})
	}
	return v.RcvPacket(now, a.peers(), pkt, a.stackRouteLearning, isRoot, edgePort), nil
}

// FastStateExpire re-evaluates every registered Valve's stack link state
// machines, then — if any Valve's pass emitted messages — fans out a full recompute to
// every other Valve in the stack. This is the one cross-Valve mutation the
// core performs outside of packet-in routing, so it runs under
// WithExclusive: no other coordinator may be mid-fan-out over the same
// stack while this one is reading and rewriting every Valve's stack state.
func (a *Arena) FastStateExpire(now time.Time) valve.OFMsgMap {
	out := valve.OFMsgMap{}
	err := a.WithExclusive(a.holder, arenaLockTTL, func() error {
		var anyTransitioned bool
		for _, name := range a.sortedNames() {
			v := a.valves[name]
			res := v.RecomputeStackState(now, false)
			for dp, msgs := range res {
				out[dp] = append(out[dp], msgs...)
				if len(msgs) > 0 {
					anyTransitioned = true
				}
			}
		}
		if !anyTransitioned {
			return nil
		}
		// A transition anywhere in the stack means every Valve — not just
		// the one whose own port flipped — must recompute tunnel/flood
		// state, so force every Valve's second pass unconditionally rather
		// than re-checking each Valve's own (possibly unchanged) local
		// stack ports again.
		for _, name := range a.sortedNames() {
			v := a.valves[name]
			res := v.RecomputeStackState(now, true)
			for dp, msgs := range res {
				out[dp] = append(out[dp], msgs...)
			}
		}
		return nil
	})
	if err != nil {
		log.WithOperation("fast_state_expire").Warnf("skipping stack state recompute: %v", err)
		return valve.OFMsgMap{}
	}
	return out
}

// StateExpire runs LACP timeout, host expiry, and route expiry on every
// registered Valve.
func (a *Arena) StateExpire(now time.Time) valve.OFMsgMap {
	out := valve.OFMsgMap{}
	for _, name := range a.sortedNames() {
		res := a.valves[name].StateExpire(now)
		for dp, msgs := range res {
			out[dp] = append(out[dp], msgs...)
		}
	}
	return out
}

// ResolveGateways runs the route managers' resolution pass on every
// registered Valve.
func (a *Arena) ResolveGateways(now time.Time) valve.OFMsgMap {
	out := valve.OFMsgMap{}
	for _, name := range a.sortedNames() {
		res := a.valves[name].ResolveGateways(now)
		for dp, msgs := range res {
			out[dp] = append(out[dp], msgs...)
		}
	}
	return out
}

// Advertise runs the periodic router advertisement on every registered
// Valve.
func (a *Arena) Advertise(now time.Time) valve.OFMsgMap {
	out := valve.OFMsgMap{}
	for _, name := range a.sortedNames() {
		res := a.valves[name].Advertise(now)
		for dp, msgs := range res {
			out[dp] = append(out[dp], msgs...)
		}
	}
	return out
}

// FastAdvertise runs the periodic LACP/LLDP beaconing on every registered
// Valve.
func (a *Arena) FastAdvertise(now time.Time) valve.OFMsgMap {
	out := valve.OFMsgMap{}
	for _, name := range a.sortedNames() {
		res := a.valves[name].FastAdvertise(now)
		for dp, msgs := range res {
			out[dp] = append(out[dp], msgs...)
		}
	}
	return out
}

// Valve returns the registered Valve named name, if any — used by the CLI
// and tests to drive a single Valve's non-cross-cutting operations
// (datapath_connect, port_status_handler, reload_config) directly.
func (a *Arena) Valve(name string) (*valve.Valve, bool) {
	v, ok := a.valves[name]
	return v, ok
}
