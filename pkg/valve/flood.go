// flood.go implements the Flood Manager: computes each VLAN's
// flood/broadcast output set and emits either a group-table flood entry or
// combinatorial per-in_port flow entries, with standalone and stacked
// variants.
package valve

import (
	"sort"

	"github.com/l2fabric/valved/pkg/ofp"
)

// FloodManager computes flood output sets and the flows/groups that
// realize them.
type FloodManager interface {
	// UpdateVLAN recomputes and returns the flood programming for vlan
	// given the current set of up, forwarding member ports.
	UpdateVLAN(vlan *VLANConfig, ports []*PortConfig, upPorts map[int]bool, forwarding map[int]bool) []ofp.Message
}

// floodGroupID derives a stable per-VLAN OpenFlow group id.
func floodGroupID(vid VID) uint32 { return 0x1000 + uint32(vid) }

// standaloneFlood is the non-stacked Flood Manager variant.
type standaloneFlood struct {
	dpName     string
	priorities Priorities
	useGroups  bool
}

// NewStandaloneFloodManager builds the Flood Manager for a DP with no
// stack ports.
func NewStandaloneFloodManager(dpName string, priorities Priorities, useGroups bool) FloodManager {
	return &standaloneFlood{dpName: dpName, priorities: priorities, useGroups: useGroups}
}

func floodMembers(vid VID, ports []*PortConfig, upPorts, forwarding map[int]bool) []*PortConfig {
	var members []*PortConfig
	for _, p := range ports {
		if !p.MemberOf(vid) {
			continue
		}
		if !upPorts[p.Number] {
			continue
		}
		if p.LACP != nil && !forwarding[p.Number] {
			continue // non-forwarding LACP bundle member
		}
		members = append(members, p)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Number < members[j].Number })
	return members
}

// UpdateVLAN implements FloodManager for the standalone case: one group (if
// UseGroupTables) or N combinatorial flows, one per distinct in_port, each
// flooding to every other member.
func (f *standaloneFlood) UpdateVLAN(vlan *VLANConfig, ports []*PortConfig, upPorts map[int]bool, forwarding map[int]bool) []ofp.Message {
	members := floodMembers(vlan.VID, ports, upPorts, forwarding)
	if f.useGroups {
		return f.groupFlood(vlan, members)
	}
	return f.combinatorialFlood(vlan, members, nil)
}

func (f *standaloneFlood) groupFlood(vlan *VLANConfig, members []*PortConfig) []ofp.Message {
	var buckets []ofp.GroupBucket
	for _, p := range members {
		buckets = append(buckets, ofp.GroupBucket{Actions: EgressActions(p, vlan.VID)})
	}
	gid := floodGroupID(vlan.VID)
	var msgs []ofp.Message
	msgs = append(msgs, ofp.GroupMod{GroupID: gid, Command: ofp.GroupAddCmd, Type: ofp.GroupAll, Buckets: buckets})
	msgs = append(msgs, ofp.FlowMod{
		Table:    ofp.TableFlood,
		Priority: f.priorities.Medium,
		Match:    ofp.Match{VID: ofp.VIDPtr(vlan.VID)},
		Instructions: []ofp.Instruction{
			ofp.ApplyActions{Actions: []ofp.Action{ofp.Group{GroupID: gid}}},
		},
		Command: ofp.FlowAdd,
	})
	return msgs
}

// combinatorialFlood emits, per ingress member, a generic flow whose output
// set is every other member except RestrictedBcastArpNd ports, plus two
// higher-priority flows (ARP ethertype and IPv6 ethertype) whose output set
// is every other member, restricted ones included.
func (f *standaloneFlood) combinatorialFlood(vlan *VLANConfig, members []*PortConfig, extra []ofp.Action) []ofp.Message {
	var msgs []ofp.Message
	for _, in := range members {
		var actions []ofp.Action
		for _, out := range members {
			if out.Number == in.Number {
				continue
			}
			if out.RestrictedBcastArpNd {
				continue // only reachable via the dedicated ARP/ND flow below
			}
			actions = append(actions, EgressActions(out, vlan.VID)...)
		}
		actions = append(actions, extra...)
		msgs = append(msgs, ofp.FlowMod{
			Table:    ofp.TableFlood,
			Priority: f.priorities.Medium,
			Match:    ofp.Match{VID: ofp.VIDPtr(vlan.VID), InPort: ofp.IntPtr(in.Number)},
			Instructions: []ofp.Instruction{
				ofp.ApplyActions{Actions: actions},
			},
			Command: ofp.FlowAdd,
		})

		var arpNDActions []ofp.Action
		for _, out := range members {
			if out.Number == in.Number {
				continue
			}
			arpNDActions = append(arpNDActions, EgressActions(out, vlan.VID)...)
		}
		for _, ethType := range []uint16{ofp.EthTypeARP, ofp.EthTypeIPv6} {
			msgs = append(msgs, ofp.FlowMod{
				Table:    ofp.TableFlood,
				Priority: f.priorities.High,
				Match:    ofp.Match{VID: ofp.VIDPtr(vlan.VID), InPort: ofp.IntPtr(in.Number), EthType: ofp.EthTypePtr(ethType)},
				Instructions: []ofp.Instruction{
					ofp.ApplyActions{Actions: arpNDActions},
				},
				Command: ofp.FlowAdd,
			})
		}
	}
	return msgs
}

// StackFloodMode selects the stacked Flood Manager's reflection policy.
type StackFloodMode int

const (
	NoReflection StackFloodMode = iota
	Reflection
)

// ShortestPathFunc computes the stack port on dpName toward the root, the
// way pkg/stack.Topology.ShortestPathPort does.
type ShortestPathFunc func(dpName string) (port int, ok bool)

// stackedFlood is the stacked Flood Manager variant.
type stackedFlood struct {
	dpName       string
	priorities   Priorities
	mode         StackFloodMode
	isRoot       bool
	shortestPath ShortestPathFunc
}

// NewStackedFloodManager builds the Flood Manager for a DP that
// participates in a stack. shortestPath resolves, for any DP name in the
// stack, the local stack port pointing toward the root.
func NewStackedFloodManager(dpName string, priorities Priorities, mode StackFloodMode, isRoot bool, shortestPath ShortestPathFunc) FloodManager {
	return &stackedFlood{dpName: dpName, priorities: priorities, mode: mode, isRoot: isRoot, shortestPath: shortestPath}
}

// UpdateVLAN builds the stacked flood flows: every non-stack member gets
// the same combinatorial treatment as standalone, plus stack ports are
// added as flood targets following the reflection policy — NoReflection
// sends away from the root only (a stack port toward the root is never a
// flood target for traffic ingressing from another stack port); Reflection
// additionally allows the root to reflect received traffic back down every
// other stack port.
func (f *stackedFlood) UpdateVLAN(vlan *VLANConfig, ports []*PortConfig, upPorts map[int]bool, forwarding map[int]bool) []ofp.Message {
	members := floodMembers(vlan.VID, ports, upPorts, forwarding)

	rootPort, hasRootPort := f.shortestPath(f.dpName)

	var msgs []ofp.Message
	for _, in := range members {
		var actions []ofp.Action
		inIsStack := in.Stack != nil
		for _, out := range members {
			if out.Number == in.Number {
				continue
			}
			if out.Stack != nil && inIsStack && (f.mode != Reflection || !f.isRoot) {
				// Traffic arriving from another stack port only re-floods
				// out stack ports under Reflection, and only at the root.
				continue
			}
			if out.Stack != nil && hasRootPort && out.Number == rootPort && !f.isRoot {
				// A non-root DP's path-to-root port only carries traffic
				// destined upstream, not a local rebroadcast.
				continue
			}
			actions = append(actions, EgressActions(out, vlan.VID)...)
		}
		msgs = append(msgs, ofp.FlowMod{
			Table:    ofp.TableFlood,
			Priority: f.priorities.Medium,
			Match:    ofp.Match{VID: ofp.VIDPtr(vlan.VID), InPort: ofp.IntPtr(in.Number)},
			Instructions: []ofp.Instruction{
				ofp.ApplyActions{Actions: actions},
			},
			Command: ofp.FlowAdd,
		})
	}
	return msgs
}

// UpdateStackTopo recomputes and returns this VLAN's flood programming
// after a stack link flips. It is a thin wrapper over UpdateVLAN: the
// shortestPath function closure already reflects the new topology by the
// time this is called.
func (f *stackedFlood) UpdateStackTopo(vlan *VLANConfig, ports []*PortConfig, upPorts map[int]bool, forwarding map[int]bool) []ofp.Message {
	return f.UpdateVLAN(vlan, ports, upPorts, forwarding)
}

// EdgeLearnPort resolves which local port a stack-routed learn should bind
// to: a host is learned only on the DP directly attached to it (srcDP ==
// localDP); every other DP on the path learns via the shortest stack port
// toward srcDP instead.
func EdgeLearnPort(localDP, srcDP string, srcPort int, shortestPath func(from, to string) (port int, ok bool)) (port int, ok bool) {
	if localDP == srcDP {
		return srcPort, true
	}
	return shortestPath(localDP, srcDP)
}
