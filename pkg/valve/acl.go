// acl.go implements the ACL Manager: compiles rule lists
// targeting port_acl/vlan_acl/egress_acl into flow entries and meters,
// including tunnel rules that push the global VID and output toward the
// computed stack path (ingress encap only).
package valve

import (
	"fmt"

	"github.com/l2fabric/valved/pkg/ofp"
)

// RuleAction selects what an ACL rule does to a matching packet.
type RuleAction int

const (
	RuleAllow RuleAction = iota
	RuleDrop
	RuleMirror
	RuleMeter
	RuleOutput
	RuleVLANRewrite
	RuleTunnel
)

// Rule is one compiled ACL entry.
type Rule struct {
	Name     string
	Priority int
	Match    ofp.Match
	Action   RuleAction

	MirrorPort int
	MeterID    uint32
	OutputPort int
	RewriteVID VID

	// Tunnel fields: TunnelDP names the remote endpoint DP; the
	// manager resolves the outbound stack port via ShortestPathFunc at
	// compile time.
	TunnelDP string
}

// ACL is a named, ordered list of Rules bound to port_acl, vlan_acl, or
// egress_acl.
type ACL struct {
	Name  string
	Rules []Rule
}

// ACLManager compiles ACLs into flow entries.
type ACLManager struct {
	dpName       string
	priorities   Priorities
	acls         map[string]*ACL
	shortestPath ShortestPathFunc
}

// NewACLManager builds an ACL Manager backed by the given named ACL
// definitions.
func NewACLManager(dpName string, priorities Priorities, acls map[string]*ACL, shortestPath ShortestPathFunc) *ACLManager {
	return &ACLManager{dpName: dpName, priorities: priorities, acls: acls, shortestPath: shortestPath}
}

// CompilePort compiles the named ACLs bound to port's ingress into
// port_acl flow entries.
func (m *ACLManager) CompilePort(port *PortConfig) []ofp.Message {
	return m.compile(ofp.TablePortACL, port.ACLsIn, ofp.Match{InPort: ofp.IntPtr(port.Number)})
}

// CompileVLAN compiles the named ACLs bound to vlan's ingress into
// vlan_acl flow entries.
func (m *ACLManager) CompileVLAN(vlan *VLANConfig) []ofp.Message {
	return m.compile(ofp.TableVLANACL, vlan.ACLsIn, ofp.Match{VID: ofp.VIDPtr(vlan.VID)})
}

// CompileEgress compiles the named ACLs bound to vlan's egress into
// egress_acl flow entries.
func (m *ACLManager) CompileEgress(vlan *VLANConfig, names []string) []ofp.Message {
	return m.compile(ofp.TableEgressACL, names, ofp.Match{VID: ofp.VIDPtr(vlan.VID)})
}

func (m *ACLManager) compile(table ofp.TableID, names []string, base ofp.Match) []ofp.Message {
	var msgs []ofp.Message
	for _, name := range names {
		acl, ok := m.acls[name]
		if !ok {
			continue // unknown ACL name: dropped at validation time upstream
		}
		for _, r := range acl.Rules {
			match := mergeMatch(base, r.Match)
			msgs = append(msgs, m.ruleFlow(table, r, match)...)
		}
	}
	return msgs
}

func mergeMatch(base, rule ofp.Match) ofp.Match {
	out := base.Clone()
	if rule.EthSrc != nil {
		out.EthSrc = rule.EthSrc
	}
	if rule.EthDst != nil {
		out.EthDst = rule.EthDst
	}
	if rule.EthType != nil {
		out.EthType = rule.EthType
	}
	if rule.IPv4Src != nil {
		out.IPv4Src = rule.IPv4Src
	}
	if rule.IPv4Dst != nil {
		out.IPv4Dst = rule.IPv4Dst
	}
	if rule.IPv6Src != nil {
		out.IPv6Src = rule.IPv6Src
	}
	if rule.IPv6Dst != nil {
		out.IPv6Dst = rule.IPv6Dst
	}
	if len(rule.Ext) > 0 {
		if out.Ext == nil {
			out.Ext = make(map[string]string, len(rule.Ext))
		}
		for k, v := range rule.Ext {
			out.Ext[k] = v
		}
	}
	return out
}

func (m *ACLManager) ruleFlow(table ofp.TableID, r Rule, match ofp.Match) []ofp.Message {
	switch r.Action {
	case RuleDrop:
		return []ofp.Message{ofp.FlowMod{Table: table, Priority: r.Priority, Match: match, Command: ofp.FlowAdd}}
	case RuleAllow:
		return []ofp.Message{ofp.FlowMod{
			Table: table, Priority: r.Priority, Match: match,
			Instructions: []ofp.Instruction{ofp.GotoTable{Table: ofp.TableEthSrc}},
			Command:      ofp.FlowAdd,
		}}
	case RuleMirror:
		return []ofp.Message{ofp.FlowMod{
			Table: table, Priority: r.Priority, Match: match,
			Instructions: []ofp.Instruction{ofp.ApplyActions{Actions: []ofp.Action{
				ofp.Output{Port: r.MirrorPort},
			}}, ofp.GotoTable{Table: ofp.TableEthSrc}},
			Command: ofp.FlowAdd,
		}}
	case RuleMeter:
		return []ofp.Message{
			ofp.MeterMod{MeterID: r.MeterID, Command: ofp.MeterAddCmd, Bands: []ofp.MeterBand{{Type: ofp.MeterBandDrop, Rate: 1000}}},
			ofp.FlowMod{
				Table: table, Priority: r.Priority, Match: match,
				Instructions: []ofp.Instruction{
					ofp.MeterInstruction{MeterID: r.MeterID},
					ofp.GotoTable{Table: ofp.TableEthSrc},
				},
				Command: ofp.FlowAdd,
			},
		}
	case RuleOutput:
		return []ofp.Message{ofp.FlowMod{
			Table: table, Priority: r.Priority, Match: match,
			Instructions: []ofp.Instruction{ofp.ApplyActions{Actions: []ofp.Action{ofp.Output{Port: r.OutputPort}}}},
			Command:      ofp.FlowAdd,
		}}
	case RuleVLANRewrite:
		return []ofp.Message{ofp.FlowMod{
			Table: table, Priority: r.Priority, Match: match,
			Instructions: []ofp.Instruction{
				ofp.ApplyActions{Actions: []ofp.Action{ofp.SetField{Field: "vlan_vid", Value: fmt.Sprintf("%d", r.RewriteVID)}}},
				ofp.GotoTable{Table: ofp.TableEthSrc},
			},
			Command: ofp.FlowAdd,
		}}
	case RuleTunnel:
		return m.tunnelFlows(table, r, match)
	default:
		return nil
	}
}

// tunnelFlows builds the ingress-encap flow for a tunnel rule, resolving
// the outbound stack port toward r.TunnelDP via the manager's
// ShortestPathFunc. Only this encap flow is built: no egress-decap (VLAN
// pop) flow is produced for a tunnel rule on any DP.
func (m *ACLManager) tunnelFlows(table ofp.TableID, r Rule, match ofp.Match) []ofp.Message {
	outPort, ok := m.shortestPath(r.TunnelDP)
	if !ok {
		return nil
	}
	return []ofp.Message{ofp.FlowMod{
		Table: table, Priority: r.Priority, Match: match,
		Instructions: []ofp.Instruction{
			ofp.ApplyActions{Actions: []ofp.Action{
				ofp.PushVLAN{VID: GlobalVID},
				ofp.Output{Port: outPort},
			}},
		},
		Command: ofp.FlowAdd,
	}}
}

// RecompileTunnels rebuilds every tunnel rule's flows across all known
// ACLs — called whenever the stack topology changes.
func (m *ACLManager) RecompileTunnels() []ofp.Message {
	var msgs []ofp.Message
	for _, acl := range m.acls {
		for _, r := range acl.Rules {
			if r.Action != RuleTunnel {
				continue
			}
			msgs = append(msgs, m.ruleFlow(ofp.TablePortACL, r, r.Match)...)
		}
	}
	return msgs
}
