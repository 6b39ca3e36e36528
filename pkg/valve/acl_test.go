package valve

import (
	"testing"

	"github.com/l2fabric/valved/pkg/ofp"
)

func TestCompilePortEmitsOneFlowPerRule(t *testing.T) {
	acls := map[string]*ACL{
		"drop_telnet": {Name: "drop_telnet", Rules: []Rule{
			{Name: "r1", Priority: 9000, Action: RuleDrop},
		}},
	}
	m := NewACLManager("dp1", DefaultPriorities(), acls, nil)
	port := &PortConfig{Number: 1, ACLsIn: []string{"drop_telnet"}}

	msgs := m.CompilePort(port)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 flow, got %d", len(msgs))
	}
	fm := msgs[0].(ofp.FlowMod)
	if fm.Table != ofp.TablePortACL {
		t.Fatalf("expected port_acl table, got %v", fm.Table)
	}
	if fm.Match.InPort == nil || *fm.Match.InPort != 1 {
		t.Fatalf("expected the compiled match to carry the port's in_port, got %v", fm.Match.InPort)
	}
}

func TestCompileSkipsUnknownACLName(t *testing.T) {
	m := NewACLManager("dp1", DefaultPriorities(), map[string]*ACL{}, nil)
	port := &PortConfig{Number: 1, ACLsIn: []string{"does_not_exist"}}
	if msgs := m.CompilePort(port); len(msgs) != 0 {
		t.Fatalf("expected no flows for an unresolvable ACL name, got %d", len(msgs))
	}
}

func TestRuleAllowGotoesEthSrc(t *testing.T) {
	acls := map[string]*ACL{
		"pass": {Name: "pass", Rules: []Rule{{Name: "r1", Priority: 9000, Action: RuleAllow}}},
	}
	m := NewACLManager("dp1", DefaultPriorities(), acls, nil)
	vlan := &VLANConfig{VID: 100, ACLsIn: []string{"pass"}}

	msgs := m.CompileVLAN(vlan)
	fm := msgs[0].(ofp.FlowMod)
	if len(fm.Instructions) != 1 {
		t.Fatalf("expected a single goto instruction, got %v", fm.Instructions)
	}
	goto_, ok := fm.Instructions[0].(ofp.GotoTable)
	if !ok || goto_.Table != ofp.TableEthSrc {
		t.Fatalf("expected goto eth_src, got %v", fm.Instructions[0])
	}
}

func TestRuleMeterEmitsMeterModBeforeFlowMod(t *testing.T) {
	acls := map[string]*ACL{
		"limited": {Name: "limited", Rules: []Rule{{Name: "r1", Priority: 9000, Action: RuleMeter, MeterID: 7}}},
	}
	m := NewACLManager("dp1", DefaultPriorities(), acls, nil)
	vlan := &VLANConfig{VID: 100, ACLsIn: []string{"limited"}}

	msgs := m.CompileVLAN(vlan)
	if len(msgs) != 2 {
		t.Fatalf("expected a MeterMod and a FlowMod, got %d messages", len(msgs))
	}
	mm, ok := msgs[0].(ofp.MeterMod)
	if !ok || mm.MeterID != 7 {
		t.Fatalf("expected the first message to be the MeterMod for meter 7, got %#v", msgs[0])
	}
}

func TestRuleTunnelResolvesOutputPortViaShortestPath(t *testing.T) {
	acls := map[string]*ACL{
		"to_dp2": {Name: "to_dp2", Rules: []Rule{{Name: "r1", Priority: 9000, Action: RuleTunnel, TunnelDP: "dp2"}}},
	}
	shortestPath := func(dpName string) (int, bool) {
		if dpName == "dp2" {
			return 5, true
		}
		return 0, false
	}
	m := NewACLManager("dp1", DefaultPriorities(), acls, shortestPath)
	port := &PortConfig{Number: 1, ACLsIn: []string{"to_dp2"}}

	msgs := m.CompilePort(port)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 tunnel flow, got %d", len(msgs))
	}
	fm := msgs[0].(ofp.FlowMod)
	actions := fm.Instructions[0].(ofp.ApplyActions).Actions
	if _, ok := actions[0].(ofp.PushVLAN); !ok {
		t.Fatalf("expected the tunnel flow to push the global VID first, got %#v", actions[0])
	}
	out, ok := actions[1].(ofp.Output)
	if !ok || out.Port != 5 {
		t.Fatalf("expected output to port 5 resolved via ShortestPathFunc, got %#v", actions[1])
	}
}

func TestRuleTunnelProducesNothingWhenPeerUnreachable(t *testing.T) {
	acls := map[string]*ACL{
		"to_dp2": {Name: "to_dp2", Rules: []Rule{{Name: "r1", Priority: 9000, Action: RuleTunnel, TunnelDP: "dp2"}}},
	}
	unreachable := func(string) (int, bool) { return 0, false }
	m := NewACLManager("dp1", DefaultPriorities(), acls, unreachable)
	port := &PortConfig{Number: 1, ACLsIn: []string{"to_dp2"}}

	if msgs := m.CompilePort(port); len(msgs) != 0 {
		t.Fatalf("expected no tunnel flow when the peer is unreachable, got %d", len(msgs))
	}
}

func TestRecompileTunnelsOnlyTouchesTunnelRules(t *testing.T) {
	acls := map[string]*ACL{
		"mixed": {Name: "mixed", Rules: []Rule{
			{Name: "drop", Priority: 9000, Action: RuleDrop},
			{Name: "tunnel", Priority: 9000, Action: RuleTunnel, TunnelDP: "dp2"},
		}},
	}
	shortestPath := func(string) (int, bool) { return 2, true }
	m := NewACLManager("dp1", DefaultPriorities(), acls, shortestPath)

	msgs := m.RecompileTunnels()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly 1 flow (the tunnel rule only), got %d", len(msgs))
	}
}
