package valve

import (
	"github.com/l2fabric/valved/internal/ofpctl/errorkit"
	"github.com/l2fabric/valved/pkg/ofp"
)

// TableConfig selects which optional tables a DP's pipeline includes: the
// order is vlan -> [port_acl] -> [vlan_acl] -> eth_src -> [ipv4_fib] ->
// [ipv6_fib] -> [vip] -> eth_dst -> [eth_dst_hairpin] -> flood ->
// [egress_acl], with each bracketed table present only when its
// TableConfig flag is set.
type TableConfig struct {
	HasPortACL   bool
	HasVLANACL   bool
	HasIPv4FIB   bool
	HasIPv6FIB   bool
	HasVIP       bool
	HasHairpin   bool
	HasEgressACL bool
}

// Priorities names the relative flow priorities managers install at,
// mirroring the original's symbolic priority names rather than hard-coded
// integers scattered through call sites.
type Priorities struct {
	Lowest  int
	Low     int
	Medium  int
	High    int
	Highest int
}

// DefaultPriorities returns a priority band wide enough to leave room for
// longest-prefix-match FIB entries between Medium and High.
func DefaultPriorities() Priorities {
	return Priorities{Lowest: 0, Low: 1000, Medium: 5000, High: 9099, Highest: 9199}
}

// Pipeline owns the ordered set of flow tables for one DP and produces the
// table-features message and each table's default miss flow.
// All other managers target tables through Pipeline.Next/Classification —
// never by a hard-coded table id.
type Pipeline struct {
	cfg   TableConfig
	order []ofp.TableID
}

// NewPipeline builds the ordered table list for cfg.
func NewPipeline(cfg TableConfig) *Pipeline {
	p := &Pipeline{cfg: cfg}
	p.order = append(p.order, ofp.TableVLAN)
	if cfg.HasPortACL {
		p.order = append(p.order, ofp.TablePortACL)
	}
	if cfg.HasVLANACL {
		p.order = append(p.order, ofp.TableVLANACL)
	}
	p.order = append(p.order, ofp.TableEthSrc)
	if cfg.HasIPv4FIB {
		p.order = append(p.order, ofp.TableIPv4FIB)
	}
	if cfg.HasIPv6FIB {
		p.order = append(p.order, ofp.TableIPv6FIB)
	}
	if cfg.HasVIP {
		p.order = append(p.order, ofp.TableVIP)
	}
	p.order = append(p.order, ofp.TableEthDst)
	if cfg.HasHairpin {
		p.order = append(p.order, ofp.TableEthDstHairpin)
	}
	p.order = append(p.order, ofp.TableFlood)
	if cfg.HasEgressACL {
		p.order = append(p.order, ofp.TableEgressACL)
	}
	return p
}

// Tables returns the ordered table list.
func (p *Pipeline) Tables() []ofp.TableID {
	out := make([]ofp.TableID, len(p.order))
	copy(out, p.order)
	return out
}

// TableNames returns the ordered table list as strings, for the
// faucet_config_table_names export emitted once a DP's pipeline is known.
func (p *Pipeline) TableNames() []string {
	names := make([]string, len(p.order))
	for i, t := range p.order {
		names[i] = string(t)
	}
	return names
}

// Has reports whether t is part of this pipeline.
func (p *Pipeline) Has(t ofp.TableID) bool {
	for _, x := range p.order {
		if x == t {
			return true
		}
	}
	return false
}

// ClassificationTable returns the first table reached after vlan
// classification: port_acl if configured, else vlan_acl, else eth_src.
func (p *Pipeline) ClassificationTable() ofp.TableID {
	if p.cfg.HasPortACL {
		return ofp.TablePortACL
	}
	if p.cfg.HasVLANACL {
		return ofp.TableVLANACL
	}
	return ofp.TableEthSrc
}

// Next returns the table immediately following t in this pipeline, and
// false if t is the last table (in which case there's nothing to goto —
// miss policy defaults to drop).
func (p *Pipeline) Next(t ofp.TableID) (ofp.TableID, bool) {
	for i, x := range p.order {
		if x == t && i+1 < len(p.order) {
			return p.order[i+1], true
		}
	}
	return "", false
}

// RequireTable returns ErrTableNotFound if t is not part of this pipeline —
// every table a manager references must exist in the DP's table set,
// enforced at the point of use.
func (p *Pipeline) RequireTable(t ofp.TableID) error {
	if !p.Has(t) {
		return errorkit.NewPreconditionError("pipeline", string(t), "table must exist in DP table set", "")
	}
	return nil
}

// TableFeatures builds the table-features message for hardware profiles
// that need one (Traits.SendTableFeatures).
func (p *Pipeline) TableFeatures(traits ofp.Traits) ofp.TableFeatures {
	tf := ofp.TableFeatures{}
	maxEntries := traits.MinMaxFlows
	if maxEntries == 0 {
		maxEntries = 1000
	}
	for _, t := range p.order {
		tf.Tables = append(tf.Tables, ofp.TableFeature{Table: t, Name: string(t), MaxEntries: maxEntries})
	}
	return tf
}

// DefaultFlows builds each table's miss policy: goto the next table at the
// lowest priority if one exists ("goto_miss"), otherwise an explicit drop
// at the lowest priority.
func (p *Pipeline) DefaultFlows(priorities Priorities) []ofp.Message {
	var msgs []ofp.Message
	for _, t := range p.order {
		var instr []ofp.Instruction
		if next, ok := p.Next(t); ok {
			instr = []ofp.Instruction{ofp.GotoTable{Table: next}}
		}
		// An empty instruction list is an implicit drop in OpenFlow 1.3.
		msgs = append(msgs, ofp.FlowMod{
			Table:        t,
			Priority:     priorities.Lowest,
			Match:        ofp.Match{},
			Instructions: instr,
			Command:      ofp.FlowAdd,
		})
	}
	return msgs
}
