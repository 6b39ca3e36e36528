// reload.go implements config reconciliation: diffing an outgoing DPConfig against an incoming one
// and choosing a warm or cold restart path.
package valve

import "github.com/l2fabric/valved/pkg/ofp"

// RestartType selects how reload_config applies a new DPConfig.
type RestartType int

const (
	RestartWarm RestartType = iota
	RestartCold
	RestartNone
)

// ConfigDiff is the computed delta between an outgoing and incoming
// DPConfig.
type ConfigDiff struct {
	DeletedPorts    []int
	ChangedPorts    []int
	ChangedACLPorts []int
	DeletedVIDs     []VID
	ChangedVIDs     []VID
	AllPortsChanged bool
	PipelineChanged bool
}

// DiffConfig computes the reload delta between old and next.
func DiffConfig(old, next *DPConfig) ConfigDiff {
	var d ConfigDiff
	d.PipelineChanged = old.Tables != next.Tables || old.Hardware != next.Hardware

	allChanged := len(old.Ports) > 0
	for num, op := range old.Ports {
		np, ok := next.Ports[num]
		if !ok {
			d.DeletedPorts = append(d.DeletedPorts, num)
			continue
		}
		allChanged = false
		if !portEqual(op, np) {
			d.ChangedPorts = append(d.ChangedPorts, num)
		} else if !aclListEqual(op.ACLsIn, np.ACLsIn) {
			d.ChangedACLPorts = append(d.ChangedACLPorts, num)
		}
	}
	for num := range next.Ports {
		if _, ok := old.Ports[num]; !ok {
			d.ChangedPorts = append(d.ChangedPorts, num)
		}
	}
	d.AllPortsChanged = allChanged && len(next.Ports) > 0

	for vid, ov := range old.VLANs {
		nv, ok := next.VLANs[vid]
		if !ok {
			d.DeletedVIDs = append(d.DeletedVIDs, vid)
			continue
		}
		if !vlanEqual(ov, nv) {
			d.ChangedVIDs = append(d.ChangedVIDs, vid)
		}
	}
	for vid := range next.VLANs {
		if _, ok := old.VLANs[vid]; !ok {
			d.ChangedVIDs = append(d.ChangedVIDs, vid)
		}
	}
	return d
}

func portEqual(a, b *PortConfig) bool {
	if a.NativeVLAN != b.NativeVLAN || len(a.TaggedVLANs) != len(b.TaggedVLANs) {
		return false
	}
	for i := range a.TaggedVLANs {
		if a.TaggedVLANs[i] != b.TaggedVLANs[i] {
			return false
		}
	}
	if (a.Stack == nil) != (b.Stack == nil) {
		return false
	}
	if a.Stack != nil && *a.Stack != *b.Stack {
		return false
	}
	if (a.LACP == nil) != (b.LACP == nil) {
		return false
	}
	// ACL bindings are intentionally excluded here: an ACL-only change is
	// classified separately as ChangedACLPorts by DiffConfig, which takes
	// the lighter "reinstall ACL flows" path instead of a full port
	// delete+readd.
	return true
}

func aclListEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func vlanEqual(a, b *VLANConfig) bool {
	if a.MaxHosts != b.MaxHosts {
		return false
	}
	if len(a.Tagged) != len(b.Tagged) || len(a.Untagged) != len(b.Untagged) {
		return false
	}
	return aclListEqual(a.ACLsIn, b.ACLsIn) && aclListEqual(a.ACLsOut, b.ACLsOut)
}

// Reconcile applies a warm-reload diff in a fixed resolution order: deleted
// ports -> deleted VLANs -> changed ports -> swap DP -> re-added changed
// VLANs -> re-added changed ports (only those previously up). ACL
// recompilation for ChangedACLPorts is the caller's responsibility. Callers
// that observe PipelineChanged or AllPortsChanged on the returned diff must
// instead force a cold reconnect (DatapathConnect on the new config) rather
// than calling Reconcile.
func Reconcile(diff ConfigDiff, oldCfg, newCfg *DPConfig, oldRT *DPRuntime, pipeline *Pipeline, priorities Priorities, upBefore map[int]bool) (*DPRuntime, []ofp.Message) {
	var msgs []ofp.Message

	for _, num := range diff.DeletedPorts {
		msgs = append(msgs, deletePortFlows(num)...)
	}
	for _, vid := range diff.DeletedVIDs {
		msgs = append(msgs, deleteVLANFlows(vid)...)
	}
	for _, num := range diff.ChangedPorts {
		if _, stillExists := oldCfg.Ports[num]; stillExists {
			msgs = append(msgs, deletePortFlows(num)...)
		}
	}

	newRT := oldRT.Migrate(newCfg)
	newRT.EnsureRuntime(newCfg)

	for _, vid := range diff.ChangedVIDs {
		if vcfg, ok := newCfg.VLANs[vid]; ok {
			msgs = append(msgs, addVLANFlows(vcfg, priorities)...)
		}
	}
	for _, num := range diff.ChangedPorts {
		pcfg, ok := newCfg.Ports[num]
		if !ok || !upBefore[num] {
			continue
		}
		msgs = append(msgs, addPortFlows(pcfg, newCfg, pipeline, priorities)...)
	}

	return newRT, msgs
}

func deletePortFlows(num int) []ofp.Message {
	return []ofp.Message{
		ofp.FlowMod{Table: ofp.TableVLAN, Match: ofp.Match{InPort: ofp.IntPtr(num)}, Command: ofp.FlowDelete},
		ofp.FlowMod{Table: ofp.TableFlood, Match: ofp.Match{InPort: ofp.IntPtr(num)}, Command: ofp.FlowDelete},
	}
}

func deleteVLANFlows(vid VID) []ofp.Message {
	return []ofp.Message{
		ofp.FlowMod{Table: ofp.TableVLAN, Match: ofp.Match{VID: ofp.VIDPtr(vid)}, Command: ofp.FlowDelete},
		ofp.FlowMod{Table: ofp.TableFlood, Match: ofp.Match{VID: ofp.VIDPtr(vid)}, Command: ofp.FlowDelete},
	}
}

func addVLANFlows(vcfg *VLANConfig, priorities Priorities) []ofp.Message {
	return []ofp.Message{
		ofp.FlowMod{
			Table:    ofp.TableVLAN,
			Priority: priorities.Lowest,
			Match:    ofp.Match{VID: ofp.VIDPtr(vcfg.VID)},
			Command:  ofp.FlowAdd,
		},
	}
}

func addPortFlows(pcfg *PortConfig, cfg *DPConfig, pipeline *Pipeline, priorities Priorities) []ofp.Message {
	var msgs []ofp.Message
	for vid, vcfg := range cfg.VLANs {
		if !pcfg.MemberOf(vid) {
			continue
		}
		msgs = append(msgs, ofp.FlowMod{
			Table:    ofp.TableVLAN,
			Priority: priorities.Medium,
			Match:    ofp.Match{InPort: ofp.IntPtr(pcfg.Number), VID: ofp.VIDPtr(vcfg.VID)},
			Instructions: []ofp.Instruction{
				ofp.ApplyActions{Actions: IngressVIDActions(pcfg, vcfg.VID)},
				ofp.GotoTable{Table: pipeline.ClassificationTable()},
			},
			Command: ofp.FlowAdd,
		})
	}
	return msgs
}
