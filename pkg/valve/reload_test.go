package valve

import (
	"testing"

	"github.com/l2fabric/valved/pkg/ofp"
)

func baseConfigForDiff() *DPConfig {
	return &DPConfig{
		Name: "dp1",
		Ports: map[int]*PortConfig{
			1: {Number: 1, NativeVLAN: 100},
			2: {Number: 2, NativeVLAN: 100},
		},
		VLANs: map[VID]*VLANConfig{
			100: {VID: 100},
		},
		Tables: TableConfig{},
	}
}

func TestDiffConfigNoChange(t *testing.T) {
	old := baseConfigForDiff()
	next := baseConfigForDiff()
	d := DiffConfig(old, next)
	if d.PipelineChanged || d.AllPortsChanged {
		t.Fatalf("expected no structural change for an identical config, got %+v", d)
	}
	if len(d.ChangedPorts) != 0 || len(d.DeletedPorts) != 0 || len(d.ChangedVIDs) != 0 {
		t.Fatalf("expected an empty diff, got %+v", d)
	}
}

func TestDiffConfigTableChangeSetsPipelineChanged(t *testing.T) {
	old := baseConfigForDiff()
	next := baseConfigForDiff()
	next.Tables.HasIPv4FIB = true
	d := DiffConfig(old, next)
	if !d.PipelineChanged {
		t.Fatalf("expected a table-set change to be flagged PipelineChanged")
	}
}

func TestDiffConfigDetectsDeletedAndChangedPorts(t *testing.T) {
	old := baseConfigForDiff()
	next := baseConfigForDiff()
	delete(next.Ports, 2)
	next.Ports[1] = &PortConfig{Number: 1, NativeVLAN: 200}

	d := DiffConfig(old, next)
	if len(d.DeletedPorts) != 1 || d.DeletedPorts[0] != 2 {
		t.Fatalf("expected port 2 deleted, got %+v", d.DeletedPorts)
	}
	if len(d.ChangedPorts) != 1 || d.ChangedPorts[0] != 1 {
		t.Fatalf("expected port 1 changed, got %+v", d.ChangedPorts)
	}
}

func TestDiffConfigAllPortsChangedWhenEverySurvivingPortIsNew(t *testing.T) {
	old := &DPConfig{Ports: map[int]*PortConfig{1: {Number: 1, NativeVLAN: 100}}, VLANs: map[VID]*VLANConfig{}}
	next := &DPConfig{Ports: map[int]*PortConfig{2: {Number: 2, NativeVLAN: 100}}, VLANs: map[VID]*VLANConfig{}}
	d := DiffConfig(old, next)
	if !d.AllPortsChanged {
		t.Fatalf("expected AllPortsChanged when no old port survives into the new config")
	}
}

func TestDiffConfigACLOnlyChangeIsSeparateFromStructuralChange(t *testing.T) {
	old := baseConfigForDiff()
	next := baseConfigForDiff()
	next.Ports[1] = &PortConfig{Number: 1, NativeVLAN: 100, ACLsIn: []string{"acl_b"}}

	d := DiffConfig(old, next)
	if len(d.ChangedPorts) != 0 {
		t.Fatalf("expected no structural port change for an ACL-only edit, got %+v", d.ChangedPorts)
	}
	if len(d.ChangedACLPorts) != 1 || d.ChangedACLPorts[0] != 1 {
		t.Fatalf("expected port 1 in ChangedACLPorts, got %+v", d.ChangedACLPorts)
	}
}

func TestReconcileDeletesRemovedPortsAndVLANsBeforeReadding(t *testing.T) {
	oldCfg := baseConfigForDiff()
	newCfg := baseConfigForDiff()
	delete(newCfg.Ports, 2)
	newCfg.Ports[1] = &PortConfig{Number: 1, NativeVLAN: 100, TaggedVLANs: []VID{200}}

	diff := DiffConfig(oldCfg, newCfg)
	oldRT := NewDPRuntime()
	oldRT.EnsureRuntime(oldCfg)
	oldRT.UpPorts = map[int]bool{1: true, 2: true}

	pipeline := NewPipeline(TableConfig{})
	_, msgs := Reconcile(diff, oldCfg, newCfg, oldRT, pipeline, DefaultPriorities(), oldRT.UpPorts)

	// port 2's delete flows must precede port 1's re-add flows.
	deleteIdx, addIdx := -1, -1
	for i, m := range msgs {
		fm, ok := m.(ofp.FlowMod)
		if !ok {
			continue
		}
		if fm.Command == ofp.FlowDelete && fm.Match.InPort != nil && *fm.Match.InPort == 2 && deleteIdx == -1 {
			deleteIdx = i
		}
		if fm.Command == ofp.FlowAdd && fm.Match.InPort != nil && *fm.Match.InPort == 1 && addIdx == -1 {
			addIdx = i
		}
	}
	if deleteIdx == -1 || addIdx == -1 {
		t.Fatalf("expected both a delete for port 2 and an add for port 1, got %#v", msgs)
	}
	if deleteIdx > addIdx {
		t.Fatalf("expected delete(s) to precede re-add(s): deleteIdx=%d addIdx=%d", deleteIdx, addIdx)
	}
}

func TestReconcileOnlyReaddsPortsPreviouslyUp(t *testing.T) {
	oldCfg := baseConfigForDiff()
	newCfg := baseConfigForDiff()
	newCfg.Ports[1] = &PortConfig{Number: 1, NativeVLAN: 100, TaggedVLANs: []VID{200}}

	diff := DiffConfig(oldCfg, newCfg)
	oldRT := NewDPRuntime()
	oldRT.EnsureRuntime(oldCfg)
	upBefore := map[int]bool{2: true} // port 1 was down before reload

	pipeline := NewPipeline(TableConfig{})
	_, msgs := Reconcile(diff, oldCfg, newCfg, oldRT, pipeline, DefaultPriorities(), upBefore)

	for _, m := range msgs {
		fm, ok := m.(ofp.FlowMod)
		if ok && fm.Command == ofp.FlowAdd && fm.Match.InPort != nil && *fm.Match.InPort == 1 {
			t.Fatalf("did not expect port 1 to be re-added: it was not up before the reload")
		}
	}
}

func TestReconcilePreservesHostCacheAcrossWarmReload(t *testing.T) {
	oldCfg := baseConfigForDiff()
	newCfg := baseConfigForDiff()
	newCfg.Ports[1] = &PortConfig{Number: 1, NativeVLAN: 100, ACLsIn: []string{"y"}}

	diff := DiffConfig(oldCfg, newCfg)
	oldRT := NewDPRuntime()
	oldRT.EnsureRuntime(oldCfg)
	oldRT.VLANs[100].Hosts.Put(&HostEntry{MAC: "02:00:00:00:00:01", Port: 1})

	pipeline := NewPipeline(TableConfig{})
	newRT, _ := Reconcile(diff, oldCfg, newCfg, oldRT, pipeline, DefaultPriorities(), map[int]bool{1: true, 2: true})

	if newRT.VLANs[100].Hosts.Len() != 1 {
		t.Fatalf("expected the host cache to survive a warm reload with unchanged port identity")
	}
}
