package ofp

import "testing"

func TestReorderDeletesBeforeAdds(t *testing.T) {
	msgs := []Message{
		FlowMod{Table: TableEthSrc, Command: FlowAdd},
		FlowMod{Table: TableEthSrc, Command: FlowDelete},
	}
	out := Reorder(msgs, Traits{}, false)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	fm, ok := out[0].(FlowMod)
	if !ok || fm.Command != FlowDelete {
		t.Fatalf("expected delete first, got %#v", out[0])
	}
}

func TestReorderTableFeaturesFirstOnColdStart(t *testing.T) {
	msgs := []Message{
		FlowMod{Table: TableVLAN, Command: FlowAdd},
		TableFeatures{Tables: []TableFeature{{Table: TableVLAN}}},
	}
	out := Reorder(msgs, Traits{}, true)
	if _, ok := out[0].(TableFeatures); !ok {
		t.Fatalf("expected table-features first, got %#v", out[0])
	}
}

func TestReorderInsertsBarrierWhenConfigured(t *testing.T) {
	msgs := []Message{
		FlowMod{Table: TableVLAN, Command: FlowAdd},
		FlowMod{Table: TableVLAN, Command: FlowDelete},
	}
	out := Reorder(msgs, Traits{UseBarriers: true}, false)
	found := false
	for _, m := range out {
		if _, ok := m.(Barrier); ok {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a barrier between deletes and adds, got %#v", out)
	}
}

func TestReorderArubaFlushesGroupsFirstOnColdStart(t *testing.T) {
	msgs := []Message{
		GroupMod{GroupID: 1, Command: GroupDeleteCmd},
		FlowMod{Table: TableVLAN, Command: FlowAdd},
	}
	out := Reorder(msgs, Traits{DeleteAllGroupsOnColdStart: true}, true)
	if _, ok := out[0].(GroupMod); !ok {
		t.Fatalf("expected group flush first on Aruba cold start, got %#v", out[0])
	}
}
