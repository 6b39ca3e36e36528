package stack

import "testing"

func TestShortestPathToRootLinear(t *testing.T) {
	topo := NewTopology("dp3")
	topo.AddLink("dp1", 1, "dp2", 1)
	topo.AddLink("dp2", 2, "dp3", 1)

	path, ok := topo.ShortestPathToRoot("dp1")
	if !ok {
		t.Fatal("expected a path")
	}
	want := []string{"dp1", "dp2", "dp3"}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}
}

func TestShortestPathPort(t *testing.T) {
	topo := NewTopology("dp3")
	topo.AddLink("dp1", 1, "dp2", 1)
	topo.AddLink("dp2", 2, "dp3", 1)

	port, ok := topo.ShortestPathPort("dp1")
	if !ok || port != 1 {
		t.Fatalf("ShortestPathPort(dp1) = %d,%v want 1,true", port, ok)
	}
	if _, ok := topo.ShortestPathPort("dp3"); ok {
		t.Fatal("root should have no shortest-path-port")
	}
}

func TestRemoveLinkBreaksPath(t *testing.T) {
	topo := NewTopology("dp2")
	topo.AddLink("dp1", 1, "dp2", 1)
	topo.RemoveLink("dp1", 1)
	if _, ok := topo.ShortestPathToRoot("dp1"); ok {
		t.Fatal("expected no path after link removal")
	}
}

func TestIsRoot(t *testing.T) {
	topo := NewTopology("dp1")
	if !topo.IsRoot("dp1") {
		t.Fatal("expected dp1 to be root")
	}
	if topo.IsRoot("dp2") {
		t.Fatal("expected dp2 to not be root")
	}
}
