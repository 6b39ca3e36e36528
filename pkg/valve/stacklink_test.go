package valve

import (
	"testing"
	"time"

	"github.com/l2fabric/valved/pkg/metrics"
)

func testStackLinkEngine() *StackLinkEngine {
	return NewStackLinkEngine("dp1", metrics.Noop{})
}

func TestStackLinkNeverProbedGoesToInit(t *testing.T) {
	e := testStackLinkEngine()
	port := &PortConfig{Number: 1, Stack: &StackPeer{DPName: "dp2", Port: 1}}
	rt := newPortRuntime()

	tr := e.Evaluate(time.Now(), port, rt, time.Second, 3)
	if !tr.Changed || tr.New != StackInit {
		t.Fatalf("expected a never-probed DOWN port to move to INIT, got %v", tr)
	}
}

func TestStackLinkGoesUpOnRecentCorrectProbe(t *testing.T) {
	e := testStackLinkEngine()
	port := &PortConfig{Number: 1, Stack: &StackPeer{DPName: "dp2", Port: 1}}
	rt := newPortRuntime()
	now := time.Now()
	e.ReceiveProbe(now, port, rt, 2, "dp2", 1)

	tr := e.Evaluate(now, port, rt, time.Second, 3)
	if !tr.Changed || tr.New != StackUp {
		t.Fatalf("expected UP after a recent correct probe, got %v", tr)
	}
}

func TestStackLinkCablingMismatchGoesDown(t *testing.T) {
	e := testStackLinkEngine()
	port := &PortConfig{Number: 1, Stack: &StackPeer{DPName: "dp2", Port: 1}}
	rt := newPortRuntime()
	now := time.Now()
	// First bring it up so the DOWN transition below is a change.
	e.ReceiveProbe(now, port, rt, 2, "dp2", 1)
	e.Evaluate(now, port, rt, time.Second, 3)

	// Wrong remote port id: mismatch.
	e.ReceiveProbe(now.Add(time.Second), port, rt, 2, "dp2", 99)
	tr := e.Evaluate(now.Add(time.Second), port, rt, time.Second, 3)
	if !tr.Changed || tr.New != StackDown {
		t.Fatalf("expected cabling mismatch to force DOWN, got %v", tr)
	}
}

func TestStackLinkTimesOutAfterMaxLLDPLost(t *testing.T) {
	e := testStackLinkEngine()
	port := &PortConfig{Number: 1, Stack: &StackPeer{DPName: "dp2", Port: 1}}
	rt := newPortRuntime()
	now := time.Now()
	e.ReceiveProbe(now, port, rt, 2, "dp2", 1)
	e.Evaluate(now, port, rt, time.Second, 3)

	tr := e.Evaluate(now.Add(4*time.Second), port, rt, time.Second, 3)
	if !tr.Changed || tr.New != StackDown {
		t.Fatalf("expected timeout (>= max_lldp_lost intervals since last probe) to force DOWN, got %v", tr)
	}
}

func TestStackLinkNoChangeWhenSteadyUp(t *testing.T) {
	e := testStackLinkEngine()
	port := &PortConfig{Number: 1, Stack: &StackPeer{DPName: "dp2", Port: 1}}
	rt := newPortRuntime()
	now := time.Now()
	e.ReceiveProbe(now, port, rt, 2, "dp2", 1)
	e.Evaluate(now, port, rt, time.Second, 3)

	e.ReceiveProbe(now.Add(time.Second), port, rt, 2, "dp2", 1)
	tr := e.Evaluate(now.Add(time.Second), port, rt, time.Second, 3)
	if tr.Changed {
		t.Fatalf("expected no further transition while probes stay recent and correct, got %v", tr)
	}
}
