package valve

import (
	"testing"
	"time"

	"github.com/l2fabric/valved/pkg/metrics"
	"github.com/l2fabric/valved/pkg/ofp"
)

func testLACPEngine(timeouts TimeoutConfig) *LACPEngine {
	pipeline := NewPipeline(TableConfig{})
	return NewLACPEngine("dp1", pipeline, DefaultPriorities(), timeouts, metrics.Noop{})
}

func TestLACPReceivePDUBringsPortUp(t *testing.T) {
	e := testLACPEngine(DefaultTimeouts())
	port := &PortConfig{Number: 1, NativeVLAN: 100, LACP: &LACPConfig{BundleID: 1}}
	vlans := []*VLANConfig{{VID: 100}}
	rt := newPortRuntime()
	now := time.Now()

	pdu := LACPPDU{ActorSystem: "00:00:00:00:00:01", Synchronization: true, Collecting: true, Distributing: true}
	flows, reply := e.ReceivePDU(now, port, rt, vlans, map[int]bool{1: true}, pdu)

	if rt.LACPState != LACPUp {
		t.Fatalf("expected port to transition to UP")
	}
	if !reply {
		t.Fatalf("expected a reply on the transitioning PDU")
	}
	if len(flows) == 0 {
		t.Fatalf("expected flood-membership flows on UP transition")
	}
}

func TestLACPReceivePDUBringsPortDownOnLossOfSync(t *testing.T) {
	e := testLACPEngine(DefaultTimeouts())
	port := &PortConfig{Number: 1, NativeVLAN: 100, LACP: &LACPConfig{BundleID: 1}}
	vlans := []*VLANConfig{{VID: 100}}
	rt := newPortRuntime()
	now := time.Now()
	up := map[int]bool{1: true}

	upPDU := LACPPDU{ActorSystem: "sysA", Synchronization: true, Collecting: true, Distributing: true}
	e.ReceivePDU(now, port, rt, vlans, up, upPDU)

	downPDU := LACPPDU{ActorSystem: "sysA", Synchronization: false}
	flows, reply := e.ReceivePDU(now.Add(time.Second), port, rt, vlans, up, downPDU)
	if rt.LACPState != LACPDown {
		t.Fatalf("expected port to transition to DOWN")
	}
	if !reply {
		t.Fatalf("expected a reply on the DOWN transition")
	}
	foundDrop := false
	for _, m := range flows {
		if fm, ok := m.(ofp.FlowMod); ok && fm.Priority == e.priorities.High {
			foundDrop = true
		}
	}
	if !foundDrop {
		t.Fatalf("expected an input-drop flow on DOWN, got %#v", flows)
	}
}

func TestLACPReplySuppressedByPassthrough(t *testing.T) {
	e := testLACPEngine(DefaultTimeouts())
	port := &PortConfig{Number: 1, NativeVLAN: 100, LACP: &LACPConfig{BundleID: 1, Passthrough: []int{2}}}
	vlans := []*VLANConfig{{VID: 100}}
	rt := newPortRuntime()
	now := time.Now()

	pdu := LACPPDU{ActorSystem: "sysA", Synchronization: true, Collecting: true, Distributing: true}
	_, reply := e.ReceivePDU(now, port, rt, vlans, map[int]bool{1: true, 2: false}, pdu)
	if reply {
		t.Fatalf("expected reply to be suppressed while passthrough peer port 2 is down")
	}
}

func TestLACPExpireStaleForcesDown(t *testing.T) {
	timeouts := DefaultTimeouts()
	timeouts.LACPTimeout = 5 * time.Second
	e := testLACPEngine(timeouts)
	port := &PortConfig{Number: 1, NativeVLAN: 100, LACP: &LACPConfig{BundleID: 1}}
	rt := newPortRuntime()
	rt.LACPState = LACPUp
	now := time.Now()
	rt.LastLACPPacket = now

	msgs := e.ExpireStale(now.Add(3*time.Second), []*PortConfig{port}, map[int]*PortRuntime{1: rt})
	if len(msgs) != 0 {
		t.Fatalf("expected no expiry before lacp_timeout elapses, got %d", len(msgs))
	}

	msgs = e.ExpireStale(now.Add(10*time.Second), []*PortConfig{port}, map[int]*PortRuntime{1: rt})
	if rt.LACPState != LACPDown {
		t.Fatalf("expected port forced DOWN after lacp_timeout")
	}
	if len(msgs) == 0 {
		t.Fatalf("expected DOWN flows emitted on timeout expiry")
	}
}

func TestLACPForwarding(t *testing.T) {
	cases := []struct {
		isStacked, isRoot, want bool
	}{
		{false, false, true},
		{false, true, true},
		{true, true, true},
		{true, false, false},
	}
	for _, c := range cases {
		if got := Forwarding(c.isStacked, c.isRoot); got != c.want {
			t.Errorf("Forwarding(%v, %v) = %v, want %v", c.isStacked, c.isRoot, got, c.want)
		}
	}
}

func TestLACPActorSystemMismatchLogsButDoesNotPreventTransition(t *testing.T) {
	e := testLACPEngine(DefaultTimeouts())
	port := &PortConfig{Number: 1, NativeVLAN: 100, LACP: &LACPConfig{BundleID: 1}}
	vlans := []*VLANConfig{{VID: 100}}
	rt := newPortRuntime()
	rt.LACPActorSystem = "sysA"
	now := time.Now()

	pdu := LACPPDU{ActorSystem: "sysB", Synchronization: true, Collecting: true, Distributing: true}
	_, _ = e.ReceivePDU(now, port, rt, vlans, map[int]bool{1: true}, pdu)
	if rt.LACPState != LACPUp {
		t.Fatalf("expected mismatch to still be logged and transition processed")
	}
	if rt.LACPActorSystem != "sysB" {
		t.Fatalf("expected actor system to be updated to the latest PDU's value")
	}
}
