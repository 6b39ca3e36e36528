package valve

import (
	"net"
	"testing"
	"time"

	"github.com/l2fabric/valved/pkg/metrics"
	"github.com/l2fabric/valved/pkg/ofp"
)

func testRouteManagerV4() RouteManager {
	pipeline := NewPipeline(TableConfig{HasIPv4FIB: true, HasVIP: true})
	timeouts := DefaultTimeouts()
	timeouts.MaxHostsPerResolveCycle = 2
	timeouts.MaxResolveBackoffTime = 4 * time.Second
	timeouts.MaxHostFIBRetryCount = 3
	return NewRouteManagerV4("dp1", pipeline, DefaultPriorities(), timeouts, metrics.Noop{})
}

func mustCIDR(s string) net.IPNet {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	ipnet.IP = ip
	return *ipnet
}

func TestInstallVIPTargetsVIPTableAtHighPriority(t *testing.T) {
	rm := testRouteManagerV4()
	vlan := &VLANConfig{VID: 100}
	vip := mustCIDR("10.0.0.1/32")

	msgs := rm.InstallVIP(vlan, vip)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 flow, got %d", len(msgs))
	}
	fm := msgs[0].(ofp.FlowMod)
	if fm.Table != ofp.TableVIP {
		t.Fatalf("expected vip table, got %v", fm.Table)
	}
	if fm.Priority != DefaultPriorities().High {
		t.Fatalf("expected High priority, got %d", fm.Priority)
	}
}

func TestInstallRouteEncodesPrefixLengthIntoPriority(t *testing.T) {
	rm := testRouteManagerV4()
	vlan := &VLANConfig{VID: 100}
	mac := mustMAC("02:00:00:00:00:01")

	narrow := mustCIDR("10.0.0.0/24")
	wide := mustCIDR("10.0.0.0/16")

	nMsgs := rm.InstallRoute(vlan, narrow, mac, 1)
	wMsgs := rm.InstallRoute(vlan, wide, mac, 1)

	nPrio := nMsgs[0].(ofp.FlowMod).Priority
	wPrio := wMsgs[0].(ofp.FlowMod).Priority
	if nPrio <= wPrio {
		t.Fatalf("expected a /24 route to outrank a /16 route: /24=%d /16=%d", nPrio, wPrio)
	}
}

func TestResolveGatewaysRespectsTokenBucketBurst(t *testing.T) {
	rm := testRouteManagerV4()
	vlan := &VLANConfig{VID: 100}
	vlanRT := newVLANRuntime(0)
	now := time.Now()

	pending := []net.IP{
		net.ParseIP("10.0.0.2"),
		net.ParseIP("10.0.0.3"),
		net.ParseIP("10.0.0.4"),
	}
	msgs := rm.ResolveGateways(now, vlan, vlanRT, pending)
	if len(msgs) != 2 {
		t.Fatalf("expected burst of 2 resolution requests (MaxHostsPerResolveCycle=2), got %d", len(msgs))
	}
}

func TestResolveGatewaysSkipsAlreadyResolvedAndBackedOff(t *testing.T) {
	rm := testRouteManagerV4()
	vlan := &VLANConfig{VID: 100}
	vlanRT := newVLANRuntime(0)
	now := time.Now()

	resolvedIP := net.ParseIP("10.0.0.5")
	vlanRT.NeighborsV4.Put(&Neighbor{IP: resolvedIP, MAC: mustMAC("02:00:00:00:00:09")})

	backedOffIP := net.ParseIP("10.0.0.6")
	vlanRT.NeighborsV4.Put(&Neighbor{IP: backedOffIP, BackoffUntil: now.Add(time.Hour)})

	msgs := rm.ResolveGateways(now, vlan, vlanRT, []net.IP{resolvedIP, backedOffIP})
	if len(msgs) != 0 {
		t.Fatalf("expected no resolution requests for a resolved or backed-off neighbor, got %d", len(msgs))
	}
}

func TestResolveGatewaysStopsAtRetryCeiling(t *testing.T) {
	rm := testRouteManagerV4()
	vlan := &VLANConfig{VID: 100}
	vlanRT := newVLANRuntime(0)
	now := time.Now()
	ip := net.ParseIP("10.0.0.7")
	vlanRT.NeighborsV4.Put(&Neighbor{IP: ip, RetryCount: 3})

	msgs := rm.ResolveGateways(now, vlan, vlanRT, []net.IP{ip})
	if len(msgs) != 0 {
		t.Fatalf("expected no further resolution requests once RetryCount reaches MaxHostFIBRetryCount, got %d", len(msgs))
	}
}

func TestAdvertiseEmitsOneMessage(t *testing.T) {
	rm := testRouteManagerV4()
	vlan := &VLANConfig{VID: 100, FaucetVIPsV4: []net.IPNet{mustCIDR("10.0.0.1/24")}}
	msgs := rm.Advertise(time.Now(), vlan)
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one advertisement message, got %d", len(msgs))
	}
}

func TestExpireNeighborsRemovesStaleEntriesOnly(t *testing.T) {
	rm := testRouteManagerV4()
	vlan := &VLANConfig{VID: 100}
	vlanRT := newVLANRuntime(0)
	now := time.Now()

	stale := net.ParseIP("10.0.0.8")
	fresh := net.ParseIP("10.0.0.9")
	vlanRT.NeighborsV4.Put(&Neighbor{IP: stale, MAC: mustMAC("02:00:00:00:00:0a"), LastRefresh: now.Add(-3 * time.Hour)})
	vlanRT.NeighborsV4.Put(&Neighbor{IP: fresh, MAC: mustMAC("02:00:00:00:00:0b"), LastRefresh: now})

	rm.ExpireNeighbors(now, vlan, vlanRT)

	if _, ok := vlanRT.NeighborsV4.Get(stale); ok {
		t.Fatalf("expected the stale neighbor to be expired")
	}
	if _, ok := vlanRT.NeighborsV4.Get(fresh); !ok {
		t.Fatalf("did not expect the fresh neighbor to be expired")
	}
}

func TestLearnDirectHostInstallsHostRouteAndRefreshesNeighbor(t *testing.T) {
	rm := testRouteManagerV4()
	vlan := &VLANConfig{VID: 100}
	vlanRT := newVLANRuntime(0)
	now := time.Now()
	ip := net.ParseIP("10.0.0.10")
	mac := mustMAC("02:00:00:00:00:0c")

	msgs := rm.LearnDirectHost(now, vlan, vlanRT, ip, mac, 3)
	if len(msgs) != 1 {
		t.Fatalf("expected a single /32 FIB flow, got %d", len(msgs))
	}
	fm := msgs[0].(ofp.FlowMod)
	if fm.Match.IPv4Dst == nil || fm.Match.IPv4Dst.String() != "10.0.0.10/32" {
		t.Fatalf("expected a /32 match on the learned host, got %v", fm.Match.IPv4Dst)
	}
	if n, ok := vlanRT.NeighborsV4.Get(ip); !ok || n.Port != 3 {
		t.Fatalf("expected the neighbor cache to hold the learned host on port 3")
	}
}
