// route.go implements the shared logic of the per-IP-version Route
// Managers: VIP flows, FIB programming, neighbor resolution
// with a bounded token bucket and exponential backoff, proactive host
// learning, router advertisement, and neighbor expiry. route_v4.go and
// route_v6.go supply the version-specific bits (ARP vs ND, RA vs
// gratuitous ARP).
package valve

import (
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/l2fabric/valved/pkg/metrics"
	"github.com/l2fabric/valved/pkg/ofp"
)

// IPVersion selects IPv4 or IPv6 for a route manager.
type IPVersion int

const (
	IPv4 IPVersion = 4
	IPv6 IPVersion = 6
)

// protoOps supplies the few points where IPv4 and IPv6 route managers
// differ: which table they program, which ethertype they match, and how
// to emit a neighbor-resolution request / router advertisement.
type protoOps interface {
	version() IPVersion
	table() ofp.TableID
	ethType() uint16
	prefixBits(n net.IPNet) int
	resolutionRequest(vlan *VLANConfig, target net.IP) ofp.PacketOut
	advertisement(vlan *VLANConfig) ofp.PacketOut
}

// RouteManager is the per-IP-version FIB/neighbor manager contract.
type RouteManager interface {
	Version() IPVersion
	InstallVIP(vlan *VLANConfig, vip net.IPNet) []ofp.Message
	InstallRoute(vlan *VLANConfig, prefix net.IPNet, nextHopMAC net.HardwareAddr, outPort int) []ofp.Message
	DeleteRoute(vlan *VLANConfig, prefix net.IPNet) []ofp.Message
	ResolveGateways(now time.Time, vlan *VLANConfig, vlanRT *VLANRuntime, pendingIPs []net.IP) []ofp.Message
	Advertise(now time.Time, vlan *VLANConfig) []ofp.Message
	ExpireNeighbors(now time.Time, vlan *VLANConfig, vlanRT *VLANRuntime) []ofp.Message
	LearnDirectHost(now time.Time, vlan *VLANConfig, vlanRT *VLANRuntime, ip net.IP, mac net.HardwareAddr, port int) []ofp.Message
}

func neighborCacheFor(version IPVersion, vlanRT *VLANRuntime) *NeighborCache {
	if version == IPv6 {
		return vlanRT.NeighborsV6
	}
	return vlanRT.NeighborsV4
}

// baseRouteManager implements the common mechanics shared across IP
// versions, parametrized by protoOps for the version-specific pieces.
type baseRouteManager struct {
	dpName     string
	pipeline   *Pipeline
	priorities Priorities
	timeouts   TimeoutConfig
	metrics    metrics.Sink
	ops        protoOps

	limiter *rate.Limiter // max_hosts_per_resolve_cycle token bucket
}

func newBaseRouteManager(dpName string, pipeline *Pipeline, priorities Priorities, timeouts TimeoutConfig, m metrics.Sink, ops protoOps) *baseRouteManager {
	burst := timeouts.MaxHostsPerResolveCycle
	if burst <= 0 {
		burst = 1
	}
	return &baseRouteManager{
		dpName:     dpName,
		pipeline:   pipeline,
		priorities: priorities,
		timeouts:   timeouts,
		metrics:    m,
		ops:        ops,
		limiter:    rate.NewLimiter(rate.Every(time.Second), burst),
	}
}

func (b *baseRouteManager) Version() IPVersion { return b.ops.version() }

// InstallVIP installs a local-delivery-to-controller flow in the vip table
// for a virtual IP address owned by this VLAN.
func (b *baseRouteManager) InstallVIP(vlan *VLANConfig, vip net.IPNet) []ofp.Message {
	return []ofp.Message{
		ofp.FlowMod{
			Table:    ofp.TableVIP,
			Priority: b.priorities.High,
			Match:    b.ipMatch(vlan.VID, nil, &vip),
			Instructions: []ofp.Instruction{
				ofp.ApplyActions{Actions: []ofp.Action{ofp.Output{Port: ofp.PortController, MaxLen: 256}}},
			},
			Command: ofp.FlowAdd,
		},
	}
}

// InstallRoute installs a FIB entry whose priority encodes the prefix
// length for longest-prefix-match ordering.
func (b *baseRouteManager) InstallRoute(vlan *VLANConfig, prefix net.IPNet, nextHopMAC net.HardwareAddr, outPort int) []ofp.Message {
	ones := b.ops.prefixBits(prefix)
	return []ofp.Message{
		ofp.FlowMod{
			Table:    b.ops.table(),
			Priority: b.priorities.Low + ones,
			Match:    b.ipMatch(vlan.VID, nil, &prefix),
			Instructions: []ofp.Instruction{
				ofp.ApplyActions{Actions: []ofp.Action{
					ofp.SetField{Field: "eth_dst", Value: nextHopMAC.String()},
				}},
				ofp.GotoTable{Table: ofp.TableEthDst},
			},
			Command: ofp.FlowAdd,
		},
	}
}

// DeleteRoute removes a previously installed FIB entry.
func (b *baseRouteManager) DeleteRoute(vlan *VLANConfig, prefix net.IPNet) []ofp.Message {
	return []ofp.Message{
		ofp.FlowMod{
			Table:   b.ops.table(),
			Match:   b.ipMatch(vlan.VID, nil, &prefix),
			Command: ofp.FlowDeleteStrict,
		},
	}
}

func (b *baseRouteManager) ipMatch(vid VID, _ *net.IP, ipnet *net.IPNet) ofp.Match {
	m := ofp.Match{VID: ofp.VIDPtr(vid), EthType: ofp.EthTypePtr(b.ops.ethType())}
	if b.ops.version() == IPv6 {
		m.IPv6Dst = ipnet
	} else {
		m.IPv4Dst = ipnet
	}
	return m
}

// ResolveGateways resolves pendingIPs' next hops, bounded by a token
// bucket of max_hosts_per_resolve_cycle requests per cycle, with
// exponential backoff up to max_resolve_backoff_time and a retry ceiling
// of max_host_fib_retry_count.
func (b *baseRouteManager) ResolveGateways(now time.Time, vlan *VLANConfig, vlanRT *VLANRuntime, pendingIPs []net.IP) []ofp.Message {
	cache := neighborCacheFor(b.ops.version(), vlanRT)
	var msgs []ofp.Message
	for _, ip := range pendingIPs {
		n, ok := cache.Get(ip)
		if !ok {
			n = &Neighbor{IP: ip}
			cache.Put(n)
		}
		if n.MAC != nil {
			continue // already resolved
		}
		if now.Before(n.BackoffUntil) {
			continue
		}
		if n.RetryCount >= b.timeouts.MaxHostFIBRetryCount {
			continue
		}
		if !b.limiter.AllowN(now, 1) {
			break // cycle's resolve budget exhausted
		}
		n.RetryCount++
		backoff := time.Duration(1<<uint(n.RetryCount)) * time.Second
		if backoff > b.timeouts.MaxResolveBackoffTime {
			backoff = b.timeouts.MaxResolveBackoffTime
		}
		n.BackoffUntil = now.Add(backoff)
		msgs = append(msgs, b.ops.resolutionRequest(vlan, ip))
	}
	return msgs
}

// Advertise emits this VLAN's periodic router advertisement (IPv6 RA, or
// gratuitous ARP for IPv4 when configured).
func (b *baseRouteManager) Advertise(now time.Time, vlan *VLANConfig) []ofp.Message {
	return []ofp.Message{b.ops.advertisement(vlan)}
}

// ExpireNeighbors deletes neighbor cache entries (and their FIB next-hop
// rewrite, if any) that have not refreshed within neighbor_timeout.
func (b *baseRouteManager) ExpireNeighbors(now time.Time, vlan *VLANConfig, vlanRT *VLANRuntime) []ofp.Message {
	if b.timeouts.NeighborTimeout <= 0 {
		return nil
	}
	cache := neighborCacheFor(b.ops.version(), vlanRT)
	cutoff := now.Add(-b.timeouts.NeighborTimeout)
	var msgs []ofp.Message
	for _, n := range cache.All() {
		if n.LastRefresh.IsZero() || n.LastRefresh.After(cutoff) {
			continue
		}
		one := net.IPNet{IP: n.IP, Mask: hostMask(n.IP)}
		msgs = append(msgs, b.DeleteRoute(vlan, one)...)
		cache.Delete(n.IP)
		b.metrics.VLANNeighbors(b.dpName, int(vlan.VID), int(b.ops.version()), cache.Len())
	}
	return msgs
}

// LearnDirectHost proactively learns a host on a directly connected
// subnet as a /32 or /128 FIB route, refreshing its neighbor entry.
func (b *baseRouteManager) LearnDirectHost(now time.Time, vlan *VLANConfig, vlanRT *VLANRuntime, ip net.IP, mac net.HardwareAddr, port int) []ofp.Message {
	cache := neighborCacheFor(b.ops.version(), vlanRT)
	cache.Put(&Neighbor{IP: ip, MAC: mac, Port: port, LastRefresh: now})
	b.metrics.VLANNeighbors(b.dpName, int(vlan.VID), int(b.ops.version()), cache.Len())

	one := net.IPNet{IP: ip, Mask: hostMask(ip)}
	return b.InstallRoute(vlan, one, mac, port)
}

func hostMask(ip net.IP) net.IPMask {
	if ip.To4() != nil {
		return net.CIDRMask(32, 32)
	}
	return net.CIDRMask(128, 128)
}
