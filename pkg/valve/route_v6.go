package valve

import (
	"net"

	"github.com/l2fabric/valved/pkg/metrics"
	"github.com/l2fabric/valved/pkg/ofp"
)

// routeV6Ops supplies the IPv6-specific protoOps for NewRouteManagerV6:
// neighbor-solicitation requests for resolution, router advertisement for
// advertisement.
type routeV6Ops struct{}

func (routeV6Ops) version() IPVersion { return IPv6 }
func (routeV6Ops) table() ofp.TableID { return ofp.TableIPv6FIB }
func (routeV6Ops) ethType() uint16    { return ofp.EthTypeIPv6 }
func (routeV6Ops) prefixBits(n net.IPNet) int {
	ones, _ := n.Mask.Size()
	return ones
}

// resolutionRequest builds a neighbor-solicitation packet-out for target,
// left as an intent marker: actual Ethernet/ICMPv6 framing is the
// transport layer's job, not this package's.
func (routeV6Ops) resolutionRequest(vlan *VLANConfig, target net.IP) ofp.PacketOut {
	return ofp.PacketOut{
		InPort:  ofp.PortController,
		Data:    []byte("ns:" + target.String()),
		Actions: []ofp.Action{ofp.Output{Port: ofp.PortFlood}},
	}
}

// advertisement builds a router-advertisement packet-out for vlan.
func (routeV6Ops) advertisement(vlan *VLANConfig) ofp.PacketOut {
	var vip net.IP
	if len(vlan.FaucetVIPsV6) > 0 {
		vip = vlan.FaucetVIPsV6[0].IP
	}
	return ofp.PacketOut{
		InPort:  ofp.PortController,
		Data:    []byte("ra:" + vip.String()),
		Actions: []ofp.Action{ofp.Output{Port: ofp.PortFlood}},
	}
}

// NewRouteManagerV6 builds the IPv6 Route Manager for one datapath.
func NewRouteManagerV6(dpName string, pipeline *Pipeline, priorities Priorities, timeouts TimeoutConfig, m metrics.Sink) RouteManager {
	return newBaseRouteManager(dpName, pipeline, priorities, timeouts, m, routeV6Ops{})
}
