package valve

import (
	"net"

	"github.com/l2fabric/valved/pkg/metrics"
	"github.com/l2fabric/valved/pkg/ofp"
)

// routeV4Ops supplies the IPv4-specific protoOps for NewRouteManagerV4:
// ARP requests for resolution, gratuitous ARP for advertisement.
type routeV4Ops struct{}

func (routeV4Ops) version() IPVersion     { return IPv4 }
func (routeV4Ops) table() ofp.TableID     { return ofp.TableIPv4FIB }
func (routeV4Ops) ethType() uint16        { return ofp.EthTypeIPv4 }
func (routeV4Ops) prefixBits(n net.IPNet) int {
	ones, _ := n.Mask.Size()
	return ones
}

// resolutionRequest builds an ARP-request packet-out flooded on the VLAN
// asking who-has target. The ARP payload itself is left for the
// punt/reinject collaborator that owns wire encoding; Data
// carries only the resolution target so a test or demo harness can
// assert on intent without a real ARP codec.
func (routeV4Ops) resolutionRequest(vlan *VLANConfig, target net.IP) ofp.PacketOut {
	return ofp.PacketOut{
		InPort:  ofp.PortController,
		Data:    []byte("arp-request:" + target.String()),
		Actions: []ofp.Action{ofp.Output{Port: ofp.PortFlood}},
	}
}

// advertisement builds a gratuitous-ARP packet-out for vlan's first v4 VIP,
// honoring the datapath's gratuitous_arp toggle at the caller.
func (routeV4Ops) advertisement(vlan *VLANConfig) ofp.PacketOut {
	var vip net.IP
	if len(vlan.FaucetVIPsV4) > 0 {
		vip = vlan.FaucetVIPsV4[0].IP
	}
	return ofp.PacketOut{
		InPort:  ofp.PortController,
		Data:    []byte("gratuitous-arp:" + vip.String()),
		Actions: []ofp.Action{ofp.Output{Port: ofp.PortFlood}},
	}
}

// NewRouteManagerV4 builds the IPv4 Route Manager for one datapath.
func NewRouteManagerV4(dpName string, pipeline *Pipeline, priorities Priorities, timeouts TimeoutConfig, m metrics.Sink) RouteManager {
	return newBaseRouteManager(dpName, pipeline, priorities, timeouts, m, routeV4Ops{})
}
