// packetin.go implements packet-in validation and dispatch. PacketMeta is a
// pre-parsed, high-level view of a packet-in: byte-level header parsing is
// an external collaborator's job — the shim hands the core an
// already-decoded PacketMeta.
package valve

import (
	"net"
)

// PacketReason classifies why the packet reached the controller, mirroring
// the OpenFlow packet-in reason plus the controller's own ACTION-only
// acceptance policy.
type PacketReason int

const (
	ReasonAction PacketReason = iota
	ReasonNoMatch
	ReasonInvalidTTL
)

// PacketMeta is the pre-parsed packet-in payload handed to rcv_packet.
type PacketMeta struct {
	Cookie  uint64
	Reason  PacketReason
	InPort  int
	VID     VID // NullVID if untagged
	HasVID  bool

	EthSrc net.HardwareAddr
	EthDst net.HardwareAddr
	EthType uint16

	// LACP/LLDP payloads, populated when EthType indicates the
	// corresponding protocol; nil otherwise.
	LACP *LACPPDU
	LLDP *LLDPProbe

	// IP header fields, populated when EthType is IPv4/IPv6.
	SrcIP net.IP
	DstIP net.IP
}

// LLDPProbe is a parsed stack-probe LLDP frame's relevant fields.
type LLDPProbe struct {
	RemoteDPID   uint64
	RemoteDPName string
	RemotePortID int
}

// RejectReason names why a packet-in was dropped at validation, each
// counted toward a metric.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectUnknownCookie
	RejectNonAction
	RejectNoInPort
	RejectUnparseable
	RejectUnknownVLAN
	RejectNonUnicastSrc
	RejectZeroSrc
	RejectWrongStackPort
)

// ValidatePacketIn applies the controller's one-line packet-in rejection
// rules in order. knownCookie and knownVID let the caller plug in the DP's
// own cookie/VLAN set without this package depending on the reload path.
func ValidatePacketIn(pkt PacketMeta, knownCookie func(uint64) bool, knownVID func(VID) bool, port *PortConfig, isStackPort bool) RejectReason {
	if knownCookie != nil && !knownCookie(pkt.Cookie) {
		return RejectUnknownCookie
	}
	if pkt.Reason != ReasonAction {
		return RejectNonAction
	}
	if port == nil {
		return RejectNoInPort
	}
	if pkt.EthSrc == nil || pkt.EthDst == nil {
		return RejectUnparseable
	}
	if pkt.HasVID && knownVID != nil && !knownVID(pkt.VID) {
		return RejectUnknownVLAN
	}
	if len(pkt.EthSrc) > 0 && pkt.EthSrc[0]&0x01 != 0 {
		return RejectNonUnicastSrc
	}
	if isAllZero(pkt.EthSrc) {
		return RejectZeroSrc
	}
	// A stack port only ever legitimately punts tagged traffic that carries
	// the internal global VID (inter-DP routed traffic); any other tagged
	// packet-in from a stack port indicates a misconfigured or mis-cabled
	// link.
	if isStackPort && pkt.HasVID && pkt.VID != GlobalVID {
		return RejectWrongStackPort
	}
	return RejectNone
}

func isAllZero(mac net.HardwareAddr) bool {
	if len(mac) == 0 {
		return false
	}
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}

// DecodeGlobalVID extracts the true VID encoded in a global-VLAN packet's
// destination MAC low bits.
func DecodeGlobalVID(dst net.HardwareAddr) VID {
	if len(dst) != 6 {
		return NullVID
	}
	return VID(uint16(dst[4])<<8|uint16(dst[5])) & 0x0FFF
}
