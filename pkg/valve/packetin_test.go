package valve

import (
	"net"
	"testing"
)

func basePacketMeta() PacketMeta {
	return PacketMeta{
		Cookie: 1,
		Reason: ReasonAction,
		InPort: 1,
		EthSrc: mustMAC("02:00:00:00:00:01"),
		EthDst: mustMAC("02:00:00:00:00:02"),
	}
}

func alwaysKnownCookie(uint64) bool { return true }
func alwaysKnownVID(VID) bool       { return true }

func TestValidatePacketInAcceptsWellFormedPacket(t *testing.T) {
	pkt := basePacketMeta()
	port := &PortConfig{Number: 1}
	if r := ValidatePacketIn(pkt, alwaysKnownCookie, alwaysKnownVID, port, false); r != RejectNone {
		t.Fatalf("expected acceptance, got reject reason %v", r)
	}
}

func TestValidatePacketInRejectsUnknownCookie(t *testing.T) {
	pkt := basePacketMeta()
	port := &PortConfig{Number: 1}
	unknown := func(uint64) bool { return false }
	if r := ValidatePacketIn(pkt, unknown, alwaysKnownVID, port, false); r != RejectUnknownCookie {
		t.Fatalf("expected RejectUnknownCookie, got %v", r)
	}
}

func TestValidatePacketInRejectsNonActionReason(t *testing.T) {
	pkt := basePacketMeta()
	pkt.Reason = ReasonNoMatch
	port := &PortConfig{Number: 1}
	if r := ValidatePacketIn(pkt, alwaysKnownCookie, alwaysKnownVID, port, false); r != RejectNonAction {
		t.Fatalf("expected RejectNonAction, got %v", r)
	}
}

func TestValidatePacketInRejectsNilPort(t *testing.T) {
	pkt := basePacketMeta()
	if r := ValidatePacketIn(pkt, alwaysKnownCookie, alwaysKnownVID, nil, false); r != RejectNoInPort {
		t.Fatalf("expected RejectNoInPort, got %v", r)
	}
}

func TestValidatePacketInRejectsUnparseableHeaders(t *testing.T) {
	pkt := basePacketMeta()
	pkt.EthSrc = nil
	port := &PortConfig{Number: 1}
	if r := ValidatePacketIn(pkt, alwaysKnownCookie, alwaysKnownVID, port, false); r != RejectUnparseable {
		t.Fatalf("expected RejectUnparseable, got %v", r)
	}
}

func TestValidatePacketInRejectsUnknownVLAN(t *testing.T) {
	pkt := basePacketMeta()
	pkt.HasVID = true
	pkt.VID = 200
	port := &PortConfig{Number: 1}
	noVLANs := func(VID) bool { return false }
	if r := ValidatePacketIn(pkt, alwaysKnownCookie, noVLANs, port, false); r != RejectUnknownVLAN {
		t.Fatalf("expected RejectUnknownVLAN, got %v", r)
	}
}

func TestValidatePacketInRejectsNonUnicastSrc(t *testing.T) {
	pkt := basePacketMeta()
	pkt.EthSrc = mustMAC("03:00:00:00:00:01") // multicast bit set
	port := &PortConfig{Number: 1}
	if r := ValidatePacketIn(pkt, alwaysKnownCookie, alwaysKnownVID, port, false); r != RejectNonUnicastSrc {
		t.Fatalf("expected RejectNonUnicastSrc, got %v", r)
	}
}

func TestValidatePacketInRejectsZeroSrc(t *testing.T) {
	pkt := basePacketMeta()
	pkt.EthSrc = mustMAC("00:00:00:00:00:00")
	port := &PortConfig{Number: 1}
	if r := ValidatePacketIn(pkt, alwaysKnownCookie, alwaysKnownVID, port, false); r != RejectZeroSrc {
		t.Fatalf("expected RejectZeroSrc, got %v", r)
	}
}

func TestValidatePacketInRejectsTaggedTrafficOnStackPortUnlessGlobalVID(t *testing.T) {
	pkt := basePacketMeta()
	pkt.HasVID = true
	pkt.VID = 200
	port := &PortConfig{Number: 1, Stack: &StackPeer{DPName: "dp2", Port: 1}}

	if r := ValidatePacketIn(pkt, alwaysKnownCookie, alwaysKnownVID, port, true); r != RejectWrongStackPort {
		t.Fatalf("expected RejectWrongStackPort for non-global tagged traffic on a stack port, got %v", r)
	}
}

func TestValidatePacketInAcceptsGlobalVIDOnStackPort(t *testing.T) {
	pkt := basePacketMeta()
	pkt.HasVID = true
	pkt.VID = GlobalVID
	port := &PortConfig{Number: 1, Stack: &StackPeer{DPName: "dp2", Port: 1}}

	if r := ValidatePacketIn(pkt, alwaysKnownCookie, alwaysKnownVID, port, true); r != RejectNone {
		t.Fatalf("expected global-VID traffic on a stack port to be accepted, got %v", r)
	}
}

func TestValidatePacketInAcceptsUntaggedTrafficOnStackPort(t *testing.T) {
	pkt := basePacketMeta()
	port := &PortConfig{Number: 1, Stack: &StackPeer{DPName: "dp2", Port: 1}}

	if r := ValidatePacketIn(pkt, alwaysKnownCookie, alwaysKnownVID, port, true); r != RejectNone {
		t.Fatalf("expected untagged traffic on a stack port to be accepted, got %v", r)
	}
}

func TestDecodeGlobalVIDExtractsLowBitsFromDestMAC(t *testing.T) {
	dst := mustMAC("00:00:00:00:00:c8") // 0x00c8 = 200
	if vid := DecodeGlobalVID(dst); vid != 200 {
		t.Fatalf("expected VID 200, got %v", vid)
	}
}

func TestDecodeGlobalVIDReturnsNullForShortMAC(t *testing.T) {
	if vid := DecodeGlobalVID(net.HardwareAddr{0, 0}); vid != NullVID {
		t.Fatalf("expected NullVID for a malformed MAC, got %v", vid)
	}
}
