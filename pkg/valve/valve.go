// valve.go implements the Valve Core: lifecycle, event
// dispatch, config reconciliation, packet-in routing, and cross-valve
// coordination. It composes the Route/Host/Flood/ACL/LACP/Stack managers
// and returns a per-peer ordered OpenFlow batch.
package valve

import (
	"fmt"
	"net"
	"time"

	"github.com/l2fabric/valved/internal/ofpctl/errorkit"
	"github.com/l2fabric/valved/internal/ofpctl/log"
	"github.com/l2fabric/valved/pkg/metrics"
	"github.com/l2fabric/valved/pkg/notify"
	"github.com/l2fabric/valved/pkg/ofp"
)

// OFMsgMap is the per-peer batched output every dispatch operation returns.
type OFMsgMap map[string][]ofp.Message

func (m OFMsgMap) addSelf(dp string, msgs ...ofp.Message) {
	if len(msgs) == 0 {
		return
	}
	m[dp] = append(m[dp], msgs...)
}

// Peer is the subset of a remote Valve's structure this Valve's stack
// fan-out and multi-DP learning are allowed to read.
type Peer interface {
	Name() string
	RcvPacketLocal(now time.Time, pkt PacketMeta) OFMsgMap
	RecomputeStackState(now time.Time, force bool) OFMsgMap
}

// Valve is the per-datapath controller object.
type Valve struct {
	cfg *DPConfig
	rt  *DPRuntime

	pipeline *Pipeline
	hosts    *HostManager
	routeV4  RouteManager
	routeV6  RouteManager
	flood    FloodManager
	acls     *ACLManager
	lacp     *LACPEngine
	stack    *StackLinkEngine

	metrics  metrics.Sink
	notifier notify.Sink

	traits ofp.Traits

	recentOFErrors []oferrorRecord
	lastRateReset  time.Time
	rateCounter    int
}

type oferrorRecord struct {
	xid     uint32
	msgType int
	code    int
}

const oferrorRingSize = 32

// Name returns the datapath name (implements Peer).
func (v *Valve) Name() string { return v.cfg.Name }

// NewValve constructs a Valve for cfg, with an empty runtime (first
// connect).
func NewValve(cfg *DPConfig, flood FloodManager, acls *ACLManager, m metrics.Sink, n notify.Sink) *Valve {
	pipeline := NewPipeline(cfg.Tables)
	priorities := DefaultPriorities()
	v := &Valve{
		cfg:      cfg,
		rt:       NewDPRuntime(),
		pipeline: pipeline,
		hosts:    NewHostManager(cfg.Name, pipeline, priorities, cfg.Timeouts, m, n),
		routeV4:  NewRouteManagerV4(cfg.Name, pipeline, priorities, cfg.Timeouts, m),
		routeV6:  NewRouteManagerV6(cfg.Name, pipeline, priorities, cfg.Timeouts, m),
		flood:    flood,
		acls:     acls,
		lacp:     NewLACPEngine(cfg.Name, pipeline, priorities, cfg.Timeouts, m),
		stack:    NewStackLinkEngine(cfg.Name, m),
		metrics:  m,
		notifier: n,
		traits:   ofp.TraitsFor(cfg.Hardware),
	}
	v.rt.EnsureRuntime(cfg)
	return v
}

// SwitchFeatures handles the switch_features input event: it validates that
// the connecting datapath's reported dpid matches the configured one,
// returning errorkit.ErrUnknownDatapath if not (a misconfigured or
// misdirected connection the caller must refuse before DatapathConnect).
func (v *Valve) SwitchFeatures(dpid uint64) error {
	if dpid != v.cfg.ID {
		return fmt.Errorf("%w: got dpid %d, configured for %d", errorkit.ErrUnknownDatapath, dpid, v.cfg.ID)
	}
	return nil
}

// DatapathConnect runs the cold-start sequence: table features (if
// required), default drops, meters, per-port and per-VLAN flows,
// async-config enablement.
func (v *Valve) DatapathConnect(now time.Time, upPorts map[int]bool) OFMsgMap {
	var msgs []ofp.Message

	if v.traits.SendTableFeatures {
		msgs = append(msgs, v.pipeline.TableFeatures(v.traits))
	}
	msgs = append(msgs, v.pipeline.DefaultFlows(DefaultPriorities())...)
	msgs = append(msgs, ofp.AsyncConfig{PacketIn: true, PortStatus: true, FlowRemoved: true})

	v.rt.Running = true
	v.rt.LastColdStart = now
	v.rt.UpPorts = make(map[int]bool, len(upPorts))
	for p, up := range upPorts {
		if up {
			v.rt.UpPorts[p] = true
		}
	}

	for _, vcfg := range v.cfg.VLANs {
		msgs = append(msgs, addVLANFlows(vcfg, DefaultPriorities())...)
		msgs = append(msgs, v.acls.CompileVLAN(vcfg)...)
		if v.cfg.Tables.HasEgressACL && len(vcfg.ACLsOut) > 0 {
			msgs = append(msgs, v.acls.CompileEgress(vcfg, vcfg.ACLsOut)...)
		}
		for _, vip := range vcfg.FaucetVIPsV4 {
			msgs = append(msgs, v.routeV4.InstallVIP(vcfg, vip)...)
		}
		for _, vip := range vcfg.FaucetVIPsV6 {
			msgs = append(msgs, v.routeV6.InstallVIP(vcfg, vip)...)
		}
	}
	for num, pcfg := range v.cfg.Ports {
		if !v.rt.UpPorts[num] && !pcfg.AlwaysUp {
			continue
		}
		msgs = append(msgs, v.acls.CompilePort(pcfg)...)
		msgs = append(msgs, addPortFlows(pcfg, v.cfg, v.pipeline, DefaultPriorities())...)
		v.metrics.PortStatus(v.cfg.Name, num, true)
	}
	v.metrics.DPConnect(v.cfg.Name)
	v.metrics.DPStatus(v.cfg.Name, true)
	v.metrics.ConfigTableNames(v.cfg.Name, v.pipeline.TableNames())
	log.WithDatapath(v.cfg.Name).Infof("pipeline tables: %v", v.pipeline.TableNames())
	v.notifier.Emit(notify.New(notify.DPChange, v.cfg.Name, map[string]interface{}{"reason": "connect"}))

	out := OFMsgMap{}
	out.addSelf(v.cfg.Name, ofp.Reorder(msgs, v.traits, true)...)
	return out
}

// DatapathDisconnect marks the datapath not running and resets metrics.
func (v *Valve) DatapathDisconnect() {
	v.rt.Running = false
	v.metrics.DPStatus(v.cfg.Name, false)
	v.metrics.DPDisconnect(v.cfg.Name)
	v.notifier.Emit(notify.New(notify.DPChange, v.cfg.Name, map[string]interface{}{"reason": "disconnect"}))
}

// PortReason classifies a port_status event.
type PortReason int

const (
	PortAdd PortReason = iota
	PortDelete
	PortModify
)

// PortStatusHandler handles a port add/delete/modify event; a MODIFY with
// an up transition on an already-up port is treated as a flap (delete then
// add).
func (v *Valve) PortStatusHandler(now time.Time, port int, reason PortReason, up bool) OFMsgMap {
	pcfg, ok := v.cfg.Ports[port]
	if !ok {
		return OFMsgMap{}
	}
	wasUp := v.rt.UpPorts[port]
	var msgs []ofp.Message

	switch reason {
	case PortDelete:
		msgs = append(msgs, deletePortFlows(port)...)
		delete(v.rt.UpPorts, port)
	case PortModify:
		if up && wasUp {
			msgs = append(msgs, deletePortFlows(port)...) // flap: delete then add
			msgs = append(msgs, addPortFlows(pcfg, v.cfg, v.pipeline, DefaultPriorities())...)
		} else if up && !wasUp {
			v.rt.UpPorts[port] = true
			msgs = append(msgs, addPortFlows(pcfg, v.cfg, v.pipeline, DefaultPriorities())...)
		} else if !up && wasUp {
			delete(v.rt.UpPorts, port)
			msgs = append(msgs, deletePortFlows(port)...)
		}
	case PortAdd:
		v.rt.UpPorts[port] = true
		msgs = append(msgs, addPortFlows(pcfg, v.cfg, v.pipeline, DefaultPriorities())...)
	}

	v.metrics.PortStatus(v.cfg.Name, port, up)
	v.notifier.Emit(notify.New(notify.PortChange, v.cfg.Name, map[string]interface{}{"port": port, "up": up}))

	out := OFMsgMap{}
	out.addSelf(v.cfg.Name, ofp.Reorder(msgs, v.traits, false)...)
	return out
}

// RcvPacketLocal applies a packet-in to this Valve's own managers without
// any cross-Valve fan-out (the piece multi-DP learning reuses on each
// peer).
func (v *Valve) RcvPacketLocal(now time.Time, pkt PacketMeta) OFMsgMap {
	out := OFMsgMap{}
	msgs := v.rcvPacketMsgs(now, pkt)
	out.addSelf(v.cfg.Name, msgs...)
	return out
}

func (v *Valve) rcvPacketMsgs(now time.Time, pkt PacketMeta) []ofp.Message {
	v.metrics.VLANPacketIn(v.cfg.Name)
	if !pkt.HasVID {
		return v.nonVLANRcvPacket(now, pkt)
	}
	return v.vlanRcvPacket(now, pkt)
}

func (v *Valve) nonVLANRcvPacket(now time.Time, pkt PacketMeta) []ofp.Message {
	v.metrics.NonVLANPacketIn(v.cfg.Name)
	port := v.cfg.Ports[pkt.InPort]
	if port == nil {
		return nil
	}
	if pkt.EthType == ofp.EthTypeLACP && port.LACP != nil && pkt.LACP != nil {
		rt := v.rt.Ports[port.Number]
		var vlans []*VLANConfig
		for _, vc := range v.cfg.VLANs {
			vlans = append(vlans, vc)
		}
		flows, reply := v.lacp.ReceivePDU(now, port, rt, vlans, v.rt.UpPorts, *pkt.LACP)
		if reply {
			flows = append(flows, ofp.PacketOut{InPort: ofp.PortController, Data: []byte("lacp-reply"), Actions: []ofp.Action{ofp.Output{Port: port.Number}}})
		}
		return flows
	}
	if pkt.EthType == ofp.EthTypeLLDP && pkt.LLDP != nil && port.Stack != nil {
		rt := v.rt.Ports[port.Number]
		v.stack.ReceiveProbe(now, port, rt, pkt.LLDP.RemoteDPID, pkt.LLDP.RemoteDPName, pkt.LLDP.RemotePortID)
	}
	return nil
}

func (v *Valve) vlanRcvPacket(now time.Time, pkt PacketMeta) []ofp.Message {
	port := v.cfg.Ports[pkt.InPort]
	if port == nil {
		v.metrics.IgnoredPacketIn(v.cfg.Name)
		return nil
	}
	vid := pkt.VID
	if v.cfg.HasGlobalVLAN && vid == GlobalVID {
		vid = DecodeGlobalVID(pkt.EthDst)
	}
	vlanCfg, ok := v.cfg.VLANs[vid]
	if !ok {
		v.metrics.IgnoredPacketIn(v.cfg.Name)
		return nil
	}
	vlanRT := v.rt.VLANs[vid]

	var msgs []ofp.Message
	if !v.RateLimitPacketIn(now) {
		flows, _, updated := v.hosts.LearnHostOnVLANPorts(now, port, vlanCfg, vlanRT, pkt.EthSrc)
		if updated {
			msgs = append(msgs, flows...)
		}
	}

	if vlanCfg.FaucetMAC != nil && (pkt.EthSrc.String() == vlanCfg.FaucetMAC.String() || pkt.EthDst.String() == vlanCfg.FaucetMAC.String()) {
		if pkt.DstIP != nil {
			if pkt.DstIP.To4() != nil {
				msgs = append(msgs, v.routeV4.LearnDirectHost(now, vlanCfg, vlanRT, pkt.DstIP, pkt.EthDst, port.Number)...)
			} else {
				msgs = append(msgs, v.routeV6.LearnDirectHost(now, vlanCfg, vlanRT, pkt.DstIP, pkt.EthDst, port.Number)...)
			}
		}
	}

	return msgs
}

// RcvPacket validates the packet-in, routes it to LACP/LLDP/router/learn
// pathways, and — when stack_route_learning is enabled and this DP is not
// root — propagates the learn to every peer Valve by rewriting pkt_meta
// onto that peer's corresponding stack port.
func (v *Valve) RcvPacket(now time.Time, peers map[string]Peer, pkt PacketMeta, stackRouteLearning, isRoot bool, edgePort func(srcDP string, srcPort int) (port int, ok bool)) OFMsgMap {
	port := v.cfg.Ports[pkt.InPort]
	reject := ValidatePacketIn(pkt, nil, func(vid VID) bool { _, ok := v.cfg.VLANs[vid]; return ok }, port, port != nil && port.Stack != nil)
	if reject != RejectNone {
		v.metrics.IgnoredPacketIn(v.cfg.Name)
		return OFMsgMap{}
	}

	out := v.RcvPacketLocal(now, pkt)

	if stackRouteLearning && !isRoot && pkt.HasVID {
		for name, peer := range peers {
			if name == v.cfg.Name {
				continue
			}
			peerPort, ok := edgePort(v.cfg.Name, pkt.InPort)
			if !ok {
				continue
			}
			relayed := pkt
			relayed.InPort = peerPort
			peerOut := peer.RcvPacketLocal(now, relayed)
			for dp, msgs := range peerOut {
				out[dp] = append(out[dp], msgs...)
			}
		}
	}
	return out
}

// ReloadConfig applies newCfg, warm if possible and cold if the diff
// requires it.
func (v *Valve) ReloadConfig(now time.Time, newCfg *DPConfig) (OFMsgMap, RestartType) {
	diff := DiffConfig(v.cfg, newCfg)
	if diff.PipelineChanged || diff.AllPortsChanged {
		v.cfg = newCfg
		v.rt = v.rt.Migrate(newCfg)
		v.pipeline = NewPipeline(newCfg.Tables)
		v.traits = ofp.TraitsFor(newCfg.Hardware)
		v.metrics.ConfigReload(v.cfg.Name, true)
		v.markAllPortVLANStatsStale()
		v.notifier.Emit(notify.New(notify.ConfigChange, v.cfg.Name, map[string]interface{}{"restart_type": string(notify.RestartCold)}))
		return v.DatapathConnect(now, map[int]bool{}), RestartCold
	}

	upBefore := make(map[int]bool, len(v.rt.UpPorts))
	for p, up := range v.rt.UpPorts {
		upBefore[p] = up
	}
	newRT, msgs := Reconcile(diff, v.cfg, newCfg, v.rt, v.pipeline, DefaultPriorities(), upBefore)
	for _, num := range diff.ChangedACLPorts {
		if pcfg, ok := newCfg.Ports[num]; ok {
			msgs = append(msgs, v.acls.CompilePort(pcfg)...)
		}
	}
	for _, vid := range diff.ChangedVIDs {
		vcfg, ok := newCfg.VLANs[vid]
		if !ok {
			continue
		}
		msgs = append(msgs, v.acls.CompileVLAN(vcfg)...)
		if newCfg.Tables.HasEgressACL && len(vcfg.ACLsOut) > 0 {
			msgs = append(msgs, v.acls.CompileEgress(vcfg, vcfg.ACLsOut)...)
		}
	}

	v.cfg = newCfg
	v.rt = newRT
	v.metrics.ConfigReload(v.cfg.Name, false)
	v.markAllPortVLANStatsStale()
	v.notifier.Emit(notify.New(notify.ConfigChange, v.cfg.Name, map[string]interface{}{"restart_type": string(notify.RestartWarm)}))

	out := OFMsgMap{}
	out.addSelf(v.cfg.Name, ofp.Reorder(msgs, v.traits, false)...)
	return out, RestartWarm
}

// Advertise emits periodic IPv6 RA / gratuitous ARP.
func (v *Valve) Advertise(now time.Time) OFMsgMap {
	var msgs []ofp.Message
	for _, vcfg := range v.cfg.VLANs {
		if len(vcfg.FaucetVIPsV6) > 0 {
			msgs = append(msgs, v.routeV6.Advertise(now, vcfg)...)
		}
		if v.cfg.GratuitousARP && len(vcfg.FaucetVIPsV4) > 0 {
			msgs = append(msgs, v.routeV4.Advertise(now, vcfg)...)
		}
	}
	out := OFMsgMap{}
	out.addSelf(v.cfg.Name, msgs...)
	return out
}

// FastAdvertise emits periodic LACP PDUs and LLDP beacons.
func (v *Valve) FastAdvertise(now time.Time) OFMsgMap {
	var msgs []ofp.Message
	for num, pcfg := range v.cfg.Ports {
		rt := v.rt.Ports[num]
		if rt == nil {
			continue
		}
		if pcfg.LACP != nil && !v.lacp.suppressedByPassthrough(pcfg, v.rt.UpPorts) {
			rt.LastLACPResp = now
			msgs = append(msgs, ofp.PacketOut{InPort: ofp.PortController, Data: []byte("lacp-beacon"), Actions: []ofp.Action{ofp.Output{Port: num}}})
		}
		if pcfg.Stack != nil {
			rt.LastLLDPSent = now
			msgs = append(msgs, ofp.PacketOut{InPort: ofp.PortController, Data: []byte("lldp-stack-probe"), Actions: []ofp.Action{ofp.Output{Port: num}}})
		}
	}
	out := OFMsgMap{}
	out.addSelf(v.cfg.Name, msgs...)
	return out
}

// RecomputeStackState re-evaluates every stack port's link state machine and
// returns the resulting messages; a transition that yields no messages
// leaves the returned map empty. When force is
// true, tunnel/flood state is recomputed unconditionally regardless of
// whether any of this Valve's own ports changed state this tick — used by
// the fabric coordinator's cross-valve fan-out pass, where a peer's port
// transitioned but this Valve's own ports didn't, and this Valve still must
// recompute its tunnel flows and VLAN flood programming (§4.7: "fan out to
// *all* Valves whose DP is part of the stack").
func (v *Valve) RecomputeStackState(now time.Time, force bool) OFMsgMap {
	var msgs []ofp.Message
	var transitioned bool
	for num, pcfg := range v.cfg.Ports {
		if pcfg.Stack == nil {
			continue
		}
		rt := v.rt.Ports[num]
		tr := v.stack.Evaluate(now, pcfg, rt, v.cfg.Timeouts.StackSendInterval, v.cfg.Timeouts.MaxLLDPLost)
		if !tr.Changed {
			continue
		}
		transitioned = true
		if tr.New == StackDown {
			msgs = append(msgs, deletePortFlows(num)...)
			for vid := range v.cfg.VLANs {
				vlanRT := v.rt.VLANs[vid]
				for _, h := range vlanRT.Hosts.OnPort(num) {
					msgs = append(msgs, v.hosts.ExpireHost(vid, h, vlanRT)...)
				}
			}
		}
	}
	if transitioned || force {
		msgs = append(msgs, v.acls.RecompileTunnels()...)
		for _, vcfg := range v.cfg.VLANs {
			msgs = append(msgs, v.recomputeFloodFor(vcfg)...)
		}
	}
	out := OFMsgMap{}
	out.addSelf(v.cfg.Name, msgs...)
	return out
}

// markAllPortVLANStatsStale flags every current (port, VLAN) membership
// stale after a reload, so the next StateExpire export zeroes each before
// trusting a fresh count.
func (v *Valve) markAllPortVLANStatsStale() {
	for vid, vcfg := range v.cfg.VLANs {
		vlanRT := v.rt.VLANs[vid]
		v.hosts.MarkPortVLANStatsStale(vlanRT, portsInVLAN(v.cfg, vcfg.VID))
	}
}

func portsInVLAN(cfg *DPConfig, vid VID) []int {
	var ports []int
	for num, p := range cfg.Ports {
		if p.MemberOf(vid) {
			ports = append(ports, num)
		}
	}
	return ports
}

func (v *Valve) recomputeFloodFor(vcfg *VLANConfig) []ofp.Message {
	var ports []*PortConfig
	for _, p := range v.cfg.Ports {
		ports = append(ports, p)
	}
	forwarding := make(map[int]bool, len(ports))
	for num, p := range v.cfg.Ports {
		if p.LACP == nil {
			forwarding[num] = true
			continue
		}
		if rt := v.rt.Ports[num]; rt != nil {
			forwarding[num] = rt.LACPState == LACPUp
		}
	}
	return v.flood.UpdateVLAN(vcfg, ports, v.rt.UpPorts, forwarding)
}

// StateExpire runs LACP timeout, host expiry, and route expiry.
func (v *Valve) StateExpire(now time.Time) OFMsgMap {
	var msgs []ofp.Message
	var ports []*PortConfig
	runtimes := make(map[int]*PortRuntime, len(v.cfg.Ports))
	for num, p := range v.cfg.Ports {
		ports = append(ports, p)
		runtimes[num] = v.rt.Ports[num]
	}
	msgs = append(msgs, v.lacp.ExpireStale(now, ports, runtimes)...)

	for vid, vcfg := range v.cfg.VLANs {
		vlanRT := v.rt.VLANs[vid]
		msgs = append(msgs, v.hosts.SweepIdle(now, vid, vlanRT)...)
		msgs = append(msgs, v.routeV4.ExpireNeighbors(now, vcfg, vlanRT)...)
		msgs = append(msgs, v.routeV6.ExpireNeighbors(now, vcfg, vlanRT)...)
		v.hosts.ExportLearnedMACs(vid, vlanRT)
		v.hosts.ExportPortVLANHosts(vid, vlanRT, portsInVLAN(v.cfg, vcfg.VID))
	}
	out := OFMsgMap{}
	out.addSelf(v.cfg.Name, msgs...)
	return out
}

// ResolveGateways runs the route managers' per-cycle resolution pass.
func (v *Valve) ResolveGateways(now time.Time) OFMsgMap {
	var msgs []ofp.Message
	for vid, vcfg := range v.cfg.VLANs {
		vlanRT := v.rt.VLANs[vid]
		pendingV4 := unresolvedIPs(vlanRT.NeighborsV4)
		pendingV6 := unresolvedIPs(vlanRT.NeighborsV6)
		msgs = append(msgs, v.routeV4.ResolveGateways(now, vcfg, vlanRT, pendingV4)...)
		msgs = append(msgs, v.routeV6.ResolveGateways(now, vcfg, vlanRT, pendingV6)...)
	}
	out := OFMsgMap{}
	out.addSelf(v.cfg.Name, msgs...)
	return out
}

func unresolvedIPs(cache *NeighborCache) []net.IP {
	var out []net.IP
	for _, n := range cache.All() {
		if n.MAC == nil {
			out = append(out, n.IP)
		}
	}
	return out
}

// FlowTimeout drives host-manager idle expiry from a flow-removed event.
func (v *Valve) FlowTimeout(now time.Time, table ofp.TableID, vid VID, mac net.HardwareAddr) OFMsgMap {
	vlanRT, ok := v.rt.VLANs[vid]
	if !ok {
		return OFMsgMap{}
	}
	msgs := v.hosts.FlowRemoved(now, vid, vlanRT, mac)
	out := OFMsgMap{}
	out.addSelf(v.cfg.Name, msgs...)
	return out
}

// Dot1XAssign reassigns a port's dynamic native VLAN following an 802.1X
// authentication decision (dot1x_dynamic_nfv), deleting the port's vlan-table
// ingress flow for its previous effective native VLAN and installing one for
// the newly assigned VLAN. A no-op if the port is not dot1x-eligible or the
// assignment is unchanged.
func (v *Valve) Dot1XAssign(now time.Time, port int, vid VID) OFMsgMap {
	pcfg, ok := v.cfg.Ports[port]
	if !ok || !pcfg.Dot1XNFVSwPort {
		return OFMsgMap{}
	}
	rt, ok := v.rt.Ports[port]
	if !ok {
		return OFMsgMap{}
	}
	prev := rt.Dot1XNativeVLAN
	if prev == 0 {
		prev = pcfg.NativeVLAN
	}
	if prev == vid {
		return OFMsgMap{}
	}

	var msgs []ofp.Message
	if prevCfg, ok := v.cfg.VLANs[prev]; ok {
		msgs = append(msgs, ofp.FlowMod{
			Table:   ofp.TableVLAN,
			Match:   ofp.Match{InPort: ofp.IntPtr(port), VID: ofp.VIDPtr(prevCfg.VID)},
			Command: ofp.FlowDelete,
		})
	}
	if newCfg, ok := v.cfg.VLANs[vid]; ok {
		msgs = append(msgs, ofp.FlowMod{
			Table:    ofp.TableVLAN,
			Priority: DefaultPriorities().Medium,
			Match:    ofp.Match{InPort: ofp.IntPtr(port), VID: ofp.VIDPtr(newCfg.VID)},
			Instructions: []ofp.Instruction{
				ofp.ApplyActions{Actions: IngressVIDActions(pcfg, newCfg.VID)},
				ofp.GotoTable{Table: v.pipeline.ClassificationTable()},
			},
			Command: ofp.FlowAdd,
		})
	}
	rt.Dot1XNativeVLAN = vid

	v.notifier.Emit(notify.New(notify.Dot1X, v.cfg.Name, map[string]interface{}{"port": port, "vlan": int(vid)}))

	out := OFMsgMap{}
	out.addSelf(v.cfg.Name, ofp.Reorder(msgs, v.traits, false)...)
	return out
}

// OFDescStats handles the ofdescstats input event: a datapath description
// reply, counted only (it carries no match state to act on).
func (v *Valve) OFDescStats() {
	v.metrics.DPDescStats(v.cfg.Name)
}

// OFError correlates an error reply to recent messages by xid against a
// bounded ring of the last 32 outbound messages, and logs the decoded
// type/code without affecting state.
func (v *Valve) OFError(xid uint32, msgType, code int) {
	v.metrics.OFError(v.cfg.Name)
	for _, r := range v.recentOFErrors {
		if r.xid == xid {
			log.WithDatapath(v.cfg.Name).Warnf("OF error type=%d code=%d correlates to xid=%d (original type=%d code=%d)", msgType, code, xid, r.msgType, r.code)
			return
		}
	}
	log.WithDatapath(v.cfg.Name).Infof("OF error type=%d code=%d, xid=%d not found in recent message ring", msgType, code, xid)
}

// RecordSent appends xid to the bounded ring of recently sent messages that
// OFError correlates against.
func (v *Valve) RecordSent(xid uint32, msgType, code int) {
	v.recentOFErrors = append(v.recentOFErrors, oferrorRecord{xid: xid, msgType: msgType, code: code})
	if len(v.recentOFErrors) > oferrorRingSize {
		v.recentOFErrors = v.recentOFErrors[len(v.recentOFErrors)-oferrorRingSize:]
	}
}

// RateLimitPacketIn reports whether this packet-in should be dropped from
// learning: when ignore_learn_ins > 0, every Nth packet-in (counter modulo
// N == 0) is dropped.
func (v *Valve) RateLimitPacketIn(now time.Time) bool {
	n := v.cfg.Timeouts.IgnoreLearnIns
	if n <= 0 {
		return false
	}
	if now.Sub(v.lastRateReset) >= time.Second {
		v.lastRateReset = now
		v.rateCounter = 0
	}
	v.rateCounter++
	return v.rateCounter%n == 0
}
