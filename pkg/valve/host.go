// host.go implements the Host Manager: MAC learning, host
// cache, idle/hard timeouts, move rate limiting, learn-ban, permanent
// learn, and inter-VLAN routing rewrites. A learn produces an ordered
// []ofp.Message batch ready for a datapath's flow tables.
package valve

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/l2fabric/valved/internal/ofpctl/log"
	"github.com/l2fabric/valved/pkg/metrics"
	"github.com/l2fabric/valved/pkg/notify"
	"github.com/l2fabric/valved/pkg/ofp"
)

// HostManager learns MACs onto ports and programs the eth_src/eth_dst flows
// that realize the lookup.
type HostManager struct {
	dpName     string
	pipeline   *Pipeline
	priorities Priorities
	timeouts   TimeoutConfig
	metrics    metrics.Sink
	notifier   notify.Sink

	mu       sync.Mutex
	lastMove map[string]time.Time // key: vid|mac -> last move timestamp
}

// NewHostManager builds a Host Manager for one DP.
func NewHostManager(dpName string, pipeline *Pipeline, priorities Priorities, timeouts TimeoutConfig, m metrics.Sink, n notify.Sink) *HostManager {
	return &HostManager{
		dpName:     dpName,
		pipeline:   pipeline,
		priorities: priorities,
		timeouts:   timeouts,
		metrics:    m,
		notifier:   n,
		lastMove:   make(map[string]time.Time),
	}
}

func moveKey(vid VID, mac string) string { return fmt.Sprintf("%d|%s", vid, mac) }

// LearnHostOnVLANPorts learns mac on port@vlan, installing an eth_src match
// (keyed by in_port for position) with idle/hard timeout and a reverse
// eth_dst flow outputting to port with the VLAN push/pop appropriate for
// the port. Returns the flows to install/delete, the
// previous port the MAC was known on (-1 if none), and whether the caller
// should update its in-memory view of the cache.
func (h *HostManager) LearnHostOnVLANPorts(now time.Time, port *PortConfig, vlan *VLANConfig, vlanRT *VLANRuntime, mac net.HardwareAddr) (flows []ofp.Message, previousPort int, updateCache bool) {
	macStr := mac.String()
	previousPort = -1

	if vlanRT.LearnBanUntil.After(now) {
		h.metrics.VLANLearnBans(h.dpName, int(vlan.VID))
		return nil, previousPort, false
	}
	if h.overLearnJitter(now, vlanRT) {
		vlanRT.LearnBanUntil = now.Add(h.timeouts.LearnBanTimeout)
		vlanRT.LearnBanCount++
		h.metrics.VLANLearnBans(h.dpName, int(vlan.VID))
		log.WithVLAN(h.dpName, int(vlan.VID)).Warnf("learn rate exceeded learn_jitter, banning learns for %s", h.timeouts.LearnBanTimeout)
		return nil, previousPort, false
	}

	existing, known := vlanRT.Hosts.Get(macStr)
	if known {
		previousPort = existing.Port
		if existing.Port == port.Number {
			vlanRT.Hosts.Touch(macStr, now)
			return nil, previousPort, false
		}
		if existing.Permanent {
			// Permanent learn: subsequent different MACs with the same
			// address on another port are ignored.
			return nil, previousPort, false
		}
		h.mu.Lock()
		last, rateLimited := h.lastMove[moveKey(vlan.VID, macStr)]
		if rateLimited && now.Sub(last) < h.timeouts.CacheUpdateGuardTime {
			h.mu.Unlock()
			return nil, previousPort, false
		}
		h.lastMove[moveKey(vlan.VID, macStr)] = now
		h.mu.Unlock()

		flows = append(flows, h.deleteHostFlows(vlan.VID, macStr, mac)...)
	}

	flows = append(flows, h.installHostFlows(now, port, vlan, mac)...)

	newEntry := &HostEntry{MAC: macStr, Port: port.Number, LastSeen: now, Permanent: port.PermanentLearn && !known}
	vlanRT.Hosts.Put(newEntry)

	delta := 1
	if known {
		delta = 0 // a move: one host present before and after
	}
	h.metrics.VLANHostsLearned(h.dpName, int(vlan.VID), delta)
	h.notifier.Emit(notify.New(notify.L2Learn, h.dpName, map[string]interface{}{
		"mac": macStr, "port": port.Number, "vid": int(vlan.VID), "previous_port": previousPort,
	}))

	return flows, previousPort, true
}

// overLearnJitter reports whether learns on this VLAN within the last
// second exceed LearnJitter, trimming the sliding window as it goes.
func (h *HostManager) overLearnJitter(now time.Time, vlanRT *VLANRuntime) bool {
	if h.timeouts.LearnJitter <= 0 {
		return false
	}
	cutoff := now.Add(-1 * time.Second)
	kept := vlanRT.recentLearns[:0]
	for _, t := range vlanRT.recentLearns {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	vlanRT.recentLearns = kept
	return len(kept) > h.timeouts.LearnJitter
}

func (h *HostManager) installHostFlows(now time.Time, port *PortConfig, vlan *VLANConfig, mac net.HardwareAddr) []ofp.Message {
	idleSeconds := int(h.timeouts.IdleTimeout.Seconds())
	hardSeconds := int(h.timeouts.HardTimeout.Seconds())

	nextAfterSrc, hasNext := h.pipeline.Next(ofp.TableEthSrc)
	var srcInstr []ofp.Instruction
	if hasNext {
		srcInstr = []ofp.Instruction{ofp.GotoTable{Table: nextAfterSrc}}
	}

	srcFlow := ofp.FlowMod{
		Table:    ofp.TableEthSrc,
		Priority: h.priorities.Medium,
		Match: ofp.Match{
			InPort: ofp.IntPtr(port.Number),
			VID:    ofp.VIDPtr(vlan.VID),
			EthSrc: mac,
		},
		Instructions: srcInstr,
		IdleTimeout:  idleSeconds,
		HardTimeout:  hardSeconds,
		Command:      ofp.FlowAdd,
	}

	dstFlow := ofp.FlowMod{
		Table:    ofp.TableEthDst,
		Priority: h.priorities.Medium,
		Match: ofp.Match{
			VID:    ofp.VIDPtr(vlan.VID),
			EthDst: mac,
		},
		Instructions: []ofp.Instruction{ofp.ApplyActions{Actions: EgressActions(port, vlan.VID)}},
		IdleTimeout:  idleSeconds,
		HardTimeout:  hardSeconds,
		Command:      ofp.FlowAdd,
	}

	return []ofp.Message{srcFlow, dstFlow}
}

func (h *HostManager) deleteHostFlows(vid VID, macStr string, mac net.HardwareAddr) []ofp.Message {
	return []ofp.Message{
		ofp.FlowMod{
			Table:   ofp.TableEthSrc,
			Match:   ofp.Match{VID: ofp.VIDPtr(vid), EthSrc: mac},
			Command: ofp.FlowDeleteStrict,
		},
		ofp.FlowMod{
			Table:   ofp.TableEthDst,
			Match:   ofp.Match{VID: ofp.VIDPtr(vid), EthDst: mac},
			Command: ofp.FlowDeleteStrict,
		},
	}
}

// ExpireHost removes mac's flows and cache entry because its timeout
// elapsed without a flow-removed event (wall-clock sweep mode) or because a
// flow-removed event arrived (idle-mode). Returns the delete messages.
func (h *HostManager) ExpireHost(vid VID, e *HostEntry, vlanRT *VLANRuntime) []ofp.Message {
	mac, err := net.ParseMAC(e.MAC)
	if err != nil {
		return nil
	}
	vlanRT.Hosts.Delete(e.MAC)
	h.metrics.VLANHostsLearned(h.dpName, int(vid), -1)
	h.notifier.Emit(notify.New(notify.L2Expire, h.dpName, map[string]interface{}{
		"mac": e.MAC, "port": e.Port, "vid": int(vid),
	}))
	return h.deleteHostFlows(vid, e.MAC, mac)
}

// SweepIdle is the periodic wall-clock expiry path used when
// IdleTimeoutUsesFlowRemoved is false: any entry whose LastSeen predates
// now-IdleTimeout is expired.
func (h *HostManager) SweepIdle(now time.Time, vid VID, vlanRT *VLANRuntime) []ofp.Message {
	if h.timeouts.IdleTimeoutUsesFlowRemoved || h.timeouts.IdleTimeout <= 0 {
		return nil
	}
	cutoff := now.Add(-h.timeouts.IdleTimeout)
	var msgs []ofp.Message
	for _, e := range vlanRT.Hosts.Entries() {
		if e.Permanent {
			continue
		}
		if e.LastSeen.After(cutoff) {
			break // Entries() is sorted oldest-first; nothing further to expire.
		}
		msgs = append(msgs, h.ExpireHost(vid, e, vlanRT)...)
	}
	return msgs
}

// FlowRemoved handles an idle-mode expiry driven by the datapath's
// flow-removed notification for an eth_src or eth_dst flow match.
func (h *HostManager) FlowRemoved(now time.Time, vid VID, vlanRT *VLANRuntime, mac net.HardwareAddr) []ofp.Message {
	if !h.timeouts.IdleTimeoutUsesFlowRemoved {
		return nil
	}
	e, ok := vlanRT.Hosts.Get(mac.String())
	if !ok {
		return nil
	}
	return h.ExpireHost(vid, e, vlanRT)
}

// ExportLearnedMACs refreshes the learned_macs highwater export for one
// VLAN: every index from the new host count up to the previous highwater is
// zeroed first, then every index below the new count is set present. This
// is the order that matters — zero the stale tail before writing the new
// set, never the reverse, or a shrinking host count would leave old indices
// reporting present until the next cycle happens to overwrite them.
func (h *HostManager) ExportLearnedMACs(vid VID, vlanRT *VLANRuntime) {
	n := vlanRT.Hosts.Len()
	for i := n; i < vlanRT.MACHighwater; i++ {
		h.metrics.LearnedMACs(h.dpName, int(vid), i, false)
	}
	for i := 0; i < n; i++ {
		h.metrics.LearnedMACs(h.dpName, int(vid), i, true)
	}
	vlanRT.MACHighwater = n
}

// MarkPortVLANStatsStale flags every port in ports as needing a fresh
// port_vlan_hosts_learned export before its count can be trusted again —
// called on every reload, since the reconciled flow set invalidates counts
// accumulated against the old config.
func (h *HostManager) MarkPortVLANStatsStale(vlanRT *VLANRuntime, ports []int) {
	for _, p := range ports {
		vlanRT.PortStatsStale[p] = true
	}
}

// ExportPortVLANHosts refreshes the port_vlan_hosts_learned gauge for vid,
// one port at a time: a port still flagged stale is zeroed first so a
// reload never leaves a pre-reload count visible, then every port's live
// host count is written and its stale flag cleared.
func (h *HostManager) ExportPortVLANHosts(vid VID, vlanRT *VLANRuntime, ports []int) {
	counts := make(map[int]int, len(ports))
	for _, e := range vlanRT.Hosts.Entries() {
		counts[e.Port]++
	}
	for _, p := range ports {
		if vlanRT.PortStatsStale[p] {
			h.metrics.PortVLANHostsLearned(h.dpName, p, int(vid), 0)
		}
		h.metrics.PortVLANHostsLearned(h.dpName, p, int(vid), counts[p])
		vlanRT.PortStatsStale[p] = false
	}
}

// InstallRoutedMAC installs the eth_dst rewrite flow used for inter-VLAN
// routing when a packet's source or destination MAC is the VLAN's
// faucet_mac — the routed peer's real MAC is rewritten in place of the
// virtual router MAC before the eth_dst lookup.
func (h *HostManager) InstallRoutedMAC(vlan *VLANConfig, port *PortConfig, routedPeerMAC net.HardwareAddr) []ofp.Message {
	idleSeconds := int(h.timeouts.IdleTimeout.Seconds())
	return []ofp.Message{
		ofp.FlowMod{
			Table:    ofp.TableEthDst,
			Priority: h.priorities.High,
			Match: ofp.Match{
				VID:    ofp.VIDPtr(vlan.VID),
				EthDst: vlan.FaucetMAC,
			},
			Instructions: []ofp.Instruction{ofp.ApplyActions{Actions: append(
				[]ofp.Action{ofp.SetField{Field: "eth_dst", Value: routedPeerMAC.String()}},
				EgressActions(port, vlan.VID)...,
			)}},
			IdleTimeout: idleSeconds,
			Command:     ofp.FlowAdd,
		},
	}
}
