// lacp.go implements the LACP Engine: per-port LACP peer state
// machine, PDU-driven and timeout-driven transitions, passthrough gating,
// and forwarding-member selection.
package valve

import (
	"time"

	"github.com/l2fabric/valved/internal/ofpctl/log"
	"github.com/l2fabric/valved/pkg/metrics"
	"github.com/l2fabric/valved/pkg/ofp"
)

// LACPState is a LACP bundle member's up/down state.
type LACPState int

const (
	LACPDown LACPState = iota
	LACPUp
)

// LACPSize bounds the truncated SLOW-protocol punt flow's MaxLen.
const LACPSize = 128

// LACPPDU is a parsed LACPv1 PDU's fields relevant to the state machine.
// Wire decoding is an external collaborator's job; the packet-in
// dispatch path hands this struct to the engine already parsed.
type LACPPDU struct {
	ActorSystem string
	Synchronization bool
	Collecting      bool
	Distributing    bool
}

// actorUp classifies a PDU's actor_up from the partner's
// synchronization/collecting/distributing flags.
func (p LACPPDU) actorUp() bool {
	return p.Synchronization && p.Collecting && p.Distributing
}

// LACPEngine runs the per-port LACP state machines for one DP.
type LACPEngine struct {
	dpName     string
	pipeline   *Pipeline
	priorities Priorities
	timeouts   TimeoutConfig
	metrics    metrics.Sink
}

// NewLACPEngine builds a LACP Engine for one DP.
func NewLACPEngine(dpName string, pipeline *Pipeline, priorities Priorities, timeouts TimeoutConfig, m metrics.Sink) *LACPEngine {
	return &LACPEngine{dpName: dpName, pipeline: pipeline, priorities: priorities, timeouts: timeouts, metrics: m}
}

// ReceivePDU applies a received LACPv1 PDU to port's state machine. Returns
// the flows to emit, if the transition or reply timer requires any, and
// whether a reply PDU should be sent.
func (e *LACPEngine) ReceivePDU(now time.Time, port *PortConfig, rt *PortRuntime, vlans []*VLANConfig, up map[int]bool, pdu LACPPDU) (flows []ofp.Message, reply bool) {
	if rt.LACPActorSystem != "" && rt.LACPActorSystem != pdu.ActorSystem && pdu.ActorSystem != "" {
		log.WithPort(e.dpName, port.Number).Errorf("LACP actor system mismatch: had %s, saw %s", rt.LACPActorSystem, pdu.ActorSystem)
	}
	rt.LACPActorSystem = pdu.ActorSystem
	rt.LastLACPPacket = now

	actorUp := pdu.actorUp()
	prev := rt.LACPState
	switch {
	case actorUp && prev == LACPDown:
		rt.LACPState = LACPUp
		flows = e.onUp(port, vlans, up)
		e.metrics.PortLACPStatus(e.dpName, port.Number, true)
	case !actorUp && prev == LACPUp:
		rt.LACPState = LACPDown
		flows = e.onDown(port)
		e.metrics.PortLACPStatus(e.dpName, port.Number, false)
	}

	contentChanged := prev != rt.LACPState
	overdue := now.Sub(rt.LastLACPResp) >= e.timeouts.LACPRespInterval
	if contentChanged || overdue {
		rt.LastLACPResp = now
		reply = !e.suppressedByPassthrough(port, up)
	}
	return flows, reply
}

// suppressedByPassthrough reports whether PDU emission should be suppressed
// because a configured passthrough peer port is DOWN.
func (e *LACPEngine) suppressedByPassthrough(port *PortConfig, up map[int]bool) bool {
	if port.LACP == nil {
		return false
	}
	for _, peer := range port.LACP.Passthrough {
		if !up[peer] {
			return true
		}
	}
	return false
}

// ExpireStale forces DOWN on any LACP port whose last PDU predates
// lacp_timeout.
func (e *LACPEngine) ExpireStale(now time.Time, ports []*PortConfig, runtimes map[int]*PortRuntime) []ofp.Message {
	var msgs []ofp.Message
	for _, p := range ports {
		if p.LACP == nil {
			continue
		}
		rt := runtimes[p.Number]
		if rt.LACPState != LACPUp {
			continue
		}
		if now.Sub(rt.LastLACPPacket) <= e.timeouts.LACPTimeout {
			continue
		}
		rt.LACPState = LACPDown
		msgs = append(msgs, e.onDown(p)...)
		e.metrics.PortLACPStatus(e.dpName, p.Number, false)
	}
	return msgs
}

// Forwarding reports whether an LACP bundle member on this DP should
// receive learned-destination entries: true iff this DP is non-stacked or
// is the stack root.
func Forwarding(isStacked, isRoot bool) bool {
	return !isStacked || isRoot
}

// onUp deletes the port's default drop and adds flood membership for every
// member VLAN.
func (e *LACPEngine) onUp(port *PortConfig, vlans []*VLANConfig, up map[int]bool) []ofp.Message {
	msgs := []ofp.Message{
		ofp.FlowMod{Table: ofp.TableVLAN, Match: ofp.Match{InPort: ofp.IntPtr(port.Number)}, Command: ofp.FlowDeleteStrict},
	}
	for _, v := range vlans {
		if !port.MemberOf(v.VID) {
			continue
		}
		msgs = append(msgs, ofp.FlowMod{
			Table:    ofp.TableVLAN,
			Priority: e.priorities.Medium,
			Match:    ofp.Match{InPort: ofp.IntPtr(port.Number), VID: ofp.VIDPtr(v.VID)},
			Instructions: []ofp.Instruction{
				ofp.ApplyActions{Actions: IngressVIDActions(port, v.VID)},
				ofp.GotoTable{Table: ofp.TableEthSrc},
			},
			Command: ofp.FlowAdd,
		})
	}
	return msgs
}

// onDown installs the input drop and SLOW-protocol controller punt, and
// deletes host/flood state for the port.
func (e *LACPEngine) onDown(port *PortConfig) []ofp.Message {
	return []ofp.Message{
		ofp.FlowMod{
			Table:    ofp.TableVLAN,
			Priority: e.priorities.High,
			Match:    ofp.Match{InPort: ofp.IntPtr(port.Number)},
			Command:  ofp.FlowAdd,
		},
		ofp.FlowMod{
			Table:    ofp.TableVLAN,
			Priority: e.priorities.Highest,
			Match:    ofp.Match{InPort: ofp.IntPtr(port.Number), EthType: ofp.EthTypePtr(ofp.EthTypeLACP)},
			Instructions: []ofp.Instruction{
				ofp.ApplyActions{Actions: []ofp.Action{ofp.Output{Port: ofp.PortController, MaxLen: LACPSize}}},
			},
			Command: ofp.FlowAdd,
		},
		ofp.FlowMod{Table: ofp.TableEthDst, Match: ofp.Match{}, Command: ofp.FlowDelete},
		ofp.FlowMod{Table: ofp.TableFlood, Match: ofp.Match{InPort: ofp.IntPtr(port.Number)}, Command: ofp.FlowDelete},
	}
}
