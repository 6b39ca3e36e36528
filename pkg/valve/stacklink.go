// stacklink.go implements the Stack Link Engine: per-stack-port
// probe state machine and the cross-valve fan-out triggered on every
// UP<->DOWN transition. Link state is derived from received LLDP
// neighbor-probe advertisements rather than raw carrier state.
package valve

import (
	"time"

	"github.com/l2fabric/valved/internal/ofpctl/log"
	"github.com/l2fabric/valved/pkg/metrics"
)

// StackState is a stack port's probe-derived link state.
type StackState int

const (
	StackInit StackState = iota
	StackUp
	StackDown
)

// StackProbe holds the LLDP-probe-derived fields for a stack port's
// dynamic state.
type StackProbe struct {
	LastSeenLLDPTime time.Time
	StackCorrect     bool
	RemoteDPID       uint64
	RemotePortID     int
	RemoteDPName     string
	RemotePortState  StackState
}

// StackLinkEngine evaluates the per-port probe state machine and reports
// transitions needing cross-valve fan-out.
type StackLinkEngine struct {
	dpName  string
	metrics metrics.Sink
}

// NewStackLinkEngine builds a Stack Link Engine for one DP.
func NewStackLinkEngine(dpName string, m metrics.Sink) *StackLinkEngine {
	return &StackLinkEngine{dpName: dpName, metrics: m}
}

// Transition is one stack port's state machine result: the new state and
// whether it differs from what the port carried in (a transition, which
// triggers cross-valve fan-out).
type Transition struct {
	Port      int
	Old       StackState
	New       StackState
	Changed   bool
}

// nextState implements the stack link state transition table.
func nextState(probe StackProbe, current StackState, now time.Time, sendInterval time.Duration, maxLost int, adminDown bool) (StackState, bool) {
	if adminDown {
		return current, false
	}
	everSawProbe := !probe.LastSeenLLDPTime.IsZero()
	if !everSawProbe {
		if current == StackDown {
			return StackInit, true
		}
		return current, false
	}
	if !probe.StackCorrect && current != StackDown {
		return StackDown, true
	}
	if sendInterval > 0 && everSawProbe && current != StackDown {
		lost := now.Sub(probe.LastSeenLLDPTime).Seconds() / sendInterval.Seconds()
		if int(lost) >= maxLost {
			return StackDown, true
		}
	}
	recent := everSawProbe && sendInterval > 0 && now.Sub(probe.LastSeenLLDPTime) < sendInterval*time.Duration(maxLost)
	if recent && current != StackUp {
		return StackUp, true
	}
	return current, false
}

// Evaluate runs the state machine for one stack port, updating rt in
// place, and reports whether the caller must fan out the transition to
// every Valve in the stack.
func (e *StackLinkEngine) Evaluate(now time.Time, port *PortConfig, rt *PortRuntime, sendInterval time.Duration, maxLost int) Transition {
	old := rt.StackState
	next, changed := nextState(rt.StackProbe, old, now, sendInterval, maxLost, false)
	rt.StackState = next

	if changed && next == StackDown && !rt.StackProbe.StackCorrect {
		e.metrics.StackCablingErrors(e.dpName, port.Number)
		log.WithPort(e.dpName, port.Number).Errorf("stack cabling mismatch: expected remote dp/port does not match probe")
	}
	if changed {
		e.metrics.PortStackState(e.dpName, port.Number, int(next))
		log.WithPort(e.dpName, port.Number).Infof("stack link %s -> %s", stateName(old), stateName(next))
	}
	return Transition{Port: port.Number, Old: old, New: next, Changed: changed}
}

func stateName(s StackState) string {
	switch s {
	case StackInit:
		return "INIT"
	case StackUp:
		return "UP"
	case StackDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// ReceiveProbe records an LLDP stack probe observation, setting
// StackCorrect by comparing the observed remote DP/port against the
// configured StackPeer.
func (e *StackLinkEngine) ReceiveProbe(now time.Time, port *PortConfig, rt *PortRuntime, remoteDPID uint64, remoteDPName string, remotePortID int) {
	e.metrics.StackProbesReceived(e.dpName, port.Number)
	correct := port.Stack != nil && port.Stack.DPName == remoteDPName && port.Stack.Port == remotePortID
	rt.StackProbe = StackProbe{
		LastSeenLLDPTime: now,
		StackCorrect:     correct,
		RemoteDPID:       remoteDPID,
		RemoteDPName:     remoteDPName,
		RemotePortID:     remotePortID,
	}
	rt.LastLLDPRecv = now
}
