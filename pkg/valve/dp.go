// Package valve implements the per-datapath forwarding controller: pipeline composition, flow-state reconciliation across config
// reloads, stack link state machines, LACP peer state, MAC learning, and
// multi-datapath packet propagation. It never reads a socket or a file —
// it consumes a validated *DPConfig and emits ofp.Message batches plus
// notify.Event notifications.
//
// The data model separates immutable DPConfig/PortConfig/VLANConfig (the
// declared half, keyed by DP id) from mutable DPRuntime/PortRuntime/
// VLANRuntime (the dynamic half): config describes intent, runtime tracks
// what's actually been learned or negotiated.
package valve

import (
	"net"
	"time"

	"github.com/l2fabric/valved/pkg/ofp"
)

// VID is re-exported from ofp for convenience in valve-level signatures.
type VID = ofp.VID

const (
	NullVID VID = ofp.NullVID
	// GlobalVID is the synthetic VID used for internal inter-VLAN routing.
	// It is a fixed constant; whether a DP uses it is recorded in
	// DPConfig.HasGlobalVLAN, which callers check.
	GlobalVID VID = 4095
)

// StackPeer identifies the remote end of a stack port.
type StackPeer struct {
	DPName string
	Port   int
}

// LACPConfig marks a port as a LACP bundle member.
type LACPConfig struct {
	BundleID     int
	Passthrough  []int // peer port numbers gating PDU emission
}

// PortConfig holds a port's declared (immutable) attributes.
type PortConfig struct {
	Number      int
	Name        string
	Description string

	NativeVLAN  VID   // 0 (NullVID) means untagged traffic is not accepted
	TaggedVLANs []VID

	Stack *StackPeer // non-nil for stack ports
	LACP  *LACPConfig

	MirrorOf    []int // ports whose traffic mirrors to this one
	Coprocessor bool
	ACLsIn      []string

	PermanentLearn       bool
	RestrictedBcastArpNd bool // ARP/ND broadcast only, no generic flood
	Dot1XNFVSwPort       bool
	AlwaysUp             bool // not subject to port_status tracking (e.g. loopback)
}

// VLANConfig holds a VLAN's declared (immutable) attributes.
type VLANConfig struct {
	VID  VID
	Name string

	Tagged   []int // port numbers
	Untagged []int

	ACLsIn  []string
	ACLsOut []string // egress_acl, only compiled when TableConfig.HasEgressACL

	FaucetVIPsV4 []net.IPNet
	FaucetVIPsV6 []net.IPNet
	FaucetMAC    net.HardwareAddr

	MaxHosts int // host cache bound
}

// TimeoutConfig holds the DP-wide timing knobs for learning, idle expiry,
// and LACP/stack timeouts.
type TimeoutConfig struct {
	IdleTimeout            time.Duration
	HardTimeout            time.Duration
	IdleTimeoutUsesFlowRemoved bool // vs. periodic wall-clock sweep

	CacheUpdateGuardTime time.Duration // host-move rate limit
	LearnJitter          int           // learns per second per VLAN before learn-ban
	LearnBanTimeout       time.Duration

	LACPTimeout      time.Duration
	LACPRespInterval time.Duration

	MaxHostsPerResolveCycle int
	MaxResolveBackoffTime   time.Duration
	MaxHostFIBRetryCount    int
	NeighborTimeout         time.Duration

	StackSendInterval time.Duration
	MaxLLDPLost       int

	IgnoreLearnIns int // rate_limit_packet_ins modulo N (0 disables)
}

// DefaultTimeouts returns reasonable defaults mirroring faucet's own
// constants, used by valvetest fixtures and the demo CLI when a config
// doesn't override them.
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		IdleTimeout:             300 * time.Second,
		HardTimeout:             0,
		CacheUpdateGuardTime:    2 * time.Second,
		LearnJitter:             10,
		LearnBanTimeout:         10 * time.Second,
		LACPTimeout:             5 * time.Second,
		LACPRespInterval:        1 * time.Second,
		MaxHostsPerResolveCycle: 5,
		MaxResolveBackoffTime:   32 * time.Second,
		MaxHostFIBRetryCount:    3,
		NeighborTimeout:         2 * time.Hour,
		StackSendInterval:       1 * time.Second,
		MaxLLDPLost:             3,
	}
}

// DPConfig holds a datapath's declared (immutable) attributes. A
// reload replaces the whole DPConfig atomically; DPRuntime migrates across
// the swap via Migrate.
type DPConfig struct {
	Name     string
	ID       uint64
	Hardware ofp.HardwareProfile

	Ports map[int]*PortConfig
	VLANs map[VID]*VLANConfig

	Tables TableConfig

	Timeouts TimeoutConfig

	StackRootName string
	HasGlobalVLAN bool

	UseGroupTables bool // flood manager: groups vs combinatorial flows

	GratuitousARP bool // advertise(): send gratuitous ARP for v4 VIPs
}

// PortRuntime holds a port's mutable, reload-surviving state.
type PortRuntime struct {
	Up bool

	LACPState      LACPState
	LastLACPPacket time.Time
	LastLACPResp   time.Time
	LACPActorSystem string

	StackProbe StackProbe
	StackState StackState

	LastLLDPSent time.Time
	LastLLDPRecv time.Time

	Dot1XNativeVLAN VID
}

// newPortRuntime builds a port's initial dynamic state. StackState starts
// at StackDown (not the zero value StackInit) so a stack port that has
// never seen a probe correctly takes the "never saw a probe and currently
// DOWN" branch of the stack-link state table (§4.7) on its first
// evaluation, matching faucet/valve.py's true starting state.
func newPortRuntime() *PortRuntime {
	return &PortRuntime{StackState: StackDown}
}

// VLANRuntime holds a VLAN's mutable, reload-surviving state: host cache,
// neighbor caches, learn-ban counters.
type VLANRuntime struct {
	Hosts *HostCache

	NeighborsV4 *NeighborCache
	NeighborsV6 *NeighborCache

	LearnBanCount  int
	LearnBanUntil  time.Time
	recentLearns   []time.Time // sliding window for learn_jitter detection

	PortStatsStale map[int]bool

	// MACHighwater is the host count exported as learned_macs last cycle;
	// ExportLearnedMACs zeroes indices from the new count up to this value
	// before writing the new set, then sets it to the new count.
	MACHighwater int
}

func newVLANRuntime(maxHosts int) *VLANRuntime {
	return &VLANRuntime{
		Hosts:          NewHostCache(maxHosts),
		NeighborsV4:    NewNeighborCache(),
		NeighborsV6:    NewNeighborCache(),
		PortStatsStale: make(map[int]bool),
	}
}

// DPRuntime holds a datapath's mutable, reload-surviving state: up ports, running flag, last cold-start time,
// per-port and per-VLAN runtime. Migrate clones this across a config swap.
type DPRuntime struct {
	UpPorts       map[int]bool
	Running       bool
	LastColdStart time.Time

	Ports map[int]*PortRuntime
	VLANs map[VID]*VLANRuntime

	TunnelDirty map[string]bool // ACL names needing tunnel-flow regeneration
}

// NewDPRuntime builds an empty runtime for a freshly constructed DPConfig
// (i.e. before any reload has ever happened — the very first
// DatapathConnect). Port/VLAN runtime entries are created lazily by
// EnsureRuntime to keep this cheap for large configs built in tests.
func NewDPRuntime() *DPRuntime {
	return &DPRuntime{
		UpPorts:     make(map[int]bool),
		Ports:       make(map[int]*PortRuntime),
		VLANs:       make(map[VID]*VLANRuntime),
		TunnelDirty: make(map[string]bool),
	}
}

// EnsureRuntime lazily creates the PortRuntime/VLANRuntime entries a
// DPConfig's declared ports/VLANs need, without disturbing any that already
// exist (used both at first connect and after Migrate adds newly declared
// ports/VLANs during a warm reload).
func (rt *DPRuntime) EnsureRuntime(cfg *DPConfig) {
	for num := range cfg.Ports {
		if _, ok := rt.Ports[num]; !ok {
			rt.Ports[num] = newPortRuntime()
		}
	}
	for vid, vcfg := range cfg.VLANs {
		if _, ok := rt.VLANs[vid]; !ok {
			rt.VLANs[vid] = newVLANRuntime(vcfg.MaxHosts)
		}
	}
}

// Migrate clones the outgoing runtime's dynamic state into a runtime for
// newCfg, preserving ports/VLANs whose identity (number / VID) is
// unchanged, and dropping state for ports/VLANs newCfg no longer declares.
// The host cache survives a warm reload precisely when port identity is
// unchanged.
func (rt *DPRuntime) Migrate(newCfg *DPConfig) *DPRuntime {
	next := &DPRuntime{
		UpPorts:       make(map[int]bool, len(rt.UpPorts)),
		Running:       rt.Running,
		LastColdStart: rt.LastColdStart,
		Ports:         make(map[int]*PortRuntime, len(newCfg.Ports)),
		VLANs:         make(map[VID]*VLANRuntime, len(newCfg.VLANs)),
		TunnelDirty:   make(map[string]bool),
	}
	for num := range newCfg.Ports {
		if up := rt.UpPorts[num]; up {
			next.UpPorts[num] = true
		}
		if p, ok := rt.Ports[num]; ok {
			next.Ports[num] = p
		} else {
			next.Ports[num] = newPortRuntime()
		}
	}
	for vid, vcfg := range newCfg.VLANs {
		if v, ok := rt.VLANs[vid]; ok {
			next.VLANs[vid] = v
		} else {
			next.VLANs[vid] = newVLANRuntime(vcfg.MaxHosts)
		}
	}
	return next
}

// Clone copies the runtime (UpPorts and each PortRuntime are copied; the
// VLANRuntime entries, with their host and neighbor caches, are shared with
// rt) for a cold restart that nonetheless wants to
// preserve operational counters (e.g. stack probe history survives a
// pipeline-change-induced cold start even though flows are rebuilt from
// scratch).
func (rt *DPRuntime) Clone() *DPRuntime {
	next := &DPRuntime{
		UpPorts:       make(map[int]bool, len(rt.UpPorts)),
		Running:       rt.Running,
		LastColdStart: rt.LastColdStart,
		Ports:         make(map[int]*PortRuntime, len(rt.Ports)),
		VLANs:         make(map[VID]*VLANRuntime, len(rt.VLANs)),
		TunnelDirty:   make(map[string]bool),
	}
	for k, v := range rt.UpPorts {
		next.UpPorts[k] = v
	}
	for k, v := range rt.Ports {
		cp := *v
		next.Ports[k] = &cp
	}
	for k, v := range rt.VLANs {
		next.VLANs[k] = v
	}
	return next
}
