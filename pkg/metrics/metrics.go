// Package metrics implements the controller's labeled gauges/counters,
// backed by github.com/prometheus/client_golang. Every sink method is
// non-blocking and fire-and-forget: Prometheus's in-memory vectors never
// block the caller on I/O.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sink is the interface the valve core depends on. A test double can stub
// this out without pulling in Prometheus.
type Sink interface {
	DPStatus(dp string, up bool)
	DPConnect(dp string)
	DPDisconnect(dp string)
	OFError(dp string)
	FlowMsgsSent(dp string, n int)
	VLANPacketIn(dp string)
	NonVLANPacketIn(dp string)
	IgnoredPacketIn(dp string)
	PortStatus(dp string, port int, up bool)
	PortStackState(dp string, port int, state int)
	PortLACPStatus(dp string, port int, up bool)
	PortLearnBans(dp string, port int)
	VLANHostsLearned(dp string, vid int, delta int)
	VLANLearnBans(dp string, vid int)
	VLANNeighbors(dp string, vid int, version int, n int)
	PortVLANHostsLearned(dp string, port, vid int, n int)
	// LearnedMACs exports one highwater slot of a VLAN's learned-MAC
	// index: index is a cache slot number (0..previous highwater), present
	// reports whether that slot currently holds a live host. Callers must
	// zero every index from the new count up to the previous highwater
	// before setting the indices below the new count, so a shrinking host
	// set doesn't leave stale "present" series behind.
	LearnedMACs(dp string, vid int, index int, present bool)
	ConfigReload(dp string, cold bool)
	StackProbesReceived(dp string, port int)
	StackCablingErrors(dp string, port int)
	ConfigTableNames(dp string, names []string)
	DPDescStats(dp string)
}

// Prom is the Prometheus-backed Sink implementation.
type Prom struct {
	dpStatus             *prometheus.GaugeVec
	dpConnections        *prometheus.CounterVec
	dpDisconnections     *prometheus.CounterVec
	ofErrors             *prometheus.CounterVec
	flowMsgsSent         *prometheus.CounterVec
	vlanPacketIns        *prometheus.CounterVec
	nonVLANPacketIns     *prometheus.CounterVec
	ignoredPacketIns     *prometheus.CounterVec
	portStatus           *prometheus.GaugeVec
	portStackState       *prometheus.GaugeVec
	portLACPStatus       *prometheus.GaugeVec
	portLearnBans        *prometheus.CounterVec
	vlanHostsLearned     *prometheus.GaugeVec
	vlanLearnBans        *prometheus.CounterVec
	vlanNeighbors        *prometheus.GaugeVec
	portVLANHostsLearned *prometheus.GaugeVec
	learnedMACs          *prometheus.GaugeVec
	coldReloads          *prometheus.CounterVec
	warmReloads          *prometheus.CounterVec
	stackProbesReceived  *prometheus.CounterVec
	stackCablingErrors   *prometheus.CounterVec
	dpDescStats          *prometheus.CounterVec
}

// NewProm registers every metric against reg and returns the sink.
func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		dpStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dp_status", Help: "1 if the datapath is connected and running, else 0.",
		}, []string{"dp_id"}),
		dpConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "of_dp_connections", Help: "Number of times this datapath has connected.",
		}, []string{"dp_id"}),
		dpDisconnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "of_dp_disconnections", Help: "Number of times this datapath has disconnected.",
		}, []string{"dp_id"}),
		ofErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "of_errors", Help: "Number of OpenFlow error messages received.",
		}, []string{"dp_id"}),
		flowMsgsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "of_flowmsgs_sent", Help: "Number of flow modification messages sent.",
		}, []string{"dp_id"}),
		vlanPacketIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "of_vlan_packet_ins", Help: "Number of VLAN-tagged packet-ins received.",
		}, []string{"dp_id"}),
		nonVLANPacketIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "of_non_vlan_packet_ins", Help: "Number of non-VLAN packet-ins received.",
		}, []string{"dp_id"}),
		ignoredPacketIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "of_ignored_packet_ins", Help: "Number of packet-ins dropped at validation.",
		}, []string{"dp_id"}),
		portStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "port_status", Help: "1 if the port is up, else 0.",
		}, []string{"dp_id", "port"}),
		portStackState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "port_stack_state", Help: "Stack link state: 0=INIT 1=UP 2=DOWN.",
		}, []string{"dp_id", "port"}),
		portLACPStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "port_lacp_status", Help: "1 if the LACP bundle member is up, else 0.",
		}, []string{"dp_id", "port"}),
		portLearnBans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "port_learn_bans", Help: "Number of learn-ban events on this port.",
		}, []string{"dp_id", "port"}),
		vlanHostsLearned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vlan_hosts_learned", Help: "Number of hosts currently learned on this VLAN.",
		}, []string{"dp_id", "vlan"}),
		vlanLearnBans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vlan_learn_bans", Help: "Number of learn-ban events on this VLAN.",
		}, []string{"dp_id", "vlan"}),
		vlanNeighbors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vlan_neighbors", Help: "Number of resolved neighbors on this VLAN.",
		}, []string{"dp_id", "vlan", "ip_version"}),
		portVLANHostsLearned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "port_vlan_hosts_learned", Help: "Number of hosts learned on this port+VLAN.",
		}, []string{"dp_id", "port", "vlan"}),
		learnedMACs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "learned_macs", Help: "1 if this learned-MAC cache slot holds a live host, else 0.",
		}, []string{"dp_id", "vlan", "n"}),
		coldReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faucet_config_reload_cold", Help: "Number of cold config reloads.",
		}, []string{"dp_id"}),
		warmReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faucet_config_reload_warm", Help: "Number of warm config reloads.",
		}, []string{"dp_id"}),
		stackProbesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stack_probes_received", Help: "Number of stack LLDP probes received.",
		}, []string{"dp_id", "port"}),
		stackCablingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stack_cabling_errors", Help: "Number of stack cabling mismatches detected.",
		}, []string{"dp_id", "port"}),
		dpDescStats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "of_dp_desc_stats", Help: "Number of ofdescstats replies received.",
		}, []string{"dp_id"}),
	}
	for _, c := range p.collectors() {
		reg.MustRegister(c)
	}
	return p
}

func (p *Prom) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.dpStatus, p.dpConnections, p.dpDisconnections, p.ofErrors, p.flowMsgsSent,
		p.vlanPacketIns, p.nonVLANPacketIns, p.ignoredPacketIns, p.portStatus,
		p.portStackState, p.portLACPStatus, p.portLearnBans, p.vlanHostsLearned,
		p.vlanLearnBans, p.vlanNeighbors, p.portVLANHostsLearned, p.learnedMACs,
		p.coldReloads, p.warmReloads, p.stackProbesReceived, p.stackCablingErrors,
		p.dpDescStats,
	}
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (p *Prom) DPStatus(dp string, up bool)    { p.dpStatus.WithLabelValues(dp).Set(boolVal(up)) }
func (p *Prom) DPConnect(dp string)            { p.dpConnections.WithLabelValues(dp).Inc() }
func (p *Prom) DPDisconnect(dp string)         { p.dpDisconnections.WithLabelValues(dp).Inc() }
func (p *Prom) OFError(dp string)              { p.ofErrors.WithLabelValues(dp).Inc() }
func (p *Prom) FlowMsgsSent(dp string, n int)  { p.flowMsgsSent.WithLabelValues(dp).Add(float64(n)) }
func (p *Prom) VLANPacketIn(dp string)         { p.vlanPacketIns.WithLabelValues(dp).Inc() }
func (p *Prom) NonVLANPacketIn(dp string)      { p.nonVLANPacketIns.WithLabelValues(dp).Inc() }
func (p *Prom) IgnoredPacketIn(dp string)      { p.ignoredPacketIns.WithLabelValues(dp).Inc() }

func (p *Prom) PortStatus(dp string, port int, up bool) {
	p.portStatus.WithLabelValues(dp, portLabel(port)).Set(boolVal(up))
}
func (p *Prom) PortStackState(dp string, port int, state int) {
	p.portStackState.WithLabelValues(dp, portLabel(port)).Set(float64(state))
}
func (p *Prom) PortLACPStatus(dp string, port int, up bool) {
	p.portLACPStatus.WithLabelValues(dp, portLabel(port)).Set(boolVal(up))
}
func (p *Prom) PortLearnBans(dp string, port int) {
	p.portLearnBans.WithLabelValues(dp, portLabel(port)).Inc()
}
func (p *Prom) VLANHostsLearned(dp string, vid int, delta int) {
	g := p.vlanHostsLearned.WithLabelValues(dp, vlanLabel(vid))
	g.Add(float64(delta))
}
func (p *Prom) VLANLearnBans(dp string, vid int) {
	p.vlanLearnBans.WithLabelValues(dp, vlanLabel(vid)).Inc()
}
func (p *Prom) VLANNeighbors(dp string, vid int, version int, n int) {
	p.vlanNeighbors.WithLabelValues(dp, vlanLabel(vid), ipVersionLabel(version)).Set(float64(n))
}
func (p *Prom) PortVLANHostsLearned(dp string, port, vid int, n int) {
	p.portVLANHostsLearned.WithLabelValues(dp, portLabel(port), vlanLabel(vid)).Set(float64(n))
}
func (p *Prom) LearnedMACs(dp string, vid int, index int, present bool) {
	p.learnedMACs.WithLabelValues(dp, vlanLabel(vid), portLabel(index)).Set(boolVal(present))
}
func (p *Prom) ConfigReload(dp string, cold bool) {
	if cold {
		p.coldReloads.WithLabelValues(dp).Inc()
	} else {
		p.warmReloads.WithLabelValues(dp).Inc()
	}
}
func (p *Prom) StackProbesReceived(dp string, port int) {
	p.stackProbesReceived.WithLabelValues(dp, portLabel(port)).Inc()
}
func (p *Prom) StackCablingErrors(dp string, port int) {
	p.stackCablingErrors.WithLabelValues(dp, portLabel(port)).Inc()
}
func (p *Prom) ConfigTableNames(dp string, names []string) {
	// faucet_config_table_names is informational; exported as a single
	// constant-value gauge per table name would require a dynamic label
	// set, which Prometheus can't express cleanly, so this is logged by
	// the caller instead of mirrored to a metric (see pkg/valve/valve.go).
	_ = names
}
func (p *Prom) DPDescStats(dp string) { p.dpDescStats.WithLabelValues(dp).Inc() }
