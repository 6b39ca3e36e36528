// Package valvetest loads YAML datapath fixtures for tests and the
// valvectl demo command: scenario files are parsed into typed Go structs
// and built into a valve.DPConfig before driving a valve.Valve.
package valvetest

import (
	"fmt"
	"net"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/l2fabric/valved/pkg/ofp"
	"github.com/l2fabric/valved/pkg/valve"
)

// Fixture is the parsed YAML shape of one datapath's declared
// configuration.
type Fixture struct {
	Name     string        `yaml:"name"`
	DPID     uint64        `yaml:"dp_id"`
	Hardware string        `yaml:"hardware,omitempty"`
	Stack    *StackFixture `yaml:"stack,omitempty"`

	Ports map[string]PortFixture `yaml:"interfaces"`
	VLANs map[int]VLANFixture    `yaml:"vlans"`

	Timeouts TimeoutsFixture `yaml:"timeouts,omitempty"`

	UseGroupTables bool `yaml:"use_group_table,omitempty"`
	GratuitousARP  bool `yaml:"gratuitous_arp,omitempty"`

	HasIPv4FIB   bool `yaml:"has_ipv4_fib,omitempty"`
	HasIPv6FIB   bool `yaml:"has_ipv6_fib,omitempty"`
	HasVIP       bool `yaml:"has_vip,omitempty"`
	HasVLANACL   bool `yaml:"has_vlan_acl,omitempty"`
	HasPortACL   bool `yaml:"has_port_acl,omitempty"`
	HasEgressACL bool `yaml:"has_egress_acl,omitempty"`
}

// StackFixture names this DP's position in the stack.
type StackFixture struct {
	Priority int `yaml:"priority,omitempty"`
}

// PortFixture is one interface's YAML shape, keyed by port number as a
// string (YAML map keys must be scalars the decoder can round-trip).
type PortFixture struct {
	Number int    `yaml:"number,omitempty"`
	Name   string `yaml:"name,omitempty"`

	NativeVLAN  int   `yaml:"native_vlan,omitempty"`
	TaggedVLANs []int `yaml:"tagged_vlans,omitempty"`

	StackDP   string `yaml:"stack_dp,omitempty"`
	StackPort int    `yaml:"stack_port,omitempty"`

	LACP        bool `yaml:"lacp,omitempty"`
	LACPBundle  int  `yaml:"lacp_bundle,omitempty"`

	PermanentLearn       bool `yaml:"permanent_learn,omitempty"`
	RestrictedBcastArpNd bool `yaml:"restricted_bcast_arp_nd,omitempty"`

	ACLsIn []string `yaml:"acls_in,omitempty"`
}

// VLANFixture is one VLAN's YAML shape.
type VLANFixture struct {
	Name      string   `yaml:"name,omitempty"`
	FaucetMAC string   `yaml:"faucet_mac,omitempty"`
	FaucetVIPs []string `yaml:"faucet_vips,omitempty"`
	MaxHosts  int      `yaml:"max_hosts,omitempty"`
	ACLsIn    []string `yaml:"acls_in,omitempty"`
}

// TimeoutsFixture overrides valve.DefaultTimeouts() fields present in the
// YAML; zero-value fields fall back to the defaults.
type TimeoutsFixture struct {
	IdleTimeoutSeconds int `yaml:"idle_timeout,omitempty"`
	HardTimeoutSeconds int `yaml:"hard_timeout,omitempty"`
	LearnJitter        int `yaml:"learn_jitter,omitempty"`
}

// Parse decodes a YAML fixture document into a Fixture.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing valve fixture: %w", err)
	}
	return &f, nil
}

// Build converts a Fixture into a *valve.DPConfig ready to hand to
// valve.NewValve.
func (f *Fixture) Build() (*valve.DPConfig, error) {
	cfg := &valve.DPConfig{
		Name:           f.Name,
		ID:             f.DPID,
		Hardware:       ofp.HardwareProfile(firstNonEmpty(f.Hardware, string(ofp.Generic))),
		Ports:          make(map[int]*valve.PortConfig),
		VLANs:          make(map[valve.VID]*valve.VLANConfig),
		UseGroupTables: f.UseGroupTables,
		GratuitousARP:  f.GratuitousARP,
		Tables: valve.TableConfig{
			HasPortACL:   f.HasPortACL,
			HasVLANACL:   f.HasVLANACL,
			HasIPv4FIB:   f.HasIPv4FIB,
			HasIPv6FIB:   f.HasIPv6FIB,
			HasVIP:       f.HasVIP,
			HasEgressACL: f.HasEgressACL,
		},
		Timeouts: f.buildTimeouts(),
	}
	if f.Stack != nil {
		cfg.StackRootName = f.Name
	}

	for _, pf := range f.Ports {
		pc := &valve.PortConfig{
			Number:               pf.Number,
			Name:                 pf.Name,
			NativeVLAN:           valve.VID(pf.NativeVLAN),
			PermanentLearn:       pf.PermanentLearn,
			RestrictedBcastArpNd: pf.RestrictedBcastArpNd,
			ACLsIn:               pf.ACLsIn,
		}
		for _, v := range pf.TaggedVLANs {
			pc.TaggedVLANs = append(pc.TaggedVLANs, valve.VID(v))
		}
		if pf.StackDP != "" {
			pc.Stack = &valve.StackPeer{DPName: pf.StackDP, Port: pf.StackPort}
		}
		if pf.LACP {
			pc.LACP = &valve.LACPConfig{BundleID: pf.LACPBundle}
		}
		cfg.Ports[pc.Number] = pc
	}

	for vid, vf := range f.VLANs {
		vc := &valve.VLANConfig{
			VID:      valve.VID(vid),
			Name:     vf.Name,
			MaxHosts: vf.MaxHosts,
			ACLsIn:   vf.ACLsIn,
		}
		if vf.FaucetMAC != "" {
			mac, err := net.ParseMAC(vf.FaucetMAC)
			if err != nil {
				return nil, fmt.Errorf("vlan %d faucet_mac: %w", vid, err)
			}
			vc.FaucetMAC = mac
		}
		for _, s := range vf.FaucetVIPs {
			ip, ipnet, err := net.ParseCIDR(s)
			if err != nil {
				return nil, fmt.Errorf("vlan %d faucet_vip %q: %w", vid, s, err)
			}
			ipnet.IP = ip
			if ip.To4() != nil {
				vc.FaucetVIPsV4 = append(vc.FaucetVIPsV4, *ipnet)
			} else {
				vc.FaucetVIPsV6 = append(vc.FaucetVIPsV6, *ipnet)
			}
		}
		cfg.VLANs[vc.VID] = vc
	}

	return cfg, nil
}

func (f *Fixture) buildTimeouts() valve.TimeoutConfig {
	t := valve.DefaultTimeouts()
	if f.Timeouts.IdleTimeoutSeconds > 0 {
		t.IdleTimeout = time.Duration(f.Timeouts.IdleTimeoutSeconds) * time.Second
	}
	if f.Timeouts.HardTimeoutSeconds > 0 {
		t.HardTimeout = time.Duration(f.Timeouts.HardTimeoutSeconds) * time.Second
	}
	if f.Timeouts.LearnJitter > 0 {
		t.LearnJitter = f.Timeouts.LearnJitter
	}
	return t
}

func firstNonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
