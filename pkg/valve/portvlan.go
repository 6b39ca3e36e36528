package valve

import "github.com/l2fabric/valved/pkg/ofp"

// IsUntagged reports whether port carries vid untagged (native VLAN).
func (c *PortConfig) IsUntagged(vid VID) bool {
	return c.NativeVLAN == vid
}

// IsTagged reports whether port carries vid tagged.
func (c *PortConfig) IsTagged(vid VID) bool {
	for _, v := range c.TaggedVLANs {
		if v == vid {
			return true
		}
	}
	return false
}

// MemberOf reports whether port is a member (tagged or untagged) of vid.
func (c *PortConfig) MemberOf(vid VID) bool {
	return c.IsUntagged(vid) || c.IsTagged(vid)
}

// EgressActions builds the action list to emit a frame for vlan out port,
// popping the 802.1Q tag for the port's native VLAN and leaving it in place
// for a tagged member — shared by the host manager's eth_dst flows and the
// flood manager's output sets.
func EgressActions(port *PortConfig, vid VID) []ofp.Action {
	var actions []ofp.Action
	if port.IsUntagged(vid) {
		actions = append(actions, ofp.PopVLAN{})
	}
	actions = append(actions, ofp.Output{Port: port.Number})
	return actions
}

// IngressVIDActions builds the action list used by vlan-table ingress
// processing: a native-VLAN port needs its traffic pushed into vid before
// continuing; a tagged member needs no rewrite (the tag already matches).
func IngressVIDActions(port *PortConfig, vid VID) []ofp.Action {
	if port.IsUntagged(vid) {
		return []ofp.Action{ofp.PushVLAN{VID: vid}}
	}
	return nil
}
