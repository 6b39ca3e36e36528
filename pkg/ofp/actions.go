package ofp

// Action is one action inside an ApplyActions/WriteActions instruction or a
// group bucket.
type Action interface{ isAction() }

// Output sends the packet out a port. Port may be one of the PortX
// constants or a real port number.
type Output struct {
	Port int
	// MaxLen truncates the packet when Port == PortController (used for
	// the LACP SLOW-protocol punt, truncated to LACPSize).
	MaxLen int
}

func (Output) isAction() {}

// PushVLAN pushes an 802.1Q tag with the given VID.
type PushVLAN struct{ VID VID }

func (PushVLAN) isAction() {}

// PopVLAN strips the outermost 802.1Q tag.
type PopVLAN struct{}

func (PopVLAN) isAction() {}

// SetField rewrites a single OXM field, e.g. {"eth_dst", mac.String()}.
type SetField struct {
	Field string
	Value string
}

func (SetField) isAction() {}

// Group directs the packet to a group table entry (used by the
// non-stacked flood manager when group tables are configured).
type Group struct{ GroupID uint32 }

func (Group) isAction() {}

// DecTTL decrements the IP TTL / hop limit, gated by the hardware profile's
// DecTTL trait.
type DecTTL struct{}

func (DecTTL) isAction() {}

// Instruction is one instruction of a flow-mod: a goto, an action list
// applied immediately, an action list written to the action set, or a
// meter reference.
type Instruction interface{ isInstruction() }

// GotoTable directs the packet to the next table in the pipeline.
type GotoTable struct{ Table TableID }

func (GotoTable) isInstruction() {}

// ApplyActions executes actions immediately, in list order.
type ApplyActions struct{ Actions []Action }

func (ApplyActions) isInstruction() {}

// WriteActions merges actions into the per-packet action set, executed at
// the end of the pipeline.
type WriteActions struct{ Actions []Action }

func (WriteActions) isInstruction() {}

// MeterInstruction references a meter to rate-limit the flow.
type MeterInstruction struct{ MeterID uint32 }

func (MeterInstruction) isInstruction() {}
