package ofp

// Message is any of the ordered output structures the valve core emits for
// a datapath.
type Message interface{ isMessage() }

// FlowModCommand selects the flow-table operation.
type FlowModCommand int

const (
	FlowAdd FlowModCommand = iota
	FlowModify
	FlowModifyStrict
	FlowDelete
	FlowDeleteStrict
)

// FlowMod adds, modifies, or deletes a flow table entry.
type FlowMod struct {
	Table        TableID
	Priority     int
	Match        Match
	Instructions []Instruction
	Cookie       uint64
	IdleTimeout  int
	HardTimeout  int
	Command      FlowModCommand
}

func (FlowMod) isMessage() {}

// GroupType mirrors the OpenFlow 1.3 group types.
type GroupType int

const (
	GroupAll GroupType = iota
	GroupSelect
	GroupIndirect
	GroupFF
)

// GroupModCommand selects the group-table operation.
type GroupModCommand int

const (
	GroupAddCmd GroupModCommand = iota
	GroupModifyCmd
	GroupDeleteCmd
)

// GroupBucket is one output bucket of a group.
type GroupBucket struct {
	Actions []Action
	// WatchPort is used by FF groups for liveness-based failover; unused
	// by the All-type flood groups this controller builds today.
	WatchPort int
}

// GroupMod adds, modifies, or deletes a group table entry.
type GroupMod struct {
	GroupID uint32
	Command GroupModCommand
	Type    GroupType
	Buckets []GroupBucket
}

func (GroupMod) isMessage() {}

// MeterBandType selects how a meter band rate-limits.
type MeterBandType int

const (
	MeterBandDrop MeterBandType = iota
	MeterBandDSCPRemark
)

// MeterBand is one band of a meter.
type MeterBand struct {
	Type      MeterBandType
	Rate      uint32
	BurstSize uint32
}

// MeterModCommand selects the meter-table operation.
type MeterModCommand int

const (
	MeterAddCmd MeterModCommand = iota
	MeterModifyCmd
	MeterDeleteCmd
)

// MeterMod adds, modifies, or deletes a meter.
type MeterMod struct {
	MeterID uint32
	Command MeterModCommand
	Bands   []MeterBand
}

func (MeterMod) isMessage() {}

// PacketOut emits a packet from the controller (gratuitous ARP, RA, LACP/LLDP
// replies, neighbor resolution requests).
type PacketOut struct {
	// InPort is PortController unless this is a punt-and-reinject.
	InPort  int
	Data    []byte
	Actions []Action
}

func (PacketOut) isMessage() {}

// TableFeature describes one table for a TableFeatures message, required by
// hardware profiles that use table-features replies to define the
// pipeline (TFM).
type TableFeature struct {
	Table      TableID
	Name       string
	MaxEntries int
}

// TableFeatures is the table-features request emitted at cold-start on
// hardware profiles with SendTableFeatures set.
type TableFeatures struct {
	Tables []TableFeature
}

func (TableFeatures) isMessage() {}

// AsyncConfig enables/disables asynchronous message classes. Bit layout
// mirrors the three OpenFlow reason masks (packet-in, port-status,
// flow-removed) collapsed to booleans since this controller always wants
// all reasons once a class is enabled.
type AsyncConfig struct {
	PacketIn    bool
	PortStatus  bool
	FlowRemoved bool
}

func (AsyncConfig) isMessage() {}

// Barrier forces strict ordering between messages before and after it on
// hardware profiles with UseBarriers set.
type Barrier struct{}

func (Barrier) isMessage() {}
