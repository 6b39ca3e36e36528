package ofp

// TableID names a pipeline table. Managers target tables by name through
// the Pipeline component — never by a hard-coded numeric id.
type TableID string

const (
	TablePortACL      TableID = "port_acl"
	TableVLAN         TableID = "vlan"
	TableVLANACL      TableID = "vlan_acl"
	TableEthSrc       TableID = "eth_src"
	TableIPv4FIB      TableID = "ipv4_fib"
	TableIPv6FIB      TableID = "ipv6_fib"
	TableVIP          TableID = "vip"
	TableEthDst       TableID = "eth_dst"
	TableEthDstHairpin TableID = "eth_dst_hairpin"
	TableFlood        TableID = "flood"
	TableEgressACL    TableID = "egress_acl"
)
