package types

import "fmt"

// Path builders for the coordination store schema (spec §3). Every
// component builds keys through these instead of formatting paths ad hoc,
// so the schema has exactly one place that knows its own shape.

const (
	PrimaryNodePath = "/primary_node"
	NodesRoot       = "/nodes"
	DomainsRoot     = "/domains"
	NetworksRoot    = "/networks"
	CmdRoot         = "/cmd"
	CephRoot        = "/ceph"
)

func NodePath(name string) string { return fmt.Sprintf("%s/%s", NodesRoot, name) }

func NodeDaemonStatePath(name string) string { return NodePath(name) + "/daemon_state" }
func NodeDomainStatePath(name string) string { return NodePath(name) + "/domain_state" }
func NodeRouterStatePath(name string) string { return NodePath(name) + "/router_state" }
func NodeKeepalivePath(name string) string   { return NodePath(name) + "/keepalive" }
func NodeMemFreePath(name string) string     { return NodePath(name) + "/memfree" }
func NodeMemUsedPath(name string) string     { return NodePath(name) + "/memused" }
func NodeCPULoadPath(name string) string     { return NodePath(name) + "/cpuload" }
func NodeVCPUAllocPath(name string) string   { return NodePath(name) + "/vcpualloc" }
func NodeRunningDomainsPath(name string) string { return NodePath(name) + "/runningdomains" }
func NodeDomainsCountPath(name string) string   { return NodePath(name) + "/domainscount" }
func NodeManagementAddrPath(name string) string { return NodePath(name) + "/mgmt_addr" }
func NodeCoordinatorPath(name string) string    { return NodePath(name) + "/coordinator" }

func DomainPath(uuid string) string { return fmt.Sprintf("%s/%s", DomainsRoot, uuid) }

func DomainStatePath(uuid string) string        { return DomainPath(uuid) + "/state" }
func DomainNodePath(uuid string) string         { return DomainPath(uuid) + "/node" }
func DomainLastNodePath(uuid string) string     { return DomainPath(uuid) + "/lastnode" }
func DomainFailedReasonPath(uuid string) string { return DomainPath(uuid) + "/failedreason" }
func DomainXMLPath(uuid string) string          { return DomainPath(uuid) + "/xml" }
func DomainNodeLimitPath(uuid string) string    { return DomainPath(uuid) + "/node_limit" }
func DomainNodeSelectorPath(uuid string) string { return DomainPath(uuid) + "/node_selector" }
func DomainAutostartPath(uuid string) string    { return DomainPath(uuid) + "/node_autostart" }
func DomainRBDListPath(uuid string) string      { return DomainPath(uuid) + "/rbdlist" }

func NetworkPath(vni int) string { return fmt.Sprintf("%s/%d", NetworksRoot, vni) }

func NetworkTypePath(vni int) string        { return NetworkPath(vni) + "/type" }
func NetworkDomainPath(vni int) string      { return NetworkPath(vni) + "/domain" }
func NetworkIP4NetworkPath(vni int) string  { return NetworkPath(vni) + "/ip4_network" }
func NetworkIP4GatewayPath(vni int) string  { return NetworkPath(vni) + "/ip4_gateway" }
func NetworkIP6NetworkPath(vni int) string  { return NetworkPath(vni) + "/ip6_network" }
func NetworkIP6GatewayPath(vni int) string  { return NetworkPath(vni) + "/ip6_gateway" }
func NetworkDHCP4FlagPath(vni int) string   { return NetworkPath(vni) + "/dhcp4_flag" }
func NetworkDHCP4StartPath(vni int) string  { return NetworkPath(vni) + "/dhcp4_start" }
func NetworkDHCP4EndPath(vni int) string    { return NetworkPath(vni) + "/dhcp4_end" }
func NetworkNameServersPath(vni int) string { return NetworkPath(vni) + "/name_servers" }

func NetworkReservationsRoot(vni int) string { return NetworkPath(vni) + "/dhcp4_reservations" }
func NetworkReservationPath(vni int, mac string) string {
	return fmt.Sprintf("%s/%s", NetworkReservationsRoot(vni), mac)
}
func NetworkReservationIPPath(vni int, mac string) string {
	return NetworkReservationPath(vni, mac) + "/ipaddr"
}
func NetworkReservationHostnamePath(vni int, mac string) string {
	return NetworkReservationPath(vni, mac) + "/hostname"
}
func NetworkReservationStaticPath(vni int, mac string) string {
	return NetworkReservationPath(vni, mac) + "/static"
}

func NetworkFirewallRoot(vni int, dir FirewallDirection) string {
	return fmt.Sprintf("%s/firewall_rules/%s", NetworkPath(vni), dir)
}
func NetworkFirewallRulePath(vni int, dir FirewallDirection, seq string) string {
	return fmt.Sprintf("%s/%s", NetworkFirewallRoot(vni, dir), seq)
}
func NetworkFirewallOrderPath(vni int, dir FirewallDirection, seq string) string {
	return NetworkFirewallRulePath(vni, dir, seq) + "/order"
}
func NetworkFirewallRuleTextPath(vni int, dir FirewallDirection, seq string) string {
	return NetworkFirewallRulePath(vni, dir, seq) + "/rule"
}

func CephOSDPath(id string) string      { return fmt.Sprintf("%s/osds/%s", CephRoot, id) }
func CephPoolPath(name string) string   { return fmt.Sprintf("%s/pools/%s", CephRoot, name) }
func CephVolumePath(pool, name string) string {
	return fmt.Sprintf("%s/volumes/%s/%s", CephRoot, pool, name)
}
func CephSnapshotPath(pool, vol, name string) string {
	return fmt.Sprintf("%s/snapshots/%s/%s/%s", CephRoot, pool, vol, name)
}

func CmdChannelPath(channel string) string { return fmt.Sprintf("%s/%s", CmdRoot, channel) }
