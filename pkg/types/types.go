package types

import (
	"time"
)

// DaemonState is the lifecycle state a node's own agent process reports
// about itself at /nodes/<name>/daemon_state.
type DaemonState string

const (
	DaemonStateInit   DaemonState = "init"
	DaemonStateRun    DaemonState = "run"
	DaemonStateStop   DaemonState = "stop"
	DaemonStateDead   DaemonState = "dead"
	DaemonStateFenced DaemonState = "fenced"
)

// DomainState is the workload-evacuation state a node reports about itself
// at /nodes/<name>/domain_state. Unrelated to VM domain state below; it
// names the node's willingness to host domains.
type DomainState string

const (
	NodeDomainStateReady   DomainState = "ready"
	NodeDomainStateFlush   DomainState = "flush"
	NodeDomainStateFlushed DomainState = "flushed"
)

// RouterState is the gateway-ownership role a coordinator node reports at
// /nodes/<name>/router_state.
type RouterState string

const (
	RouterStatePrimary    RouterState = "primary"
	RouterStateSecondary  RouterState = "secondary"
	RouterStateTakeover   RouterState = "takeover"
	RouterStateRelinquish RouterState = "relinquish"
)

// Node is a hypervisor host participating in the cluster.
type Node struct {
	Name         string
	Coordinator  bool // eligible to contend for /primary_node
	DaemonState  DaemonState
	DomainState  DomainState
	RouterState  RouterState
	Keepalive    int64 // monotonic seconds of last heartbeat
	CreatedAt    time.Time

	// Telemetry, republished every KSE tick.
	MemFreeBytes     int64
	MemUsedBytes     int64
	CPULoad          float64
	VCPUAlloc        int
	RunningDomains   []string
	DomainsCount     int

	ManagementAddr string // out-of-band power management endpoint, for FM
}

// Age reports how long it has been since the node's last recorded
// keepalive, given the current monotonic clock reading in seconds.
func (n *Node) Age(nowSeconds int64) time.Duration {
	return time.Duration(nowSeconds-n.Keepalive) * time.Second
}

// DomainRunState is the VM lifecycle state recorded at /domains/<uuid>/state.
type DomainRunState string

const (
	DomainStart     DomainRunState = "start"
	DomainRestart   DomainRunState = "restart"
	DomainShutdown  DomainRunState = "shutdown"
	DomainStop      DomainRunState = "stop"
	DomainDisable   DomainRunState = "disable"
	DomainMigrate   DomainRunState = "migrate"
	DomainUnmigrate DomainRunState = "unmigrate"
	DomainProvision DomainRunState = "provision"
	DomainFail      DomainRunState = "fail"
)

// NodeSelector names the placement strategy used when a domain must be
// relocated (flush, fence recovery) without an explicit target.
type NodeSelector string

const (
	SelectorMem   NodeSelector = "mem"
	SelectorLoad  NodeSelector = "load"
	SelectorVCPUs NodeSelector = "vcpus"
	SelectorVMs   NodeSelector = "vms"
)

// Domain is a guest VM definition and its desired/observed state.
type Domain struct {
	UUID          string
	Name          string
	State         DomainRunState
	Node          string // node the domain should run on
	LastNode      string // previous node, for unmigrate
	FailedReason  string
	XML           string // opaque guest description blob
	NodeLimit     []string
	NodeSelector  NodeSelector
	NodeAutostart bool
	RBDList       []string // block-device identifiers backing this domain
	CreatedAt     time.Time
}

// Network is an overlay network definition.
type Network struct {
	VNI           int
	Type          NetworkType
	Domain        string // DNS domain served for this network, if managed
	IP4Network    string // CIDR
	IP4Gateway    string
	IP6Network    string
	IP6Gateway    string
	DHCP4Flag     bool
	DHCP4Start    string
	DHCP4End      string
	NameServers   []string
	CreatedAt     time.Time
}

// NetworkType distinguishes networks the cluster owns L3 addressing for
// from pure L2 bridges.
type NetworkType string

const (
	NetworkManaged NetworkType = "managed"
	NetworkBridged NetworkType = "bridged"
)

// DHCPReservation is a static or dynamic lease record for a network.
type DHCPReservation struct {
	VNI      int
	MAC      string
	IPAddr   string
	Hostname string
	Static   bool
}

// FirewallDirection is the chain a firewall rule applies to.
type FirewallDirection string

const (
	FirewallIn  FirewallDirection = "in"
	FirewallOut FirewallDirection = "out"
)

// FirewallRule is one ordered ACL entry for a network's forward chain.
type FirewallRule struct {
	VNI       int
	Direction FirewallDirection
	Seq       string // <seq>_<desc> key suffix
	Order     int
	Rule      string // opaque rule text passed to the packet filter
}

// CephOSD is storage telemetry for one OSD, written by the primary.
type CephOSD struct {
	ID    string
	Node  string
	Stats map[string]string
}

// CephPool is storage telemetry for one pool, written by the primary.
type CephPool struct {
	Name  string
	PGs   int
	Stats map[string]string
}

// CephVolume is storage telemetry for one RBD volume.
type CephVolume struct {
	Pool  string
	Name  string
	Stats map[string]string
}

// CephSnapshot is storage telemetry for one RBD snapshot.
type CephSnapshot struct {
	Pool    string
	Volume  string
	Name    string
	Stats   map[string]string
}

// RBDLock is one exclusive write lease reported by `rbd lock list`.
type RBDLock struct {
	ID     string // lock ID
	Locker string // client identifier holding the lock
}

// Command is a single request/response exchange under /cmd/<channel>.
// Writer writes the verb+args; the authoritative handler writes
// "success-<request>" or "failure-<request>" back to the same key.
type Command struct {
	Channel string // e.g. "domains", "ceph"
	Request string // verbatim "<verb> <args>" payload
	Result  CommandResult
	Message string
}

// CommandResult is the outcome a Command Queue handler writes back.
type CommandResult string

const (
	CommandPending CommandResult = ""
	CommandSuccess CommandResult = "success"
	CommandFailure CommandResult = "failure"
)
