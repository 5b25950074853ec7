/*
Package types defines the data structures shared across the agent: nodes,
domains (guest VMs), overlay networks, firewall rules, DHCP leases, Ceph
storage entities, and the command-queue request/response envelope.

# Architecture

Every type here mirrors one entity in the coordination store's data model
(see pkg/coord): a struct's fields are either owned by the local node (and
written only by it) or owned by a requester/primary and treated as
read-only elsewhere. Which node writes which field is documented per type.

# Core Types

Node topology:
  - Node: a hypervisor host, its daemon/domain/router state and telemetry
  - DaemonState, DomainState, RouterState: node-reported lifecycle enums

VM lifecycle:
  - Domain: a guest VM's desired/observed state and scheduling policy
  - DomainRunState: the state machine driven by pkg/vmctl
  - NodeSelector: placement strategy used for flush/fence relocation

Networking:
  - Network, DHCPReservation, FirewallRule: overlay network configuration
    owned by pkg/netctl

Storage:
  - CephOSD, CephPool, CephVolume, CephSnapshot, RBDLock: telemetry and
    lock state surfaced by pkg/storagefacade

Command queue:
  - Command, CommandResult: the /cmd/* request/response envelope consumed
    by pkg/cmdqueue

# Thread Safety

Values are plain structs with no internal locking; callers own
synchronization the same way pkg/coord callers own locking for the paths
these types are marshaled to and from.
*/
package types
