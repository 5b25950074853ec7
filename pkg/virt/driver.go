package virt

import "context"

// State is the libvirt domain run state, collapsed to what the VM
// Controller's reconciliation algorithm needs to distinguish.
type State int

const (
	StateUnknown State = iota
	StateRunning
	StateBlocked
	StatePaused
	StateShuttingDown
	StateShutoff
	StateCrashed
	StatePMSuspended
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StatePaused:
		return "paused"
	case StateShuttingDown:
		return "shutting_down"
	case StateShutoff:
		return "shutoff"
	case StateCrashed:
		return "crashed"
	case StatePMSuspended:
		return "pmsuspended"
	default:
		return "unknown"
	}
}

// Running reports whether the domain should be counted as a live workload.
func (s State) Running() bool {
	return s == StateRunning || s == StateBlocked || s == StatePaused
}

// HostInfo is host-level telemetry. Memory and CPU count are read straight
// from the virtualization connection, the way
// NodeInstance.py.setup_local_node reads them from libvirt.open(); CPULoad
// is read from the host's /proc/loadavg.
type HostInfo struct {
	MemoryTotalBytes uint64
	MemoryFreeBytes  uint64
	CPUs             int
	CPULoad          float64 // 1-minute load average, normalized by CPUs
}

// Driver is the local virtualization surface the VM Controller reconciles
// against. It is satisfied by *Conn (go-libvirt) in production and by a
// fake in tests, mirroring the way the teacher's worker wraps
// *runtime.ContainerdRuntime behind its own call sites.
type Driver interface {
	// Lookup reports whether a domain with the given UUID is known to
	// libvirt and, if so, its current state.
	Lookup(ctx context.Context, uuid string) (state State, exists bool, err error)

	// DefineAndCreate defines a persistent domain from xml and starts it
	// (cold start path: state=start with the domain not already present).
	DefineAndCreate(ctx context.Context, uuid, xml string) error

	// Shutdown requests a graceful ACPI shutdown.
	Shutdown(ctx context.Context, uuid string) error

	// Destroy forcibly stops the domain immediately.
	Destroy(ctx context.Context, uuid string) error

	// LiveMigrate requests a live migration of uuid to targetURI
	// (qemu+tcp://<target>.<cluster_domain>/system). migrateURI names a
	// transport URI for the migration data; *Conn does not apply it and
	// tunnels the data over its connection to targetURI instead.
	LiveMigrate(ctx context.Context, uuid, targetURI, migrateURI string) error

	// HostInfo returns host telemetry for publishing into the
	// coordination store.
	HostInfo(ctx context.Context) (HostInfo, error)

	// DomainVCPUs returns the vCPU count configured for uuid, for the Node
	// Supervisor's vcpualloc telemetry.
	DomainVCPUs(ctx context.Context, uuid string) (int, error)

	// Close releases the underlying connection.
	Close() error
}
