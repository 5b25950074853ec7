package virt

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"

	"github.com/parvane/pvcd/pkg/log"
)

// Conn is a Driver backed by a real libvirt connection to the node's own
// libvirtd over its local Unix socket. Migration never needs a second
// connection to the target: LiveMigrate asks the local libvirtd to drive
// the transfer itself via DomainMigrateToURI3's peer-to-peer flag.
type Conn struct {
	mu sync.Mutex
	l  *libvirt.Libvirt

	uri string
}

// DialLocal opens a connection to the local libvirtd Unix socket.
func DialLocal() (*Conn, error) {
	l := libvirt.NewWithDialer(dialers.NewLocal())
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("connect to local libvirtd: %w", err)
	}
	return &Conn{l: l, uri: "qemu:///system"}, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.l != nil {
		err = c.l.Disconnect()
	}
	return err
}

func parseUUID(s string) (libvirt.UUID, error) {
	var u libvirt.UUID
	raw := strings.ReplaceAll(s, "-", "")
	if len(raw) != 32 {
		return u, fmt.Errorf("malformed domain uuid %q", s)
	}
	for i := 0; i < 16; i++ {
		var b byte
		if _, err := fmt.Sscanf(raw[i*2:i*2+2], "%02x", &b); err != nil {
			return u, fmt.Errorf("malformed domain uuid %q: %w", s, err)
		}
		u[i] = b
	}
	return u, nil
}

func toState(libvirtState int32) State {
	switch libvirtState {
	case 1: // VIR_DOMAIN_RUNNING
		return StateRunning
	case 2: // VIR_DOMAIN_BLOCKED
		return StateBlocked
	case 3: // VIR_DOMAIN_PAUSED
		return StatePaused
	case 4: // VIR_DOMAIN_SHUTDOWN
		return StateShuttingDown
	case 5: // VIR_DOMAIN_SHUTOFF
		return StateShutoff
	case 6: // VIR_DOMAIN_CRASHED
		return StateCrashed
	case 7: // VIR_DOMAIN_PMSUSPENDED
		return StatePMSuspended
	default:
		return StateUnknown
	}
}

// Lookup implements Driver.
func (c *Conn) Lookup(ctx context.Context, uuid string) (State, bool, error) {
	u, err := parseUUID(uuid)
	if err != nil {
		return StateUnknown, false, err
	}
	dom, err := c.l.DomainLookupByUUID(u)
	if err != nil {
		if isNotFound(err) {
			return StateUnknown, false, nil
		}
		return StateUnknown, false, fmt.Errorf("lookup domain %s: %w", uuid, err)
	}
	state, _, err := c.l.DomainGetState(dom, 0)
	if err != nil {
		return StateUnknown, true, fmt.Errorf("get state for domain %s: %w", uuid, err)
	}
	return toState(state), true, nil
}

func isNotFound(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "domain not found")
}

// DefineAndCreate implements Driver.
func (c *Conn) DefineAndCreate(ctx context.Context, uuid, xml string) error {
	log.WithDomainID(uuid).Debug().Msg("defining domain from stored xml")
	dom, err := c.l.DomainDefineXML(xml)
	if err != nil {
		return fmt.Errorf("define domain %s: %w", uuid, err)
	}
	if err := c.l.DomainCreate(dom); err != nil {
		return fmt.Errorf("create domain %s: %w", uuid, err)
	}
	return nil
}

// Shutdown implements Driver.
func (c *Conn) Shutdown(ctx context.Context, uuid string) error {
	u, err := parseUUID(uuid)
	if err != nil {
		return err
	}
	dom, err := c.l.DomainLookupByUUID(u)
	if err != nil {
		return fmt.Errorf("lookup domain %s: %w", uuid, err)
	}
	if err := c.l.DomainShutdown(dom); err != nil {
		return fmt.Errorf("shutdown domain %s: %w", uuid, err)
	}
	return nil
}

// Destroy implements Driver.
func (c *Conn) Destroy(ctx context.Context, uuid string) error {
	u, err := parseUUID(uuid)
	if err != nil {
		return err
	}
	dom, err := c.l.DomainLookupByUUID(u)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("lookup domain %s: %w", uuid, err)
	}
	if err := c.l.DomainDestroy(dom); err != nil {
		return fmt.Errorf("destroy domain %s: %w", uuid, err)
	}
	return nil
}

// LiveMigrate implements Driver. The local libvirtd connects to targetURI
// itself (peer-to-peer) and tunnels the migration data over that
// connection, so this process never opens a second libvirt session.
// migrateURI is not passed to libvirt.
func (c *Conn) LiveMigrate(ctx context.Context, uuid, targetURI, migrateURI string) error {
	u, err := parseUUID(uuid)
	if err != nil {
		return err
	}
	dom, err := c.l.DomainLookupByUUID(u)
	if err != nil {
		return fmt.Errorf("lookup domain %s: %w", uuid, err)
	}

	const (
		migrateLive       = 1 << 0
		migratePeer2Peer  = 1 << 1
		migrateTunnelled  = 1 << 2
		migratePersistDst = 1 << 3
	)
	flags := uint64(migrateLive | migratePeer2Peer | migrateTunnelled | migratePersistDst)

	if err := c.l.DomainMigrateToURI3(dom, targetURI, nil, flags); err != nil {
		return fmt.Errorf("migrate domain %s to %s: %w", uuid, targetURI, err)
	}
	return nil
}

// HostInfo implements Driver.
func (c *Conn) HostInfo(ctx context.Context) (HostInfo, error) {
	free, err := c.l.NodeGetFreeMemory()
	if err != nil {
		return HostInfo{}, fmt.Errorf("get free memory: %w", err)
	}
	_, memKB, cpus, _, _, _, _, _, err := c.l.NodeGetInfo()
	if err != nil {
		return HostInfo{}, fmt.Errorf("get node info: %w", err)
	}
	load, err := readLoadAverage()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("failed to read host load average")
		load = 0
	}
	nCPUs := int(cpus)
	if nCPUs == 0 {
		nCPUs = 1
	}
	return HostInfo{
		MemoryTotalBytes: uint64(memKB) * 1024,
		MemoryFreeBytes:  free,
		CPUs:             nCPUs,
		CPULoad:          load / float64(nCPUs),
	}, nil
}

var vcpuTagRE = regexp.MustCompile(`<vcpu[^>]*>\s*(\d+)\s*</vcpu>`)

// DomainVCPUs implements Driver. It reads the configured vCPU count out of
// the domain's live XML description rather than adding a full libvirt XML
// binding dependency just for one integer.
func (c *Conn) DomainVCPUs(ctx context.Context, uuid string) (int, error) {
	u, err := parseUUID(uuid)
	if err != nil {
		return 0, err
	}
	dom, err := c.l.DomainLookupByUUID(u)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("lookup domain %s: %w", uuid, err)
	}
	xmlDesc, err := c.l.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return 0, fmt.Errorf("get xml for domain %s: %w", uuid, err)
	}
	m := vcpuTagRE.FindStringSubmatch(xmlDesc)
	if m == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// readLoadAverage reads the 1-minute load average from /proc/loadavg.
// libvirt's NodeInfo exposes CPU topology, not utilization, so this one
// telemetry field comes from the host directly rather than the
// virtualization connection.
func readLoadAverage() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("malformed /proc/loadavg")
	}
	var load float64
	if _, err := fmt.Sscanf(fields[0], "%f", &load); err != nil {
		return 0, fmt.Errorf("parse /proc/loadavg: %w", err)
	}
	return load, nil
}
