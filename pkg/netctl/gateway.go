package netctl

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/metrics"
	"github.com/parvane/pvcd/pkg/types"
)

// dhcpDaemon is the subset of process.Daemon's lifecycle the gateway
// logic needs, carved out (same justification as CommandRunner) so
// AssertGateways is testable without spawning a real dnsmasq binary.
type dhcpDaemon interface {
	Running() bool
	Start() error
	Reload() error
	Stop() error
}

// Controller is the per-node Network Controller: it keeps local
// overlay+bridge interfaces in sync with /networks, and when this node
// holds /primary_node, owns gateway addressing, DHCP/DNS, and the
// firewall ruleset for every managed network. Implements
// nodesup.GatewayAsserter.
type Controller struct {
	coord     *coord.Client
	runner    CommandRunner
	carrier   string
	leaseBase string

	mu         sync.Mutex
	overlays   map[int]bool
	gatewaysUp map[int]bool
	daemons    map[int]dhcpDaemon
	leases     map[int]*leaseListener
	newDaemon  func(leaseBase string, n *types.Network, scriptPath string) dhcpDaemon

	cancelWatch func()
}

// NewController builds a Controller. carrier is the physical interface
// vxlan encapsulation rides over (e.g. "eth0").
func NewController(c *coord.Client, runner CommandRunner, carrier string) *Controller {
	return &Controller{
		coord:      c,
		runner:     runner,
		carrier:    carrier,
		leaseBase:  DefaultLeaseDirBase,
		overlays:   make(map[int]bool),
		gatewaysUp: make(map[int]bool),
		daemons:    make(map[int]dhcpDaemon),
		leases:     make(map[int]*leaseListener),
		newDaemon: func(leaseBase string, n *types.Network, scriptPath string) dhcpDaemon {
			return newDnsmasqDaemon(leaseBase, n, scriptPath)
		},
	}
}

// SetLeaseDirBase overrides the on-disk root for dnsmasq lease/reservation
// files, used by tests to avoid touching /var/lib/dnsmasq.
func (ctl *Controller) SetLeaseDirBase(base string) { ctl.leaseBase = base }

// SetDaemonFactory overrides how per-network DHCP daemons are constructed,
// used by tests to substitute a fake instead of spawning dnsmasq.
func (ctl *Controller) SetDaemonFactory(f func(leaseBase string, n *types.Network, scriptPath string) dhcpDaemon) {
	ctl.newDaemon = f
}

// Start ensures an overlay exists for every currently-defined network and
// arms a children watch on /networks to keep that set current.
func (ctl *Controller) Start(ctx context.Context) error {
	if err := ctl.runner.Run(ctx, "nft", "add", "table", "inet", "pvc"); err != nil && !isExists(err) {
		return fmt.Errorf("create nft table: %w", err)
	}

	networks, err := ListNetworks(ctl.coord)
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range networks {
		if err := ctl.ensureOverlay(ctx, n.VNI); err != nil {
			log.WithVNI(n.VNI).Error().Err(err).Msg("overlay setup failed")
		}
	}

	ctl.cancelWatch = ctl.coord.WatchChildren(types.NetworksRoot, func(childPath string, deleted bool) coord.Action {
		vni, ok := vniFromChildPath(childPath)
		if !ok {
			return coord.Continue
		}
		if deleted {
			if err := ctl.removeOverlay(context.Background(), vni); err != nil {
				log.WithVNI(vni).Error().Err(err).Msg("overlay removal failed")
			}
		} else if err := ctl.ensureOverlay(context.Background(), vni); err != nil {
			log.WithVNI(vni).Error().Err(err).Msg("overlay setup failed")
		}
		return coord.Continue
	})
	return nil
}

// Stop cancels the network watch. Interfaces are left in place; they are
// only torn down on explicit network removal.
func (ctl *Controller) Stop() {
	if ctl.cancelWatch != nil {
		ctl.cancelWatch()
	}
}

func (ctl *Controller) ensureOverlay(ctx context.Context, vni int) error {
	if err := EnsureOverlay(ctx, ctl.runner, vni, ctl.carrier); err != nil {
		return err
	}
	ctl.mu.Lock()
	ctl.overlays[vni] = true
	ctl.mu.Unlock()
	return nil
}

func (ctl *Controller) removeOverlay(ctx context.Context, vni int) error {
	ctl.mu.Lock()
	delete(ctl.overlays, vni)
	ctl.mu.Unlock()
	return RemoveOverlay(ctx, ctl.runner, vni)
}

// AssertGateways implements nodesup.GatewayAsserter. It brings up gateway
// addressing, DHCP, and firewall rules for every managed network that
// doesn't already have them locally, called on every KSE tick while this
// node is primary.
func (ctl *Controller) AssertGateways(ctx context.Context) error {
	networks, err := ListNetworks(ctl.coord)
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}

	var firstErr error
	for _, n := range networks {
		if n.Type != types.NetworkManaged {
			continue
		}
		if err := ctl.assertOne(ctx, n); err != nil {
			log.WithVNI(n.VNI).Error().Err(err).Msg("gateway assertion failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (ctl *Controller) assertOne(ctx context.Context, n *types.Network) error {
	ctl.mu.Lock()
	already := ctl.gatewaysUp[n.VNI]
	ctl.mu.Unlock()

	bridge := bridgeName(n.VNI)

	if !already {
		if n.IP4Gateway != "" && n.IP4Network != "" {
			cidr := gatewayCIDR(n.IP4Gateway, n.IP4Network)
			if err := ctl.runner.Run(ctx, "ip", "addr", "add", cidr, "dev", bridge); err != nil && !isExists(err) {
				return fmt.Errorf("add ipv4 gateway: %w", err)
			}
			if err := ctl.runner.Run(ctx, "arping", "-U", "-c", "2", "-I", bridge, n.IP4Gateway); err != nil {
				log.WithVNI(n.VNI).Warn().Err(err).Msg("gratuitous arp failed")
			}
		}
		if n.IP6Gateway != "" && n.IP6Network != "" {
			cidr := gatewayCIDR(n.IP6Gateway, n.IP6Network)
			if err := ctl.runner.Run(ctx, "ip", "-6", "addr", "add", cidr, "dev", bridge); err != nil && !isExists(err) {
				return fmt.Errorf("add ipv6 gateway: %w", err)
			}
		}
		ctl.mu.Lock()
		ctl.gatewaysUp[n.VNI] = true
		ctl.mu.Unlock()
	}

	if n.DHCP4Flag {
		if err := ctl.assertDHCP(n); err != nil {
			return fmt.Errorf("assert dhcp: %w", err)
		}
	}

	for _, dir := range []types.FirewallDirection{types.FirewallIn, types.FirewallOut} {
		if err := MaterializeFirewall(ctx, ctl.runner, ctl.coord, n.VNI, dir); err != nil {
			return fmt.Errorf("materialize firewall %s: %w", dir, err)
		}
		rules, err := ReadFirewallRules(ctl.coord, n.VNI, dir)
		if err == nil {
			metrics.FirewallRulesApplied.WithLabelValues(fmt.Sprintf("%d", n.VNI), string(dir)).Set(float64(len(rules)))
		}
	}
	return nil
}

func (ctl *Controller) assertDHCP(n *types.Network) error {
	reservations, err := ReadReservations(ctl.coord, n.VNI)
	if err != nil {
		return fmt.Errorf("read reservations: %w", err)
	}
	if err := writeStaticReservations(ctl.leaseBase, n.VNI, reservations); err != nil {
		return err
	}

	agentPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve agent binary: %w", err)
	}
	scriptPath, err := writeLeaseScript(ctl.leaseBase, n.VNI, agentPath)
	if err != nil {
		return fmt.Errorf("write lease script: %w", err)
	}

	ctl.mu.Lock()
	if _, ok := ctl.leases[n.VNI]; !ok {
		l, err := newLeaseListener(ctl.leaseBase, n.VNI, ctl.coord)
		if err != nil {
			ctl.mu.Unlock()
			return fmt.Errorf("start lease listener: %w", err)
		}
		ctl.leases[n.VNI] = l
	}

	d, ok := ctl.daemons[n.VNI]
	if !ok {
		d = ctl.newDaemon(ctl.leaseBase, n, scriptPath)
		ctl.daemons[n.VNI] = d
	}
	ctl.mu.Unlock()

	if !d.Running() {
		return d.Start()
	}
	return d.Reload()
}

// TeardownGateways implements nodesup.GatewayAsserter. Called by the prior
// primary during relinquish: removes gateway addressing and stops every
// managed network's DHCP daemon.
func (ctl *Controller) TeardownGateways(ctx context.Context) error {
	networks, err := ListNetworks(ctl.coord)
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}

	var firstErr error
	for _, n := range networks {
		if n.Type != types.NetworkManaged {
			continue
		}
		bridge := bridgeName(n.VNI)

		ctl.mu.Lock()
		d := ctl.daemons[n.VNI]
		l := ctl.leases[n.VNI]
		delete(ctl.daemons, n.VNI)
		delete(ctl.leases, n.VNI)
		delete(ctl.gatewaysUp, n.VNI)
		ctl.mu.Unlock()

		if d != nil {
			if err := d.Stop(); err != nil {
				log.WithVNI(n.VNI).Warn().Err(err).Msg("dnsmasq stop failed")
			}
		}
		if l != nil {
			l.Stop()
		}

		if n.IP4Gateway != "" && n.IP4Network != "" {
			cidr := gatewayCIDR(n.IP4Gateway, n.IP4Network)
			if err := ctl.runner.Run(ctx, "ip", "addr", "del", cidr, "dev", bridge); err != nil && !isNotExists(err) {
				log.WithVNI(n.VNI).Warn().Err(err).Msg("remove ipv4 gateway failed")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

func vniFromChildPath(childPath string) (int, bool) {
	prefix := types.NetworksRoot + "/"
	if len(childPath) <= len(prefix) || childPath[:len(prefix)] != prefix {
		return 0, false
	}
	rest := childPath[len(prefix):]
	for i, c := range rest {
		if c == '/' {
			rest = rest[:i]
			break
		}
	}
	var vni int
	if _, err := fmt.Sscanf(rest, "%d", &vni); err != nil {
		return 0, false
	}
	return vni, true
}

// gatewayCIDR combines a gateway address with the prefix length of its
// network CIDR, e.g. ("10.0.0.1", "10.0.0.0/24") -> "10.0.0.1/24".
func gatewayCIDR(gateway, network string) string {
	for i := len(network) - 1; i >= 0; i-- {
		if network[i] == '/' {
			return gateway + network[i:]
		}
	}
	return gateway
}
