package netctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parvane/pvcd/pkg/process"
	"github.com/parvane/pvcd/pkg/types"
)

// DefaultLeaseDirBase is the on-disk root spec §4.4/§6 names for dnsmasq's
// per-network lease hosts directory. A Controller may override it (tests
// point it at a temp dir instead of the real system path).
const DefaultLeaseDirBase = "/var/lib/dnsmasq"

func leaseDir(base string, vni int) string {
	return filepath.Join(base, fmt.Sprintf("%d", vni))
}

// writeStaticReservations (re)writes the `<mac>` lease-host files dnsmasq
// reads on start/SIGHUP, one per static reservation, each containing
// "<mac>,<ip>". Files for reservations no longer present are removed so a
// stale static lease doesn't survive its deletion from the store.
func writeStaticReservations(base string, vni int, reservations []*types.DHCPReservation) error {
	dir := leaseDir(base, vni)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create lease dir %s: %w", dir, err)
	}

	want := make(map[string]bool, len(reservations))
	for _, r := range reservations {
		if !r.Static {
			continue
		}
		want[r.MAC] = true
		line := fmt.Sprintf("%s,%s\n", r.MAC, r.IPAddr)
		if err := os.WriteFile(filepath.Join(dir, r.MAC), []byte(line), 0644); err != nil {
			return fmt.Errorf("write reservation %s: %w", r.MAC, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read lease dir %s: %w", dir, err)
	}
	keep := map[string]bool{"lease-hook.sh": true, "lease.sock": true, "dnsmasq.leases": true}
	for _, e := range entries {
		if e.IsDir() || want[e.Name()] || keep[e.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("remove stale reservation %s: %w", e.Name(), err)
		}
	}
	return nil
}

// leaseScriptPath is where the generated dhcp-script wrapper for vni lives.
func leaseScriptPath(base string, vni int) string {
	return filepath.Join(leaseDir(base, vni), "lease-hook.sh")
}

// writeLeaseScript (re)writes the shell wrapper dnsmasq execs for every
// lease add/old/del on this network. It forwards the event, unmodified, to
// agentPath's dhcp-event subcommand, which relays it over this network's
// lease socket to the running agent for the coordination-store write-back.
func writeLeaseScript(base string, vni int, agentPath string) (string, error) {
	dir := leaseDir(base, vni)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create lease dir %s: %w", dir, err)
	}
	path := leaseScriptPath(base, vni)
	script := fmt.Sprintf("#!/bin/sh\nexec %s dhcp-event --socket=%s \"$@\"\n", agentPath, leaseSocketPath(base, vni))
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		return "", fmt.Errorf("write lease script %s: %w", path, err)
	}
	return path, nil
}

// dnsmasqArgs builds the flag set for one network's dnsmasq instance:
// bound to the bridge, serving the gateway's DHCP4 range at a 4h lease
// time, reading static reservations from the lease directory, and
// reporting every lease event back through scriptPath.
func dnsmasqArgs(base string, n *types.Network, scriptPath string) []string {
	bridge := bridgeName(n.VNI)
	args := []string{
		"--keep-in-foreground",
		"--interface=" + bridge,
		"--bind-interfaces",
		"--dhcp-leasefile=" + filepath.Join(leaseDir(base, n.VNI), "dnsmasq.leases"),
		"--dhcp-hostsdir=" + leaseDir(base, n.VNI),
		"--dhcp-script=" + scriptPath,
		fmt.Sprintf("--dhcp-range=%s,%s,4h", n.DHCP4Start, n.DHCP4End),
	}
	if n.Domain != "" {
		args = append(args, "--domain="+n.Domain)
	}
	if len(n.NameServers) > 0 {
		args = append(args, "--server="+strings.Join(n.NameServers, ","))
	}
	return args
}

func newDnsmasqDaemon(base string, n *types.Network, scriptPath string) *process.Daemon {
	return &process.Daemon{Name: "dnsmasq", Args: dnsmasqArgs(base, n, scriptPath)}
}
