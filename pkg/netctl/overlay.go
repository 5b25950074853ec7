package netctl

import (
	"context"
	"fmt"
	"strings"

	"github.com/parvane/pvcd/pkg/process"
)

// CommandRunner is the subset of process.Runner the Network Controller
// needs, carved out as an interface (same justification as virt.Driver and
// nodesup.Fencer) so overlay/gateway/firewall logic is unit-testable
// without a real network namespace.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// vxlanName and bridgeName are the interface naming convention fixed by
// spec §4.4.
func vxlanName(vni int) string  { return fmt.Sprintf("vxlan%d", vni) }
func bridgeName(vni int) string { return fmt.Sprintf("br%d", vni) }

// EnsureOverlay creates the vxlan interface and bridge for vni if they do
// not already exist, attaches the vxlan port to the bridge, and brings
// both up. Idempotent: "file exists" failures from `ip link add` are not
// treated as real devices already carry the desired configuration.
func EnsureOverlay(ctx context.Context, r CommandRunner, vni int, carrier string) error {
	vxlan := vxlanName(vni)
	bridge := bridgeName(vni)

	if err := r.Run(ctx, "ip", "link", "add", vxlan, "type", "vxlan",
		"id", fmt.Sprintf("%d", vni), "dev", carrier, "dstport", "4789"); err != nil {
		if !isExists(err) {
			return fmt.Errorf("create %s: %w", vxlan, err)
		}
	}
	if err := r.Run(ctx, "ip", "link", "add", "name", bridge, "type", "bridge"); err != nil {
		if !isExists(err) {
			return fmt.Errorf("create %s: %w", bridge, err)
		}
	}
	if err := r.Run(ctx, "ip", "link", "set", vxlan, "master", bridge); err != nil {
		return fmt.Errorf("attach %s to %s: %w", vxlan, bridge, err)
	}
	if err := r.Run(ctx, "ip", "link", "set", vxlan, "up"); err != nil {
		return fmt.Errorf("bring up %s: %w", vxlan, err)
	}
	if err := r.Run(ctx, "ip", "link", "set", bridge, "up"); err != nil {
		return fmt.Errorf("bring up %s: %w", bridge, err)
	}
	return nil
}

// RemoveOverlay tears down the vxlan interface and bridge for vni. Bridge
// removal takes down the vxlan port with it, but both are issued for
// hosts where the bridge was removed out of band.
func RemoveOverlay(ctx context.Context, r CommandRunner, vni int) error {
	vxlan := vxlanName(vni)
	bridge := bridgeName(vni)
	if err := r.Run(ctx, "ip", "link", "del", bridge); err != nil && !isNotExists(err) {
		return fmt.Errorf("remove %s: %w", bridge, err)
	}
	if err := r.Run(ctx, "ip", "link", "del", vxlan); err != nil && !isNotExists(err) {
		return fmt.Errorf("remove %s: %w", vxlan, err)
	}
	return nil
}

// isExists/isNotExists inspect the combined-output error wrapping
// process.Runner does, since `ip link` reports both conditions via stderr
// text rather than a distinguishable exit code.
func isExists(err error) bool {
	return containsAny(err, "File exists", "already exists")
}

func isNotExists(err error) bool {
	return containsAny(err, "Cannot find device", "No such device", "does not exist")
}

func containsAny(err error, substrs ...string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range substrs {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var _ CommandRunner = (*process.Runner)(nil)
