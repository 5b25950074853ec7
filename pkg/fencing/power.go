package fencing

import (
	"context"

	"github.com/parvane/pvcd/pkg/process"
)

// PowerCycler is the out-of-band management surface the Fencing Module
// calls into, carved out (same justification as virt.Driver) so the
// dead-peer/power-cycle/relocate sequence is unit-testable without a real
// BMC on the network.
type PowerCycler interface {
	PowerCycle(ctx context.Context, managementAddr string) error
}

// IPMIPowerCycler power-cycles a peer via `ipmitool` against its BMC
// address, the conventional out-of-band management interface for bare
// metal hypervisor hosts.
type IPMIPowerCycler struct {
	Runner   CommandRunner
	Username string
	Password string
}

// CommandRunner is the subset of process.Runner IPMIPowerCycler needs.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

var _ CommandRunner = (*process.Runner)(nil)

// PowerCycle issues `ipmitool chassis power cycle` against managementAddr.
func (p *IPMIPowerCycler) PowerCycle(ctx context.Context, managementAddr string) error {
	args := []string{"-I", "lanplus", "-H", managementAddr}
	if p.Username != "" {
		args = append(args, "-U", p.Username, "-P", p.Password)
	}
	args = append(args, "chassis", "power", "cycle")
	return p.Runner.Run(ctx, "ipmitool", args...)
}
