package storagefacade

import (
	"context"

	"github.com/parvane/pvcd/pkg/types"
)

// AddOSD creates a new OSD on the given block device, delegating to
// ceph-volume's LVM provisioning (the upstream-recommended path since
// ceph-disk's removal).
func (f *Facade) AddOSD(ctx context.Context, device string) error {
	return f.withLock(ctx, types.CephRoot+"/osds", func() error {
		return f.runner.Run(ctx, "ceph-volume", "lvm", "create", "--data", device)
	})
}

// RemoveOSD takes an OSD out, marks it down, and purges it from the
// cluster map. Order matters: `out` lets Ceph rebalance before the OSD
// disappears, so RemoveOSD does not proceed to `osd down`/`osd purge`
// until `out` succeeds.
func (f *Facade) RemoveOSD(ctx context.Context, id string) error {
	return f.withLock(ctx, types.CephOSDPath(id), func() error {
		if err := f.runner.Run(ctx, "ceph", "osd", "out", id); err != nil {
			return err
		}
		if err := f.runner.Run(ctx, "ceph", "osd", "down", id); err != nil {
			return err
		}
		return f.runner.Run(ctx, "ceph", "osd", "purge", id, "--yes-i-really-mean-it")
	})
}
