package storagefacade

import (
	"context"
	"fmt"

	"github.com/parvane/pvcd/pkg/types"
)

// CreatePool creates a Ceph pool with the given placement-group count and
// initializes it for RBD use.
func (f *Facade) CreatePool(ctx context.Context, name string, pgCount int) error {
	return f.withLock(ctx, types.CephPoolPath(name), func() error {
		if err := f.runner.Run(ctx, "ceph", "osd", "pool", "create", name, fmt.Sprintf("%d", pgCount)); err != nil {
			return err
		}
		return f.runner.Run(ctx, "rbd", "pool", "init", name)
	})
}

// RemovePool deletes a Ceph pool. Ceph refuses this unless the
// mon_allow_pool_delete setting permits it and the pool name is passed
// twice with --yes-i-really-really-mean-it, the confirmation dance Ceph
// itself requires for a destructive pool removal.
func (f *Facade) RemovePool(ctx context.Context, name string) error {
	return f.withLock(ctx, types.CephPoolPath(name), func() error {
		return f.runner.Run(ctx, "ceph", "osd", "pool", "delete", name, name, "--yes-i-really-really-mean-it")
	})
}
