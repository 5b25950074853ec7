package storagefacade

import (
	"context"
	"fmt"

	"github.com/parvane/pvcd/pkg/types"
)

func snapSpec(pool, volume, name string) string { return fmt.Sprintf("%s/%s@%s", pool, volume, name) }

// CreateSnapshot creates a point-in-time RBD snapshot.
func (f *Facade) CreateSnapshot(ctx context.Context, pool, volume, name string) error {
	return f.withLock(ctx, types.CephSnapshotPath(pool, volume, name), func() error {
		return f.runner.Run(ctx, "rbd", "snap", "create", snapSpec(pool, volume, name))
	})
}

// RemoveSnapshot deletes an RBD snapshot.
func (f *Facade) RemoveSnapshot(ctx context.Context, pool, volume, name string) error {
	return f.withLock(ctx, types.CephSnapshotPath(pool, volume, name), func() error {
		return f.runner.Run(ctx, "rbd", "snap", "rm", snapSpec(pool, volume, name))
	})
}

// RollbackSnapshot reverts volume's contents to a prior snapshot. The
// volume must not be in use by a running domain; callers are responsible
// for that check before calling in (SF does not itself consult
// /domains/<u>/state here, unlike FlushLocks, since a snapshot rollback
// target isn't always a domain's own block device).
func (f *Facade) RollbackSnapshot(ctx context.Context, pool, volume, name string) error {
	return f.withLock(ctx, types.CephSnapshotPath(pool, volume, name), func() error {
		return f.runner.Run(ctx, "rbd", "snap", "rollback", snapSpec(pool, volume, name))
	})
}
