package storagefacade

import (
	"context"
	"fmt"

	"github.com/parvane/pvcd/pkg/types"
)

// spec string for an RBD image, "<pool>/<name>".
func imageSpec(pool, name string) string { return fmt.Sprintf("%s/%s", pool, name) }

// CreateVolume creates a new RBD image of the given size (e.g. "10G") in
// pool, serialized by an advisory lock on the volume's coordination-store
// path so two nodes never race to create the same image.
func (f *Facade) CreateVolume(ctx context.Context, pool, name, size string) error {
	return f.withLock(ctx, types.CephVolumePath(pool, name), func() error {
		return f.runner.Run(ctx, "rbd", "create", "--size", size, imageSpec(pool, name))
	})
}

// RemoveVolume deletes an RBD image.
func (f *Facade) RemoveVolume(ctx context.Context, pool, name string) error {
	return f.withLock(ctx, types.CephVolumePath(pool, name), func() error {
		return f.runner.Run(ctx, "rbd", "rm", imageSpec(pool, name))
	})
}

// ResizeVolume grows or shrinks an RBD image to size. Shrinking requires
// --allow-shrink, which is always passed: callers are trusted to have
// already confirmed data loss is acceptable, the same boundary the CLI
// itself draws.
func (f *Facade) ResizeVolume(ctx context.Context, pool, name, size string) error {
	return f.withLock(ctx, types.CephVolumePath(pool, name), func() error {
		return f.runner.Run(ctx, "rbd", "resize", "--size", size, "--allow-shrink", imageSpec(pool, name))
	})
}

// RenameVolume renames an RBD image within a pool.
func (f *Facade) RenameVolume(ctx context.Context, pool, oldName, newName string) error {
	return f.withLock(ctx, types.CephVolumePath(pool, oldName), func() error {
		return f.runner.Run(ctx, "rbd", "rename", imageSpec(pool, oldName), imageSpec(pool, newName))
	})
}

// CloneVolume creates a new image in dstPool/dstName as a flattened copy of
// srcPool/srcName (`rbd cp`, not a lightweight COW clone off a snapshot:
// SF's clone request is a full independent copy, per spec's "clone volume"
// request, not the snapshot-clone mechanism exposed separately by
// CreateSnapshot/rbd's own protect+clone workflow).
func (f *Facade) CloneVolume(ctx context.Context, srcPool, srcName, dstPool, dstName string) error {
	return f.withLock(ctx, types.CephVolumePath(dstPool, dstName), func() error {
		return f.runner.Run(ctx, "rbd", "cp", imageSpec(srcPool, srcName), imageSpec(dstPool, dstName))
	})
}
