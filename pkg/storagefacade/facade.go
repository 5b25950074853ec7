package storagefacade

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/process"
)

// CommandRunner is the subset of process.Runner the facade needs, carved
// out (same justification as netctl.CommandRunner) so pool/volume/snapshot
// logic is unit-testable without a real Ceph cluster.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	RunOutput(ctx context.Context, name string, args ...string) (*process.Result, error)
}

var _ CommandRunner = (*process.Runner)(nil)

// Facade is the Storage Facade: it serializes pool/volume/snapshot/OSD
// requests through the coordination store's advisory locks and issues the
// corresponding `ceph`/`rbd` CLI calls.
type Facade struct {
	coord  *coord.Client
	runner CommandRunner
	logger zerolog.Logger
}

// New builds a Facade. runner is typically a *process.Runner.
func New(c *coord.Client, runner CommandRunner) *Facade {
	return &Facade{coord: c, runner: runner, logger: log.WithComponent("storagefacade")}
}

// withLock acquires the advisory lock guarding path, runs fn, and always
// releases the lock before returning.
func (f *Facade) withLock(ctx context.Context, path string, fn func() error) error {
	lock, err := f.coord.Lock(ctx, path)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}
