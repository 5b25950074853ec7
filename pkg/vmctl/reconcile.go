package vmctl

import (
	"context"
	"fmt"

	"github.com/parvane/pvcd/pkg/types"
	"github.com/parvane/pvcd/pkg/virt"
)

// reconcileAsOwner implements spec §4.2 step 3: node == self.
func (ctl *Controller) reconcileAsOwner(ctx context.Context, state types.DomainRunState, libState virt.State, exists bool) error {
	running := exists && libState.Running()

	if running {
		switch state {
		case types.DomainStart:
			ctl.registry.Add(ctl.uuid)
			return nil
		case types.DomainMigrate:
			// Stuck-in-migrate recovery: the domain is already running
			// here under this node's ownership, so the state is stale.
			ctl.registry.Add(ctl.uuid)
			return ctl.writeState(types.DomainStart)
		case types.DomainRestart:
			return ctl.gracefulRestart(ctx)
		case types.DomainShutdown:
			return ctl.gracefulShutdown(ctx)
		case types.DomainStop, types.DomainDisable:
			if err := ctl.driver.Destroy(ctx, ctl.uuid); err != nil {
				return ctl.fail(ctx, err)
			}
			ctl.registry.Remove(ctl.uuid)
			return nil
		default:
			return nil
		}
	}

	switch state {
	case types.DomainStart:
		return ctl.coldStart(ctx)
	case types.DomainMigrate:
		return ctl.receiveMigrate(ctx)
	case types.DomainRestart:
		return ctl.writeState(types.DomainStart)
	case types.DomainShutdown, types.DomainStop, types.DomainDisable:
		ctl.registry.Remove(ctl.uuid)
		return nil
	default:
		ctl.registry.Remove(ctl.uuid)
		return nil
	}
}

// reconcileAsNonOwner implements spec §4.2 step 4: node != self. We only
// have work to do if libvirt still shows the domain running locally, a
// leftover from before ownership moved.
func (ctl *Controller) reconcileAsNonOwner(ctx context.Context, state types.DomainRunState, targetNode string, libState virt.State, exists bool) error {
	if !(exists && libState.Running()) {
		return nil
	}

	switch state {
	case types.DomainMigrate:
		return ctl.sendMigrate(ctx, targetNode)
	case types.DomainShutdown:
		if _, err := ctl.shutdownAndWait(ctx); err != nil {
			ctl.logger.Warn().Err(err).Msg("graceful shutdown of relinquished domain failed, destroying")
			if derr := ctl.driver.Destroy(ctx, ctl.uuid); derr != nil && !isAlreadyGone(derr) {
				ctl.logger.Warn().Err(derr).Msg("destroy of relinquished domain failed")
			}
		}
		ctl.registry.Remove(ctl.uuid)
		return nil
	default:
		// We are no longer the owner and the desired state isn't asking
		// for an orderly handoff: force-terminate so a stray local copy
		// doesn't violate migration disjointness.
		if err := ctl.driver.Destroy(ctx, ctl.uuid); err != nil && !isAlreadyGone(err) {
			ctl.logger.Warn().Err(err).Msg("force-terminate of relinquished domain failed")
		}
		ctl.registry.Remove(ctl.uuid)
		return nil
	}
}

func (ctl *Controller) coldStart(ctx context.Context) error {
	xmlBytes, found, err := ctl.coord.Read(types.DomainXMLPath(ctl.uuid))
	if err != nil {
		return err
	}
	if !found || len(xmlBytes) == 0 {
		return ctl.fail(ctx, fmt.Errorf("no stored domain xml for %s", ctl.uuid))
	}
	if err := ctl.driver.DefineAndCreate(ctx, ctl.uuid, string(xmlBytes)); err != nil {
		return ctl.fail(ctx, err)
	}
	ctl.registry.Add(ctl.uuid)
	return nil
}

func (ctl *Controller) gracefulShutdown(ctx context.Context) error {
	stopped, err := ctl.shutdownAndWait(ctx)
	if err != nil {
		return ctl.fail(ctx, err)
	}
	ctl.registry.Remove(ctl.uuid)
	if !stopped {
		if derr := ctl.driver.Destroy(ctx, ctl.uuid); derr != nil {
			return ctl.fail(ctx, derr)
		}
	}
	return ctl.writeState(types.DomainStop)
}

func (ctl *Controller) gracefulRestart(ctx context.Context) error {
	stopped, err := ctl.shutdownAndWait(ctx)
	if err != nil {
		return ctl.fail(ctx, err)
	}
	ctl.registry.Remove(ctl.uuid)
	if !stopped {
		if derr := ctl.driver.Destroy(ctx, ctl.uuid); derr != nil {
			return ctl.fail(ctx, derr)
		}
	}
	if err := ctl.coldStart(ctx); err != nil {
		return err
	}
	return ctl.writeState(types.DomainStart)
}
