package vmctl

import (
	"context"
	"fmt"
	"time"

	"github.com/parvane/pvcd/pkg/metrics"
	"github.com/parvane/pvcd/pkg/types"
)

// sendMigrate implements spec §4.2 send_migrate: the current owner pushes
// a live migration to targetNode. Ownership itself is conveyed through
// /domains/<u>/node, which the requester already set before this ran; the
// source never writes state=start at the target.
func (ctl *Controller) sendMigrate(ctx context.Context, targetNode string) error {
	timer := metrics.NewTimer()
	targetURI := fmt.Sprintf("qemu+tcp://%s.%s/system", targetNode, ctl.clusterDomain)

	if err := ctl.driver.LiveMigrate(ctx, ctl.uuid, targetURI, targetURI); err != nil {
		ctl.logger.Warn().Err(err).Str("target", targetNode).Msg("live migration failed, falling back to cold-start handoff")
	} else {
		ctl.registry.Remove(ctl.uuid)
		metrics.MigrationsTotal.WithLabelValues("live").Inc()
		timer.ObserveDurationVec(metrics.MigrationDuration, "live")
		return nil
	}

	stopped, err := ctl.shutdownAndWait(ctx)
	if err != nil {
		ctl.logger.Warn().Err(err).Msg("shutdown during migration fallback failed, destroying")
	}
	if !stopped {
		if derr := ctl.driver.Destroy(ctx, ctl.uuid); derr != nil && !isAlreadyGone(derr) {
			ctl.logger.Warn().Err(derr).Msg("destroy during migration fallback failed")
		}
	}
	ctl.registry.Remove(ctl.uuid)

	metrics.MigrationsTotal.WithLabelValues("fallback").Inc()
	timer.ObserveDurationVec(metrics.MigrationDuration, "fallback")
	return ctl.writeState(types.DomainStop)
}

// receiveMigrate implements spec §4.2 receive_migrate: loop at 1Hz for up
// to 90s watching for the domain to arrive and reach running. If state
// leaves migrate, abort; if the source fell back to a cold-start handoff
// (state in {shutdown,stop}), switch to the fallback wait.
func (ctl *Controller) receiveMigrate(ctx context.Context) error {
	timer := metrics.NewTimer()
	deadline := time.Now().Add(receiveArrivalTimeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st, exists, err := ctl.driver.Lookup(ctx, ctl.uuid)
			if err == nil && exists && st.Running() {
				ctl.registry.Add(ctl.uuid)
				metrics.MigrationsTotal.WithLabelValues("live").Inc()
				timer.ObserveDurationVec(metrics.MigrationDuration, "live")
				return ctl.writeState(types.DomainStart)
			}

			cur, found, rerr := ctl.coord.Read(types.DomainStatePath(ctl.uuid))
			if rerr != nil || !found {
				continue
			}
			s, derr := types.DecodeDomainRunState(cur)
			if derr != nil {
				continue
			}
			switch s {
			case types.DomainMigrate:
				continue
			case types.DomainShutdown, types.DomainStop:
				return ctl.receiveFallback(ctx, timer)
			default:
				return nil // aborted: desired state moved on without us
			}
		}
	}
	return ctl.fail(ctx, fmt.Errorf("migration receive timed out waiting for live arrival"))
}

// receiveFallback implements the up-to-120s second loop: wait for the
// source to confirm state=stop, then cold-start locally.
func (ctl *Controller) receiveFallback(ctx context.Context, timer *metrics.Timer) error {
	deadline := time.Now().Add(receiveFallbackTimeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cur, found, err := ctl.coord.Read(types.DomainStatePath(ctl.uuid))
			if err != nil || !found {
				continue
			}
			s, derr := types.DecodeDomainRunState(cur)
			if derr != nil {
				continue
			}
			switch s {
			case types.DomainStop:
				metrics.MigrationsTotal.WithLabelValues("fallback").Inc()
				timer.ObserveDurationVec(metrics.MigrationDuration, "fallback")
				if err := ctl.coldStart(ctx); err != nil {
					return err
				}
				return ctl.writeState(types.DomainStart)
			case types.DomainShutdown:
				continue
			default:
				return nil
			}
		}
	}
	return ctl.fail(ctx, fmt.Errorf("migration fallback cold start timed out waiting for source shutdown"))
}
