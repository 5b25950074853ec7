package storagefacade

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/parvane/pvcd/pkg/metrics"
	"github.com/parvane/pvcd/pkg/types"
)

// rbdLockEntry mirrors one value of the object `rbd lock list --format
// json` prints, keyed by lock ID.
type rbdLockEntry struct {
	Locker string `json:"locker"`
}

// FlushLocks clears stale exclusive RBD locks left on domainUUID's block
// devices by a previously crashed owner, so the domain can be cold-started
// on a new node. Refused while the domain is in the start state, unless
// the node it is assigned to has been fenced (daemon_state fenced), which
// is how the Fencing Module clears a dead peer's locks before relocating
// its domains.
func (f *Facade) FlushLocks(ctx context.Context, domainUUID string) error {
	stateBytes, found, err := f.coord.Read(types.DomainStatePath(domainUUID))
	if err != nil {
		return fmt.Errorf("read domain state: %w", err)
	}
	if found {
		state, err := types.DecodeDomainRunState(stateBytes)
		if err != nil {
			return fmt.Errorf("decode domain state: %w", err)
		}
		if state == types.DomainStart {
			fenced := false
			if nodeBytes, ok, err := f.coord.Read(types.DomainNodePath(domainUUID)); err == nil && ok {
				dsBytes, ok, err := f.coord.Read(types.NodeDaemonStatePath(types.DecodeString(nodeBytes)))
				if err == nil && ok {
					ds, derr := types.DecodeDaemonState(dsBytes)
					fenced = derr == nil && ds == types.DaemonStateFenced
				}
			}
			if !fenced {
				return fmt.Errorf("domain %s is running, refusing lock flush", domainUUID)
			}
		}
	}

	rbdBytes, found, err := f.coord.Read(types.DomainRBDListPath(domainUUID))
	if err != nil {
		return fmt.Errorf("read rbd list: %w", err)
	}
	if !found {
		return nil
	}
	volumes := types.DecodeStringList(rbdBytes)

	var firstErr error
	for _, vol := range volumes {
		if err := f.flushVolumeLocks(ctx, vol); err != nil {
			f.logger.Error().Err(err).Str("volume", vol).Msg("lock flush failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	outcome := "success"
	if firstErr != nil {
		outcome = "failure"
	}
	metrics.LockFlushesTotal.WithLabelValues(outcome).Inc()
	return firstErr
}

func (f *Facade) flushVolumeLocks(ctx context.Context, volume string) error {
	res, err := f.runner.RunOutput(ctx, "rbd", "lock", "list", "--format", "json", volume)
	if err != nil {
		return fmt.Errorf("list locks for %s: %w", volume, err)
	}
	if res.Stdout == "" || res.Stdout == "{}\n" || res.Stdout == "{}" {
		return nil
	}

	var locks map[string]rbdLockEntry
	if err := json.Unmarshal([]byte(res.Stdout), &locks); err != nil {
		return fmt.Errorf("parse lock list for %s: %w", volume, err)
	}

	var firstErr error
	for id, entry := range locks {
		if err := f.runner.Run(ctx, "rbd", "lock", "remove", volume, id, entry.Locker); err != nil {
			f.logger.Error().Err(err).Str("volume", volume).Str("lock", id).Msg("failed to free rbd lock")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		f.logger.Info().Str("volume", volume).Str("lock", id).Msg("freed rbd lock")
	}
	return firstErr
}
