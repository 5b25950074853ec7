package vmctl

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/events"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/metrics"
	"github.com/parvane/pvcd/pkg/types"
	"github.com/parvane/pvcd/pkg/virt"
)

const (
	shutdownGrace          = 90 * time.Second
	receiveArrivalTimeout  = 90 * time.Second
	receiveFallbackTimeout = 120 * time.Second
	reconcileBudget        = 240 * time.Second
)

// Controller is the serial event processor for one domain UUID. A single
// goroutine pulls triggers off a buffered channel and runs reconcile to
// completion before looking at the next one; there is never more than one
// reconciliation in flight for a given domain, which is what replaces the
// source's instart/inmigrate/... re-entrancy flags.
type Controller struct {
	uuid          string
	selfNode      string
	clusterDomain string

	coord    *coord.Client
	driver   virt.Driver
	registry *Registry
	logger   zerolog.Logger

	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func newController(uuid, selfNode, clusterDomain string, c *coord.Client, d virt.Driver, reg *Registry) *Controller {
	return &Controller{
		uuid:          uuid,
		selfNode:      selfNode,
		clusterDomain: clusterDomain,
		coord:         c,
		driver:        d,
		registry:      reg,
		logger:        log.WithDomainID(uuid),
		triggerCh:     make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// trigger schedules a reconciliation pass without blocking; if one is
// already pending, this is a no-op, which is correct because reconcile
// always re-reads the current state rather than acting on stale data.
func (ctl *Controller) trigger() {
	select {
	case ctl.triggerCh <- struct{}{}:
	default:
	}
}

func (ctl *Controller) Start() {
	cancelState := ctl.coord.WatchData(types.DomainStatePath(ctl.uuid), func(deleted bool) coord.Action {
		ctl.trigger()
		if deleted {
			return coord.Stop
		}
		return coord.Continue
	})
	cancelNode := ctl.coord.WatchData(types.DomainNodePath(ctl.uuid), func(deleted bool) coord.Action {
		ctl.trigger()
		if deleted {
			return coord.Stop
		}
		return coord.Continue
	})

	go func() {
		defer cancelState()
		defer cancelNode()
		defer close(ctl.doneCh)
		ctl.trigger()
		for {
			select {
			case <-ctl.triggerCh:
				ctx, cancel := context.WithTimeout(context.Background(), reconcileBudget)
				if err := ctl.reconcile(ctx); err != nil {
					ctl.logger.Warn().Err(err).Msg("domain reconciliation failed")
				}
				cancel()
			case <-ctl.stopCh:
				return
			}
		}
	}()
}

func (ctl *Controller) Stop() {
	close(ctl.stopCh)
	<-ctl.doneCh
}

func (ctl *Controller) reconcile(ctx context.Context) error {
	timer := metrics.NewTimer()

	stateBytes, found, err := ctl.coord.Read(types.DomainStatePath(ctl.uuid))
	if err != nil {
		return err
	}
	if !found {
		ctl.registry.Remove(ctl.uuid)
		return nil
	}
	state, err := types.DecodeDomainRunState(stateBytes)
	if err != nil {
		ctl.logger.Warn().Err(err).Msg("malformed domain state, refusing to act")
		return err
	}

	nodeBytes, found, err := ctl.coord.Read(types.DomainNodePath(ctl.uuid))
	if err != nil {
		return err
	}
	var targetNode string
	if found {
		targetNode = types.DecodeString(nodeBytes)
	}

	libState, exists, err := ctl.driver.Lookup(ctx, ctl.uuid)
	if err != nil {
		return err
	}

	defer timer.ObserveDurationVec(metrics.DomainReconcileDuration, string(state))

	if targetNode == ctl.selfNode {
		return ctl.reconcileAsOwner(ctx, state, libState, exists)
	}
	return ctl.reconcileAsNonOwner(ctx, state, targetNode, libState, exists)
}

func (ctl *Controller) writeState(s types.DomainRunState) error {
	if err := ctl.coord.Write(types.DomainStatePath(ctl.uuid), types.EncodeDomainRunState(s)); err != nil {
		return err
	}
	ctl.coord.PublishEvent(events.EventDomainStateChanged, "domain state changed", map[string]string{
		"uuid":  ctl.uuid,
		"state": string(s),
	})
	return nil
}

func (ctl *Controller) fail(ctx context.Context, cause error) error {
	ctl.logger.Error().Err(cause).Msg("domain entered fail state")
	if err := ctl.coord.WriteAll(map[string][]byte{
		types.DomainStatePath(ctl.uuid):        types.EncodeDomainRunState(types.DomainFail),
		types.DomainFailedReasonPath(ctl.uuid): types.EncodeString(cause.Error()),
	}); err != nil {
		ctl.logger.Error().Err(err).Msg("failed to record domain failure")
	} else {
		ctl.coord.PublishEvent(events.EventDomainStateChanged, "domain state changed", map[string]string{
			"uuid":  ctl.uuid,
			"state": string(types.DomainFail),
		})
	}
	ctl.registry.Remove(ctl.uuid)
	return cause
}

// shutdownAndWait requests an ACPI shutdown and polls at 1Hz for up to
// shutdownGrace for the domain to actually stop. It does not write any
// coordination-store state; callers decide what the resulting state means
// for them (owner vs. stale non-owner).
func (ctl *Controller) shutdownAndWait(ctx context.Context) (stopped bool, err error) {
	if err := ctl.driver.Shutdown(ctx, ctl.uuid); err != nil {
		return false, err
	}
	deadline := time.Now().Add(shutdownGrace)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
			st, exists, lerr := ctl.driver.Lookup(ctx, ctl.uuid)
			if lerr != nil {
				continue
			}
			if !exists || !st.Running() {
				return true, nil
			}
		}
	}
	return false, nil
}

func isAlreadyGone(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}
