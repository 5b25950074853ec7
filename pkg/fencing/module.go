package fencing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/events"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/metrics"
	"github.com/parvane/pvcd/pkg/nodesup"
	"github.com/parvane/pvcd/pkg/types"
	"github.com/parvane/pvcd/pkg/vmctl"
)

// LockFlusher is the stale-lock recovery surface the Fencing Module calls
// into before handing a fenced peer's domains to a new owner, carved out
// so Fence is testable without a real Ceph cluster.
type LockFlusher interface {
	FlushLocks(ctx context.Context, domainUUID string) error
}

// Module is the Fencing Module. It implements nodesup.Fencer.
type Module struct {
	coord   *coord.Client
	power   PowerCycler
	flusher LockFlusher
	logger  zerolog.Logger
}

// New builds a Module.
func New(c *coord.Client, power PowerCycler, flusher LockFlusher) *Module {
	return &Module{coord: c, power: power, flusher: flusher, logger: log.WithComponent("fencing")}
}

// Fence implements nodesup.Fencer. It is only ever invoked by the current
// primary coordinator (the caller, nodesup.Supervisor.checkPeers, already
// enforces that), so Fence itself does not re-check primary status.
func (m *Module) Fence(ctx context.Context, peer string) error {
	if err := m.coord.Write(types.NodeDaemonStatePath(peer), types.EncodeDaemonState(types.DaemonStateDead)); err != nil {
		return fmt.Errorf("mark peer dead: %w", err)
	}

	addrBytes, found, err := m.coord.Read(types.NodeManagementAddrPath(peer))
	if err != nil {
		return fmt.Errorf("read peer management address: %w", err)
	}
	if !found || len(addrBytes) == 0 {
		metrics.FenceAttemptsTotal.WithLabelValues("failure").Inc()
		m.logger.Error().Str("peer", peer).Msg("no management address on record, cannot fence")
		return fmt.Errorf("peer %s has no management address", peer)
	}

	powerErr := m.power.PowerCycle(ctx, types.DecodeString(addrBytes))
	if powerErr != nil {
		metrics.FenceAttemptsTotal.WithLabelValues("failure").Inc()
		m.logger.Error().Err(powerErr).Str("peer", peer).Msg("power-cycle fence failed, leaving peer dead")
		return powerErr
	}

	if err := m.coord.Write(types.NodeDaemonStatePath(peer), types.EncodeDaemonState(types.DaemonStateFenced)); err != nil {
		return fmt.Errorf("mark peer fenced: %w", err)
	}
	metrics.FenceAttemptsTotal.WithLabelValues("success").Inc()
	m.coord.PublishEvent(events.EventNodeFenced, "peer fenced", map[string]string{"peer": peer})
	m.logger.Info().Str("peer", peer).Msg("peer fenced, relocating its domains")

	m.relocateDomainsOf(ctx, peer)
	return nil
}

// relocateDomainsOf implements spec §4.6 step 3: every domain owned by the
// fenced peer and in the start state gets its RBD locks flushed, then is
// rewritten to a freshly selected live node so it comes up cold.
func (m *Module) relocateDomainsOf(ctx context.Context, peer string) {
	uuids, err := m.coord.ListChildren(types.DomainsRoot)
	if err != nil {
		m.logger.Error().Err(err).Msg("list domains for peer relocation failed")
		return
	}

	nodes, err := nodesup.ListNodes(m.coord)
	if err != nil {
		m.logger.Error().Err(err).Msg("list nodes for peer relocation failed")
		return
	}

	for _, uuid := range uuids {
		domain, err := vmctl.ReadDomain(m.coord, uuid)
		if err != nil {
			m.logger.Warn().Err(err).Str("uuid", uuid).Msg("read domain for peer relocation failed")
			continue
		}
		if domain.Node != peer || domain.State != types.DomainStart {
			continue
		}

		if err := m.flusher.FlushLocks(ctx, uuid); err != nil {
			m.logger.Error().Err(err).Str("uuid", uuid).Msg("lock flush before relocation failed")
		}

		candidates := vmctl.EligibleTargets(nodes, domain, peer)
		target, ok := vmctl.SelectNode(domain.NodeSelector, candidates)
		if !ok {
			m.logger.Error().Str("uuid", uuid).Msg("no eligible target for fenced domain")
			continue
		}

		if err := m.coord.WriteAll(map[string][]byte{
			types.DomainLastNodePath(uuid): types.EncodeString(peer),
			types.DomainNodePath(uuid):     types.EncodeString(target),
			types.DomainStatePath(uuid):    types.EncodeDomainRunState(types.DomainStart),
		}); err != nil {
			m.logger.Error().Err(err).Str("uuid", uuid).Str("target", target).Msg("relocate fenced domain failed")
			continue
		}
		m.logger.Info().Str("uuid", uuid).Str("target", target).Msg("relocated fenced domain")
	}
}
