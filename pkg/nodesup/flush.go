package nodesup

import (
	"context"
	"fmt"
	"time"

	"github.com/parvane/pvcd/pkg/metrics"
	"github.com/parvane/pvcd/pkg/types"
	"github.com/parvane/pvcd/pkg/vmctl"
)

// domainStateLoop serially processes transitions of this node's own
// domain_state field, the same single-goroutine-plus-trigger-channel
// pattern pkg/vmctl.Controller uses per domain, here scoped to the one
// node-level field this supervisor owns.
func (s *Supervisor) domainStateLoop() {
	defer close(s.domainDoneCh)
	s.triggerDomainState()
	for {
		select {
		case <-s.domainTriggerCh:
			s.reconcileDomainState()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Supervisor) triggerDomainState() {
	select {
	case s.domainTriggerCh <- struct{}{}:
	default:
	}
}

func (s *Supervisor) reconcileDomainState() {
	b, found, err := s.coord.Read(types.NodeDomainStatePath(s.selfNode))
	if err != nil || !found {
		return
	}
	state, err := types.DecodeNodeDomainState(b)
	if err != nil {
		s.logger.Warn().Err(err).Msg("malformed domain_state value")
		return
	}

	s.mu.Lock()
	prev := s.lastDomainState
	s.lastDomainState = state
	s.mu.Unlock()

	if prev == state {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	switch {
	case state == types.NodeDomainStateFlush:
		s.runFlush(ctx)
	case (prev == types.NodeDomainStateFlush || prev == types.NodeDomainStateFlushed) && state == types.NodeDomainStateReady:
		s.runUnflush(ctx)
		s.runAutostart(ctx)
	case state == types.NodeDomainStateReady:
		s.runAutostart(ctx)
	}
}

// runFlush implements spec §4.3 node flush: relocate every locally running
// domain onto an eligible peer, then mark this node flushed once
// runningdomains has drained.
func (s *Supervisor) runFlush(ctx context.Context) {
	timer := metrics.NewTimer()
	uuids := s.vmctl.RunningDomains()
	s.logger.Info().Int("domains", len(uuids)).Msg("node flush starting")

	for _, uuid := range uuids {
		if err := s.relocateForFlush(uuid); err != nil {
			s.logger.Error().Err(err).Str("uuid", uuid).Msg("flush relocation failed")
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for len(s.vmctl.RunningDomains()) > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.logger.Warn().Msg("node flush timed out waiting for runningdomains to empty")
			return
		}
	}

	if err := s.coord.Write(types.NodeDomainStatePath(s.selfNode), types.EncodeNodeDomainState(types.NodeDomainStateFlushed)); err != nil {
		s.logger.Error().Err(err).Msg("write domain_state=flushed failed")
		return
	}
	timer.ObserveDuration(metrics.NodeFlushDuration)
	s.logger.Info().Msg("node flush complete")
}

func (s *Supervisor) relocateForFlush(uuid string) error {
	domain, err := vmctl.ReadDomain(s.coord, uuid)
	if err != nil {
		return fmt.Errorf("read domain: %w", err)
	}
	nodes, err := ListNodes(s.coord)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	candidates := vmctl.EligibleTargets(nodes, domain, s.selfNode)
	target, ok := vmctl.SelectNode(domain.NodeSelector, candidates)
	if !ok {
		return fmt.Errorf("no eligible target")
	}
	return s.vmctl.Relocate(uuid, s.selfNode, target)
}

// runUnflush implements spec §4.3's "On domain_state := ready (unflush)":
// migrate back every domain whose lastnode is this node, then clear
// lastnode.
func (s *Supervisor) runUnflush(ctx context.Context) {
	uuids, err := s.coord.ListChildren(types.DomainsRoot)
	if err != nil {
		s.logger.Warn().Err(err).Msg("list domains for unflush failed")
		return
	}
	for _, uuid := range uuids {
		domain, err := vmctl.ReadDomain(s.coord, uuid)
		if err != nil {
			s.logger.Warn().Err(err).Str("uuid", uuid).Msg("read domain for unflush failed")
			continue
		}
		if domain.LastNode != s.selfNode {
			continue
		}
		if err := s.coord.WriteAll(map[string][]byte{
			types.DomainNodePath(uuid):     types.EncodeString(s.selfNode),
			types.DomainStatePath(uuid):    types.EncodeDomainRunState(types.DomainMigrate),
			types.DomainLastNodePath(uuid): types.EncodeString(""),
		}); err != nil {
			s.logger.Error().Err(err).Str("uuid", uuid).Msg("unflush migrate-back failed")
		}
	}
}

// runAutostart implements spec §4.2's "Autostart": domains owned by this
// node with node_autostart set and currently stopped/disabled are started,
// then their autostart flag is cleared.
func (s *Supervisor) runAutostart(ctx context.Context) {
	uuids, err := s.coord.ListChildren(types.DomainsRoot)
	if err != nil {
		s.logger.Warn().Err(err).Msg("list domains for autostart failed")
		return
	}
	for _, uuid := range uuids {
		domain, err := vmctl.ReadDomain(s.coord, uuid)
		if err != nil {
			s.logger.Warn().Err(err).Str("uuid", uuid).Msg("read domain for autostart failed")
			continue
		}
		if domain.Node != s.selfNode || !domain.NodeAutostart {
			continue
		}
		if domain.State != types.DomainStop && domain.State != types.DomainDisable {
			continue
		}
		if err := s.coord.Write(types.DomainStatePath(uuid), types.EncodeDomainRunState(types.DomainStart)); err != nil {
			s.logger.Error().Err(err).Str("uuid", uuid).Msg("autostart write failed")
			continue
		}
		if err := s.coord.Write(types.DomainAutostartPath(uuid), types.EncodeBool(false)); err != nil {
			s.logger.Warn().Err(err).Str("uuid", uuid).Msg("clear autostart flag failed")
		}
	}
}
