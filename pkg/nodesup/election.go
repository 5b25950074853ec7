package nodesup

import (
	"context"

	"github.com/parvane/pvcd/pkg/types"
)

// noPrimary is the sentinel value of /primary_node when no coordinator
// currently holds the role.
const noPrimary = "none"

func isNoPrimary(v []byte) bool {
	return len(v) == 0 || string(v) == noPrimary
}

// maybeElect is the KSE tick's primary-coordinator contention step. Only
// coordinator-tagged nodes with daemon_state==run may contend; a node that
// currently holds primary but has left daemon_state=run relinquishes
// instead.
func (s *Supervisor) maybeElect(ctx context.Context) {
	daemonState, err := s.readDaemonState()
	if err != nil {
		s.logger.Warn().Err(err).Msg("read daemon_state for election failed")
		return
	}

	if s.IsPrimary() && daemonState != types.DaemonStateRun {
		s.relinquish(ctx)
		return
	}
	if !s.coordinator || daemonState != types.DaemonStateRun || s.IsPrimary() {
		return
	}

	current, _, err := s.coord.Read(types.PrimaryNodePath)
	if err != nil {
		s.logger.Warn().Err(err).Msg("read primary_node failed")
		return
	}
	if !isNoPrimary(current) {
		return
	}

	swapped, err := s.coord.CompareAndSwap(types.PrimaryNodePath, current, []byte(s.selfNode))
	if err != nil {
		s.logger.Warn().Err(err).Msg("primary election compare-and-swap failed")
		return
	}
	if !swapped {
		return
	}

	s.logger.Info().Msg("won primary-coordinator election")
	s.takeover(ctx)
}

// takeover brings this node's gateway services up and publishes the
// primary router state. Spec §4.3: the new primary passes through
// "takeover" while bringing services up, then "primary".
func (s *Supervisor) takeover(ctx context.Context) {
	if err := s.coord.Write(types.NodeRouterStatePath(s.selfNode), types.EncodeRouterState(types.RouterStateTakeover)); err != nil {
		s.logger.Error().Err(err).Msg("write takeover router state failed")
	}

	if s.gateway != nil {
		if err := s.gateway.AssertGateways(ctx); err != nil {
			s.logger.Error().Err(err).Msg("gateway bring-up during takeover failed")
		}
	}

	if err := s.coord.Write(types.NodeRouterStatePath(s.selfNode), types.EncodeRouterState(types.RouterStatePrimary)); err != nil {
		s.logger.Error().Err(err).Msg("write primary router state failed")
	}
	s.setPrimary(true)
}

// relinquish tears down gateway services and releases /primary_node.
// Spec §4.3: the prior primary sets router_state=relinquish, tears down
// gateways/DHCP, and only then writes /primary_node=none.
func (s *Supervisor) relinquish(ctx context.Context) {
	if err := s.coord.Write(types.NodeRouterStatePath(s.selfNode), types.EncodeRouterState(types.RouterStateRelinquish)); err != nil {
		s.logger.Warn().Err(err).Msg("write relinquish router state failed")
	}

	if s.gateway != nil {
		if err := s.gateway.TeardownGateways(ctx); err != nil {
			s.logger.Error().Err(err).Msg("gateway teardown during relinquish failed")
		}
	}

	if swapped, err := s.coord.CompareAndSwap(types.PrimaryNodePath, []byte(s.selfNode), []byte(noPrimary)); err != nil {
		s.logger.Warn().Err(err).Msg("primary relinquish compare-and-swap failed")
	} else if !swapped {
		s.logger.Warn().Msg("primary_node changed underneath relinquish")
	}

	if err := s.coord.Write(types.NodeRouterStatePath(s.selfNode), types.EncodeRouterState(types.RouterStateSecondary)); err != nil {
		s.logger.Warn().Err(err).Msg("write secondary router state failed")
	}
	s.setPrimary(false)
}
