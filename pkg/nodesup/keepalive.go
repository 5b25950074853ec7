package nodesup

import (
	"context"
	"fmt"
	"time"

	"github.com/parvane/pvcd/pkg/types"
)

// publishTelemetry republishes this node's resource snapshot and keepalive
// timestamp, the KSE tick's "Keepalive" step.
func (s *Supervisor) publishTelemetry(ctx context.Context) error {
	info, err := s.driver.HostInfo(ctx)
	if err != nil {
		return fmt.Errorf("host info: %w", err)
	}

	running := s.vmctl.RunningDomains()
	vcpuAlloc := 0
	for _, uuid := range running {
		n, err := s.driver.DomainVCPUs(ctx, uuid)
		if err != nil {
			s.logger.Warn().Err(err).Str("uuid", uuid).Msg("vcpu count lookup failed")
			continue
		}
		vcpuAlloc += n
	}

	var memUsed uint64
	if info.MemoryTotalBytes > info.MemoryFreeBytes {
		memUsed = info.MemoryTotalBytes - info.MemoryFreeBytes
	}

	fields := map[string][]byte{
		types.NodeMemFreePath(s.selfNode):        types.EncodeInt64(int64(info.MemoryFreeBytes)),
		types.NodeMemUsedPath(s.selfNode):        types.EncodeInt64(int64(memUsed)),
		types.NodeCPULoadPath(s.selfNode):        types.EncodeFloat64(info.CPULoad),
		types.NodeVCPUAllocPath(s.selfNode):      types.EncodeInt(vcpuAlloc),
		types.NodeRunningDomainsPath(s.selfNode): types.EncodeStringList(running),
		types.NodeDomainsCountPath(s.selfNode):   types.EncodeInt(len(running)),
		types.NodeKeepalivePath(s.selfNode):      types.EncodeInt64(time.Now().Unix()),
	}
	return s.coord.WriteAll(fields)
}

// checkPeers is the KSE tick's "Evaluate" step: it fences any peer whose
// keepalive has gone stale. Spec §4.6: only the current /primary_node
// holder performs fencing for a given peer, so non-primary nodes are a
// no-op here to avoid every node racing to fence the same dead peer.
func (s *Supervisor) checkPeers(ctx context.Context) {
	if s.fencer == nil || !s.IsPrimary() {
		return
	}
	nodes, err := ListNodes(s.coord)
	if err != nil {
		s.logger.Warn().Err(err).Msg("list nodes for liveness check failed")
		return
	}

	grace := int64(keepaliveGraceMultiplier) * int64(s.tick.Seconds())
	now := time.Now().Unix()
	for _, n := range nodes {
		if n.Name == s.selfNode || n.DaemonState != types.DaemonStateRun {
			continue
		}
		if now-n.Keepalive <= grace {
			continue
		}
		s.logger.Warn().Str("peer", n.Name).Int64("age_seconds", now-n.Keepalive).Msg("peer keepalive expired, fencing")
		if err := s.fencer.Fence(ctx, n.Name); err != nil {
			s.logger.Error().Err(err).Str("peer", n.Name).Msg("fencing attempt failed")
		}
	}
}
