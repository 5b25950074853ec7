package vmctl

import "github.com/parvane/pvcd/pkg/types"

// Candidate is the telemetry slice of a Node relevant to placement
// decisions, kept separate from types.Node so selection logic stays a
// pure function over plain data and is trivially unit-testable.
type Candidate struct {
	Name         string
	MemFreeBytes int64
	CPULoad      float64
	VCPUAlloc    int
	DomainsCount int
}

// EligibleTargets filters nodes to those a domain may be relocated onto:
// not excluded (normally the domain's current node), within node_limit if
// set, ready to accept work, and alive. Open Question decision (spec §9):
// the flush-time selector does not special-case router_state, so
// coordinator/primary nodes are eligible like any other.
func EligibleTargets(nodes []*types.Node, domain *types.Domain, exclude string) []Candidate {
	var limit map[string]bool
	if len(domain.NodeLimit) > 0 {
		limit = make(map[string]bool, len(domain.NodeLimit))
		for _, n := range domain.NodeLimit {
			limit[n] = true
		}
	}

	out := make([]Candidate, 0, len(nodes))
	for _, n := range nodes {
		if n.Name == exclude {
			continue
		}
		if limit != nil && !limit[n.Name] {
			continue
		}
		if n.DomainState != types.NodeDomainStateReady {
			continue
		}
		if n.DaemonState != types.DaemonStateRun {
			continue
		}
		out = append(out, Candidate{
			Name:         n.Name,
			MemFreeBytes: n.MemFreeBytes,
			CPULoad:      n.CPULoad,
			VCPUAlloc:    n.VCPUAlloc,
			DomainsCount: n.DomainsCount,
		})
	}
	return out
}

// SelectNode picks the best candidate for selector, returning ok=false if
// candidates is empty. "Best" means most free memory (mem), lowest load
// (load), fewest allocated vCPUs (vcpus), or fewest domains (vms) --
// SPEC_FULL's supplemented detail that mem picks most-free, not
// least-free, per original_source/NodeInstance.py.flush.
func SelectNode(selector types.NodeSelector, candidates []Candidate) (name string, ok bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(selector, c, best) {
			best = c
		}
	}
	return best.Name, true
}

func better(selector types.NodeSelector, a, b Candidate) bool {
	switch selector {
	case types.SelectorLoad:
		return a.CPULoad < b.CPULoad
	case types.SelectorVCPUs:
		return a.VCPUAlloc < b.VCPUAlloc
	case types.SelectorVMs:
		return a.DomainsCount < b.DomainsCount
	case types.SelectorMem:
		return a.MemFreeBytes > b.MemFreeBytes
	default:
		return a.MemFreeBytes > b.MemFreeBytes
	}
}
