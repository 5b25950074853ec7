package vmctl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parvane/pvcd/pkg/types"
)

func TestSelectNode(t *testing.T) {
	tests := []struct {
		name       string
		selector   types.NodeSelector
		candidates []Candidate
		want       string
	}{
		{
			name:     "mem picks most free memory",
			selector: types.SelectorMem,
			candidates: []Candidate{
				{Name: "hv1", MemFreeBytes: 1000},
				{Name: "hv2", MemFreeBytes: 4000},
				{Name: "hv3", MemFreeBytes: 2000},
			},
			want: "hv2",
		},
		{
			name:     "load picks lowest cpu load",
			selector: types.SelectorLoad,
			candidates: []Candidate{
				{Name: "hv1", CPULoad: 0.8},
				{Name: "hv2", CPULoad: 0.2},
			},
			want: "hv2",
		},
		{
			name:     "vcpus picks fewest allocated",
			selector: types.SelectorVCPUs,
			candidates: []Candidate{
				{Name: "hv1", VCPUAlloc: 12},
				{Name: "hv2", VCPUAlloc: 4},
			},
			want: "hv2",
		},
		{
			name:     "vms picks fewest domains",
			selector: types.SelectorVMs,
			candidates: []Candidate{
				{Name: "hv1", DomainsCount: 3},
				{Name: "hv2", DomainsCount: 1},
			},
			want: "hv2",
		},
		{
			name:       "empty candidates",
			selector:   types.SelectorMem,
			candidates: nil,
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectNode(tt.selector, tt.candidates)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEligibleTargets(t *testing.T) {
	nodes := []*types.Node{
		{Name: "hv1", DaemonState: types.DaemonStateRun, DomainState: types.NodeDomainStateReady, MemFreeBytes: 1000},
		{Name: "hv2", DaemonState: types.DaemonStateRun, DomainState: types.NodeDomainStateFlush, MemFreeBytes: 2000},
		{Name: "hv3", DaemonState: types.DaemonStateDead, DomainState: types.NodeDomainStateReady, MemFreeBytes: 3000},
		{Name: "hv4", DaemonState: types.DaemonStateRun, DomainState: types.NodeDomainStateReady, MemFreeBytes: 4000},
	}

	t.Run("excludes self, non-ready, and dead nodes", func(t *testing.T) {
		domain := &types.Domain{}
		got := EligibleTargets(nodes, domain, "hv1")
		assert.Len(t, got, 1)
		assert.Equal(t, "hv4", got[0].Name)
	})

	t.Run("honors node_limit", func(t *testing.T) {
		domain := &types.Domain{NodeLimit: []string{"hv1", "hv4"}}
		got := EligibleTargets(nodes, domain, "")
		names := []string{}
		for _, c := range got {
			names = append(names, c.Name)
		}
		assert.ElementsMatch(t, []string{"hv1", "hv4"}, names)
	})
}

func TestDomainUUIDFromChildPath(t *testing.T) {
	assert.Equal(t, "abc-123", domainUUIDFromChildPath("/domains/abc-123"))
	assert.Equal(t, "abc-123", domainUUIDFromChildPath("/domains/abc-123/state"))
	assert.Equal(t, "", domainUUIDFromChildPath("/nodes/hv1"))
}
