package netctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/types"
)

func newTestCoordClient(t *testing.T) *coord.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping netctl integration test in short mode")
	}
	c, err := coord.NewClient(&coord.Config{
		NodeID:   "test-node",
		BindAddr: "127.0.0.1:0",
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !c.IsLeader() {
		time.Sleep(50 * time.Millisecond)
	}
	require.True(t, c.IsLeader())
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

func seedNetworkRoots(t *testing.T, c *coord.Client, vni int) {
	t.Helper()
	_, err := c.Create(types.NetworkPath(vni), nil, false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkFirewallRoot(vni, types.FirewallIn), nil, false, false)
	require.NoError(t, err)
}

func TestAddFirewallRuleInsertsAndShiftsSubsequent(t *testing.T) {
	c := newTestCoordClient(t)
	seedNetworkRoots(t, c, 5)

	require.NoError(t, AddFirewallRule(c, 5, types.FirewallIn, "ssh", 0, "tcp dport 22 accept"))
	require.NoError(t, AddFirewallRule(c, 5, types.FirewallIn, "http", 1, "tcp dport 80 accept"))

	// Insert at position 1: http must shift to 2.
	require.NoError(t, AddFirewallRule(c, 5, types.FirewallIn, "https", 1, "tcp dport 443 accept"))

	rules, err := ReadFirewallRules(c, 5, types.FirewallIn)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	orders := map[string]int{}
	for _, r := range rules {
		orders[r.Rule] = r.Order
	}
	assert.Equal(t, 0, orders["tcp dport 22 accept"])
	assert.Equal(t, 1, orders["tcp dport 443 accept"])
	assert.Equal(t, 2, orders["tcp dport 80 accept"])

	assert.Equal(t, "tcp dport 22 accept", rules[0].Rule)
	assert.Equal(t, "tcp dport 443 accept", rules[1].Rule)
	assert.Equal(t, "tcp dport 80 accept", rules[2].Rule)
}

func TestRemoveFirewallRuleLeavesOrderGaps(t *testing.T) {
	c := newTestCoordClient(t)
	seedNetworkRoots(t, c, 6)

	require.NoError(t, AddFirewallRule(c, 6, types.FirewallIn, "a", 0, "rule-a"))
	require.NoError(t, AddFirewallRule(c, 6, types.FirewallIn, "b", 1, "rule-b"))

	rules, err := ReadFirewallRules(c, 6, types.FirewallIn)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	require.NoError(t, RemoveFirewallRule(c, 6, types.FirewallIn, rules[0].Seq))

	remaining, err := ReadFirewallRules(c, 6, types.FirewallIn)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "rule-b", remaining[0].Rule)
	assert.Equal(t, 1, remaining[0].Order)
}
