package fencing

import (
	"context"
	"errors"
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
		t.Skip("skipping fencing integration test in short mode")
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

func seedNode(t *testing.T, c *coord.Client, name, mgmtAddr string) {
	t.Helper()
	_, err := c.Create(types.NodePath(name), nil, false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NodeDaemonStatePath(name), types.EncodeDaemonState(types.DaemonStateRun), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NodeDomainStatePath(name), types.EncodeNodeDomainState(types.NodeDomainStateReady), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NodeManagementAddrPath(name), types.EncodeString(mgmtAddr), false, false)
	require.NoError(t, err)
}

func seedStartedDomain(t *testing.T, c *coord.Client, uuid, node string) {
	t.Helper()
	_, err := c.Create(types.DomainPath(uuid), nil, false, false)
	require.NoError(t, err)
	_, err = c.Create(types.DomainNodePath(uuid), types.EncodeString(node), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.DomainStatePath(uuid), types.EncodeDomainRunState(types.DomainStart), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.DomainNodeSelectorPath(uuid), types.EncodeNodeSelector(types.SelectorMem), false, false)
	require.NoError(t, err)
}

type fakePowerCycler struct {
	shouldFail bool
	called     []string
}

func (p *fakePowerCycler) PowerCycle(ctx context.Context, addr string) error {
	p.called = append(p.called, addr)
	if p.shouldFail {
		return errors.New("bmc unreachable")
	}
	return nil
}

type fakeFlusher struct {
	flushed []string
}

func (f *fakeFlusher) FlushLocks(ctx context.Context, uuid string) error {
	f.flushed = append(f.flushed, uuid)
	return nil
}

func TestFenceSuccessRelocatesStartedDomains(t *testing.T) {
	c := newTestCoordClient(t)
	seedNode(t, c, "deadhost", "10.1.1.5")
	seedNode(t, c, "survivor", "10.1.1.6")
	seedStartedDomain(t, c, "dom-a", "deadhost")

	power := &fakePowerCycler{}
	flusher := &fakeFlusher{}
	m := New(c, power, flusher)

	require.NoError(t, m.Fence(context.Background(), "deadhost"))

	assert.Equal(t, []string{"10.1.1.5"}, power.called)
	assert.Equal(t, []string{"dom-a"}, flusher.flushed)

	stateBytes, found, err := c.Read(types.NodeDaemonStatePath("deadhost"))
	require.NoError(t, err)
	require.True(t, found)
	state, err := types.DecodeDaemonState(stateBytes)
	require.NoError(t, err)
	assert.Equal(t, types.DaemonStateFenced, state)

	nodeBytes, _, err := c.Read(types.DomainNodePath("dom-a"))
	require.NoError(t, err)
	assert.Equal(t, "survivor", types.DecodeString(nodeBytes))

	runStateBytes, _, err := c.Read(types.DomainStatePath("dom-a"))
	require.NoError(t, err)
	runState, err := types.DecodeDomainRunState(runStateBytes)
	require.NoError(t, err)
	assert.Equal(t, types.DomainStart, runState)

	lastNodeBytes, _, err := c.Read(types.DomainLastNodePath("dom-a"))
	require.NoError(t, err)
	assert.Equal(t, "deadhost", types.DecodeString(lastNodeBytes))
}

func TestFenceFailureLeavesNodeDeadAndDoesNotRelocate(t *testing.T) {
	c := newTestCoordClient(t)
	seedNode(t, c, "deadhost", "10.1.1.5")
	seedStartedDomain(t, c, "dom-b", "deadhost")

	power := &fakePowerCycler{shouldFail: true}
	flusher := &fakeFlusher{}
	m := New(c, power, flusher)

	err := m.Fence(context.Background(), "deadhost")
	assert.Error(t, err)
	assert.Empty(t, flusher.flushed)

	stateBytes, found, err := c.Read(types.NodeDaemonStatePath("deadhost"))
	require.NoError(t, err)
	require.True(t, found)
	state, err := types.DecodeDaemonState(stateBytes)
	require.NoError(t, err)
	assert.Equal(t, types.DaemonStateDead, state)

	nodeBytes, _, err := c.Read(types.DomainNodePath("dom-b"))
	require.NoError(t, err)
	assert.Equal(t, "deadhost", types.DecodeString(nodeBytes))
}
