package storagefacade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/types"
)

func seedDomain(t *testing.T, c *coord.Client, uuid string, state types.DomainRunState, rbdList []string) {
	t.Helper()
	_, err := c.Create(types.DomainPath(uuid), nil, false, false)
	require.NoError(t, err)
	_, err = c.Create(types.DomainStatePath(uuid), types.EncodeDomainRunState(state), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.DomainRBDListPath(uuid), types.EncodeStringList(rbdList), false, false)
	require.NoError(t, err)
}

func TestFlushLocksRefusesRunningDomain(t *testing.T) {
	c := newTestCoordClient(t)
	seedDomain(t, c, "dom-1", types.DomainStart, []string{"vms/disk0"})

	f := New(c, newFakeRunner())
	err := f.FlushLocks(context.Background(), "dom-1")
	assert.Error(t, err)
}

func TestFlushLocksRemovesEachReportedLock(t *testing.T) {
	c := newTestCoordClient(t)
	seedDomain(t, c, "dom-2", types.DomainStop, []string{"vms/disk0"})

	runner := newFakeRunner()
	runner.outputs[key("rbd", []string{"lock", "list", "--format", "json", "vms/disk0"})] =
		`{"lock-id-1":{"locker":"client.4110 cookie","address":"10.0.0.5:0/123"}}`

	f := New(c, runner)
	require.NoError(t, f.FlushLocks(context.Background(), "dom-2"))

	found := false
	for _, cmd := range runner.commands {
		if len(cmd) >= 2 && cmd[0] == "rbd" && cmd[1] == "lock" && cmd[2] == "remove" {
			found = true
			assert.Equal(t, []string{"rbd", "lock", "remove", "vms/disk0", "lock-id-1", "client.4110 cookie"}, cmd)
		}
	}
	assert.True(t, found, "expected a `rbd lock remove` call")
}

func TestFlushLocksNoOpWhenNoLocksHeld(t *testing.T) {
	c := newTestCoordClient(t)
	seedDomain(t, c, "dom-3", types.DomainStop, []string{"vms/disk0"})

	runner := newFakeRunner()
	runner.outputs[key("rbd", []string{"lock", "list", "--format", "json", "vms/disk0"})] = "{}"

	f := New(c, runner)
	require.NoError(t, f.FlushLocks(context.Background(), "dom-3"))
	assert.Equal(t, 1, runner.calls("rbd"))
}

func TestFlushLocksNoOpWhenDomainHasNoRBDList(t *testing.T) {
	c := newTestCoordClient(t)
	_, err := c.Create(types.DomainPath("dom-4"), nil, false, false)
	require.NoError(t, err)
	_, err = c.Create(types.DomainStatePath("dom-4"), types.EncodeDomainRunState(types.DomainStop), false, false)
	require.NoError(t, err)

	f := New(c, newFakeRunner())
	require.NoError(t, f.FlushLocks(context.Background(), "dom-4"))
}
