package netctl

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parvane/pvcd/pkg/types"
)

// fakeRunner records every command it was asked to run instead of
// executing it, so overlay/gateway logic is testable without a real
// network namespace.
type fakeRunner struct {
	mu       sync.Mutex
	commands [][]string
	failOn   map[string]bool
}

func newFakeRunner() *fakeRunner { return &fakeRunner{failOn: make(map[string]bool)} }

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := append([]string{name}, args...)
	f.commands = append(f.commands, cmd)
	if f.failOn[name] {
		return assert.AnError
	}
	return nil
}

func (f *fakeRunner) calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c[0] == name {
			n++
		}
	}
	return n
}

func seedManagedNetwork(t *testing.T, c interface {
	Create(path string, value []byte, ephemeral, sequential bool) (string, error)
}, vni int, dhcp bool) {
	t.Helper()
	_, err := c.Create(types.NetworkPath(vni), nil, false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkTypePath(vni), types.EncodeNetworkType(types.NetworkManaged), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkIP4NetworkPath(vni), types.EncodeString("10.0.1.0/24"), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkIP4GatewayPath(vni), types.EncodeString("10.0.1.1"), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkDHCP4FlagPath(vni), types.EncodeBool(dhcp), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkDHCP4StartPath(vni), types.EncodeString("10.0.1.100"), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkDHCP4EndPath(vni), types.EncodeString("10.0.1.200"), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkFirewallRoot(vni, types.FirewallIn), nil, false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkFirewallRoot(vni, types.FirewallOut), nil, false, false)
	require.NoError(t, err)
}

func TestEnsureOverlayIssuesExpectedCommands(t *testing.T) {
	runner := newFakeRunner()
	require.NoError(t, EnsureOverlay(context.Background(), runner, 42, "eth0"))

	assert.Equal(t, 5, runner.calls("ip"))
	found := map[string]bool{}
	for _, c := range runner.commands {
		found[c[1]+":"+c[2]] = true
	}
	assert.True(t, found["link:add"])
	assert.True(t, found["link:set"])
}

func TestControllerStartCreatesOverlayPerNetwork(t *testing.T) {
	c := newTestCoordClient(t)
	seedManagedNetwork(t, c, 10, false)

	runner := newFakeRunner()
	ctl := NewController(c, runner, "eth0")
	require.NoError(t, ctl.Start(context.Background()))
	defer ctl.Stop()

	assert.Greater(t, runner.calls("ip"), 0)
	assert.Greater(t, runner.calls("nft"), 0)
}

// fakeDaemon is a no-op dhcpDaemon standing in for dnsmasq in tests.
type fakeDaemon struct {
	mu      sync.Mutex
	running bool
	reloads int
}

func (d *fakeDaemon) Running() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.running }
func (d *fakeDaemon) Start() error  { d.mu.Lock(); defer d.mu.Unlock(); d.running = true; return nil }
func (d *fakeDaemon) Reload() error { d.mu.Lock(); defer d.mu.Unlock(); d.reloads++; return nil }
func (d *fakeDaemon) Stop() error   { d.mu.Lock(); defer d.mu.Unlock(); d.running = false; return nil }

func TestAssertGatewaysStartsDnsmasqWhenDHCPEnabled(t *testing.T) {
	c := newTestCoordClient(t)
	seedManagedNetwork(t, c, 11, true)

	runner := newFakeRunner()
	ctl := NewController(c, runner, "eth0")
	ctl.SetLeaseDirBase(t.TempDir())
	daemon := &fakeDaemon{}
	ctl.SetDaemonFactory(func(leaseBase string, n *types.Network, scriptPath string) dhcpDaemon { return daemon })
	require.NoError(t, ctl.Start(context.Background()))
	defer ctl.Stop()

	err := ctl.AssertGateways(context.Background())
	require.NoError(t, err)

	found := false
	for _, cmd := range runner.commands {
		if cmd[0] == "ip" && len(cmd) > 1 && cmd[1] == "addr" {
			found = true
		}
	}
	assert.True(t, found, "expected an `ip addr` gateway assignment command")
	assert.True(t, daemon.Running(), "expected dnsmasq daemon to be started")

	require.NoError(t, ctl.TeardownGateways(context.Background()))
	assert.False(t, daemon.Running(), "expected dnsmasq daemon to be stopped on teardown")
}
