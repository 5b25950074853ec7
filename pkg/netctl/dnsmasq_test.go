package netctl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parvane/pvcd/pkg/types"
)

func TestWriteStaticReservationsWritesAndPrunes(t *testing.T) {
	base := t.TempDir()

	err := writeStaticReservations(base, 7, []*types.DHCPReservation{
		{MAC: "aa:bb:cc:00:00:01", IPAddr: "10.0.7.10", Static: true},
		{MAC: "aa:bb:cc:00:00:02", IPAddr: "10.0.7.11", Static: false},
	})
	require.NoError(t, err)

	dir := leaseDir(base, 7)
	content, err := os.ReadFile(filepath.Join(dir, "aa:bb:cc:00:00:01"))
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:00:00:01,10.0.7.10\n", string(content))

	_, err = os.Stat(filepath.Join(dir, "aa:bb:cc:00:00:02"))
	assert.True(t, os.IsNotExist(err), "non-static reservation must not get a lease-host file")

	// A second call with the first reservation gone must remove its file.
	err = writeStaticReservations(base, 7, nil)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "aa:bb:cc:00:00:01"))
	assert.True(t, os.IsNotExist(err), "stale reservation file must be pruned")
}

func TestDnsmasqArgsIncludesDHCPRange(t *testing.T) {
	n := &types.Network{VNI: 3, DHCP4Start: "10.0.3.50", DHCP4End: "10.0.3.90", Domain: "pvc.local"}
	args := dnsmasqArgs("/tmp/dnsmasq-test", n, "/tmp/dnsmasq-test/3/lease-hook.sh")

	assert.Contains(t, args, "--dhcp-range=10.0.3.50,10.0.3.90,4h")
	assert.Contains(t, args, "--domain=pvc.local")
	assert.Contains(t, args, "--interface=br3")
	assert.Contains(t, args, "--dhcp-script=/tmp/dnsmasq-test/3/lease-hook.sh")
}

func TestWriteLeaseScriptExecsDHCPEventSubcommand(t *testing.T) {
	base := t.TempDir()

	path, err := writeLeaseScript(base, 9, "/usr/local/bin/pvc-agent")
	require.NoError(t, err)
	assert.Equal(t, leaseScriptPath(base, 9), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "exec /usr/local/bin/pvc-agent dhcp-event --socket="+leaseSocketPath(base, 9))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0100, "lease script must be executable")
}
