package netctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parvane/pvcd/pkg/types"
)

func TestReadNetworkDecodesAllFields(t *testing.T) {
	c := newTestCoordClient(t)
	seedManagedNetwork(t, c, 20, true)

	n, err := ReadNetwork(c, 20)
	require.NoError(t, err)
	assert.Equal(t, types.NetworkManaged, n.Type)
	assert.Equal(t, "10.0.1.0/24", n.IP4Network)
	assert.Equal(t, "10.0.1.1", n.IP4Gateway)
	assert.True(t, n.DHCP4Flag)
	assert.Equal(t, "10.0.1.100", n.DHCP4Start)
	assert.Equal(t, "10.0.1.200", n.DHCP4End)
}

func TestReadReservationsRoundTrips(t *testing.T) {
	c := newTestCoordClient(t)
	seedManagedNetwork(t, c, 21, true)

	_, err := c.Create(types.NetworkReservationsRoot(21), nil, false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkReservationPath(21, "aa:bb:cc:dd:ee:ff"), nil, false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkReservationIPPath(21, "aa:bb:cc:dd:ee:ff"), types.EncodeString("10.0.1.50"), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkReservationHostnamePath(21, "aa:bb:cc:dd:ee:ff"), types.EncodeString("host1"), false, false)
	require.NoError(t, err)
	_, err = c.Create(types.NetworkReservationStaticPath(21, "aa:bb:cc:dd:ee:ff"), types.EncodeBool(true), false, false)
	require.NoError(t, err)

	reservations, err := ReadReservations(c, 21)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", reservations[0].MAC)
	assert.Equal(t, "10.0.1.50", reservations[0].IPAddr)
	assert.Equal(t, "host1", reservations[0].Hostname)
	assert.True(t, reservations[0].Static)
}

func TestListNetworksSkipsNonNumericChildren(t *testing.T) {
	c := newTestCoordClient(t)
	seedManagedNetwork(t, c, 22, false)
	_, err := c.Create(types.NetworksRoot+"/not-a-vni", nil, false, false)
	require.NoError(t, err)

	networks, err := ListNetworks(c)
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, 22, networks[0].VNI)
}
