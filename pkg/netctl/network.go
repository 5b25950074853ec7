package netctl

import (
	"sort"
	"strconv"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/types"
)

// ReadNetwork loads a Network's configuration fields from the store.
// Fields with no value yet are left at their zero value, the same
// tolerant-read convention as vmctl.ReadDomain and nodesup.ReadNode.
func ReadNetwork(c *coord.Client, vni int) (*types.Network, error) {
	n := &types.Network{VNI: vni}

	if b, found, err := c.Read(types.NetworkTypePath(vni)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeNetworkType(b); derr == nil {
			n.Type = v
		}
	}
	if b, found, err := c.Read(types.NetworkDomainPath(vni)); err != nil {
		return nil, err
	} else if found {
		n.Domain = types.DecodeString(b)
	}
	if b, found, err := c.Read(types.NetworkIP4NetworkPath(vni)); err != nil {
		return nil, err
	} else if found {
		n.IP4Network = types.DecodeString(b)
	}
	if b, found, err := c.Read(types.NetworkIP4GatewayPath(vni)); err != nil {
		return nil, err
	} else if found {
		n.IP4Gateway = types.DecodeString(b)
	}
	if b, found, err := c.Read(types.NetworkIP6NetworkPath(vni)); err != nil {
		return nil, err
	} else if found {
		n.IP6Network = types.DecodeString(b)
	}
	if b, found, err := c.Read(types.NetworkIP6GatewayPath(vni)); err != nil {
		return nil, err
	} else if found {
		n.IP6Gateway = types.DecodeString(b)
	}
	if b, found, err := c.Read(types.NetworkDHCP4FlagPath(vni)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeBool(b); derr == nil {
			n.DHCP4Flag = v
		}
	}
	if b, found, err := c.Read(types.NetworkDHCP4StartPath(vni)); err != nil {
		return nil, err
	} else if found {
		n.DHCP4Start = types.DecodeString(b)
	}
	if b, found, err := c.Read(types.NetworkDHCP4EndPath(vni)); err != nil {
		return nil, err
	} else if found {
		n.DHCP4End = types.DecodeString(b)
	}
	if b, found, err := c.Read(types.NetworkNameServersPath(vni)); err != nil {
		return nil, err
	} else if found {
		n.NameServers = types.DecodeStringList(b)
	}
	return n, nil
}

// ListNetworks loads every defined network, used by the primary's gateway
// assertion pass.
func ListNetworks(c *coord.Client) ([]*types.Network, error) {
	names, err := c.ListChildren(types.NetworksRoot)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Network, 0, len(names))
	for _, name := range names {
		vni, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		n, err := ReadNetwork(c, vni)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// ReadReservations loads every DHCP4 reservation for vni.
func ReadReservations(c *coord.Client, vni int) ([]*types.DHCPReservation, error) {
	macs, err := c.ListChildren(types.NetworkReservationsRoot(vni))
	if err != nil {
		return nil, err
	}
	out := make([]*types.DHCPReservation, 0, len(macs))
	for _, mac := range macs {
		r := &types.DHCPReservation{VNI: vni, MAC: mac}
		if b, found, err := c.Read(types.NetworkReservationIPPath(vni, mac)); err != nil {
			return nil, err
		} else if found {
			r.IPAddr = types.DecodeString(b)
		}
		if b, found, err := c.Read(types.NetworkReservationHostnamePath(vni, mac)); err != nil {
			return nil, err
		} else if found {
			r.Hostname = types.DecodeString(b)
		}
		if b, found, err := c.Read(types.NetworkReservationStaticPath(vni, mac)); err != nil {
			return nil, err
		} else if found {
			if v, derr := types.DecodeBool(b); derr == nil {
				r.Static = v
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// ReadFirewallRules loads every rule for vni/dir, sorted by Order.
func ReadFirewallRules(c *coord.Client, vni int, dir types.FirewallDirection) ([]*types.FirewallRule, error) {
	seqs, err := c.ListChildren(types.NetworkFirewallRoot(vni, dir))
	if err != nil {
		return nil, err
	}
	out := make([]*types.FirewallRule, 0, len(seqs))
	for _, seq := range seqs {
		r := &types.FirewallRule{VNI: vni, Direction: dir, Seq: seq}
		if b, found, err := c.Read(types.NetworkFirewallOrderPath(vni, dir, seq)); err != nil {
			return nil, err
		} else if found {
			if v, derr := types.DecodeInt(b); derr == nil {
				r.Order = v
			}
		}
		if b, found, err := c.Read(types.NetworkFirewallRuleTextPath(vni, dir, seq)); err != nil {
			return nil, err
		} else if found {
			r.Rule = types.DecodeString(b)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}
