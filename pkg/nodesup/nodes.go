package nodesup

import (
	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/types"
)

// ReadNode loads a Node's published fields from the store. Fields with no
// value yet (a node mid-registration) are left at their zero value rather
// than failing the read, since placement and liveness logic treat an absent
// field the same as its zero value.
func ReadNode(c *coord.Client, name string) (*types.Node, error) {
	n := &types.Node{Name: name}

	if b, found, err := c.Read(types.NodeDaemonStatePath(name)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeDaemonState(b); derr == nil {
			n.DaemonState = v
		}
	}
	if b, found, err := c.Read(types.NodeDomainStatePath(name)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeNodeDomainState(b); derr == nil {
			n.DomainState = v
		}
	}
	if b, found, err := c.Read(types.NodeRouterStatePath(name)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeRouterState(b); derr == nil {
			n.RouterState = v
		}
	}
	if b, found, err := c.Read(types.NodeKeepalivePath(name)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeInt64(b); derr == nil {
			n.Keepalive = v
		}
	}
	if b, found, err := c.Read(types.NodeMemFreePath(name)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeInt64(b); derr == nil {
			n.MemFreeBytes = v
		}
	}
	if b, found, err := c.Read(types.NodeMemUsedPath(name)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeInt64(b); derr == nil {
			n.MemUsedBytes = v
		}
	}
	if b, found, err := c.Read(types.NodeCPULoadPath(name)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeFloat64(b); derr == nil {
			n.CPULoad = v
		}
	}
	if b, found, err := c.Read(types.NodeVCPUAllocPath(name)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeInt(b); derr == nil {
			n.VCPUAlloc = v
		}
	}
	if b, found, err := c.Read(types.NodeRunningDomainsPath(name)); err != nil {
		return nil, err
	} else if found {
		n.RunningDomains = types.DecodeStringList(b)
	}
	if b, found, err := c.Read(types.NodeDomainsCountPath(name)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeInt(b); derr == nil {
			n.DomainsCount = v
		}
	}
	if b, found, err := c.Read(types.NodeManagementAddrPath(name)); err != nil {
		return nil, err
	} else if found {
		n.ManagementAddr = types.DecodeString(b)
	}
	if b, found, err := c.Read(types.NodeCoordinatorPath(name)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeBool(b); derr == nil {
			n.Coordinator = v
		}
	}
	return n, nil
}

// ListNodes loads every registered node. Used by flush/unflush placement
// and by the Fencing Module to build the candidate set for relocation.
func ListNodes(c *coord.Client) ([]*types.Node, error) {
	names, err := c.ListChildren(types.NodesRoot)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Node, 0, len(names))
	for _, name := range names {
		n, err := ReadNode(c, name)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
