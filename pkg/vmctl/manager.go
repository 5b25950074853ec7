package vmctl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/events"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/types"
	"github.com/parvane/pvcd/pkg/virt"
)

// Manager owns one Controller per domain defined anywhere in the cluster
// and the local running-domains Registry the Node Supervisor publishes
// from. Every node runs a Manager; a Controller quickly no-ops on any
// reconcile where this node is neither the domain's owner nor currently
// running it locally, so "one instance per locally-relevant guest" falls
// out of the reconcile logic rather than needing its own placement layer.
type Manager struct {
	coord         *coord.Client
	driver        virt.Driver
	selfNode      string
	clusterDomain string
	registry      *Registry
	logger        zerolog.Logger

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewManager(c *coord.Client, d virt.Driver, selfNode, clusterDomain string) *Manager {
	return &Manager{
		coord:         c,
		driver:        d,
		selfNode:      selfNode,
		clusterDomain: clusterDomain,
		registry:      newRegistry(),
		logger:        log.WithComponent("vmctl"),
		controllers:   make(map[string]*Controller),
	}
}

// Start spawns controllers for every currently-defined domain and arms a
// children watch on /domains to keep that set current.
func (m *Manager) Start() error {
	children, err := m.coord.ListChildren(types.DomainsRoot)
	if err != nil {
		return fmt.Errorf("list domains: %w", err)
	}
	for _, uuid := range children {
		m.ensureController(uuid)
	}

	m.coord.WatchChildren(types.DomainsRoot, func(childPath string, deleted bool) coord.Action {
		uuid := domainUUIDFromChildPath(childPath)
		if uuid == "" {
			return coord.Continue
		}
		if deleted {
			m.removeController(uuid)
		} else {
			m.ensureController(uuid)
		}
		return coord.Continue
	})
	return nil
}

func domainUUIDFromChildPath(childPath string) string {
	prefix := types.DomainsRoot + "/"
	if !strings.HasPrefix(childPath, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(childPath, prefix)
	if idx := strings.Index(rest, "/"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

func (m *Manager) ensureController(uuid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.controllers[uuid]; ok {
		return
	}
	ctl := newController(uuid, m.selfNode, m.clusterDomain, m.coord, m.driver, m.registry)
	m.controllers[uuid] = ctl
	ctl.Start()
	m.logger.Debug().Str("uuid", uuid).Msg("domain controller started")
}

func (m *Manager) removeController(uuid string) {
	m.mu.Lock()
	ctl, ok := m.controllers[uuid]
	if ok {
		delete(m.controllers, uuid)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	ctl.Stop()
	m.registry.Remove(uuid)
	m.logger.Debug().Str("uuid", uuid).Msg("domain controller stopped")
}

// Stop stops every live controller.
func (m *Manager) Stop() {
	m.mu.Lock()
	ctls := make([]*Controller, 0, len(m.controllers))
	for uuid, ctl := range m.controllers {
		ctls = append(ctls, ctl)
		delete(m.controllers, uuid)
	}
	m.mu.Unlock()
	for _, ctl := range ctls {
		ctl.Stop()
	}
}

// RunningDomains returns the domains this node currently believes it is
// running, for the Node Supervisor's telemetry publish.
func (m *Manager) RunningDomains() []string {
	return m.registry.List()
}

// Relocate moves ownership of uuid to targetNode, recording originalNode
// as lastnode for unmigrate/autostart. Node and state change together in
// a single transaction per the concurrency model's ordering guarantee, so
// observers never see a half-update.
func (m *Manager) Relocate(uuid, originalNode, targetNode string) error {
	if err := m.coord.WriteAll(map[string][]byte{
		types.DomainLastNodePath(uuid): types.EncodeString(originalNode),
		types.DomainNodePath(uuid):     types.EncodeString(targetNode),
		types.DomainStatePath(uuid):    types.EncodeDomainRunState(types.DomainMigrate),
	}); err != nil {
		return err
	}
	m.coord.PublishEvent(events.EventDomainStateChanged, "domain state changed", map[string]string{
		"uuid":  uuid,
		"state": string(types.DomainMigrate),
	})
	return nil
}

// ReadDomain loads a Domain's scheduling-relevant fields from the store.
func ReadDomain(c *coord.Client, uuid string) (*types.Domain, error) {
	d := &types.Domain{UUID: uuid}

	if b, found, err := c.Read(types.DomainNodePath(uuid)); err != nil {
		return nil, err
	} else if found {
		d.Node = types.DecodeString(b)
	}
	if b, found, err := c.Read(types.DomainLastNodePath(uuid)); err != nil {
		return nil, err
	} else if found {
		d.LastNode = types.DecodeString(b)
	}
	if b, found, err := c.Read(types.DomainStatePath(uuid)); err != nil {
		return nil, err
	} else if found {
		if s, derr := types.DecodeDomainRunState(b); derr == nil {
			d.State = s
		}
	}
	if b, found, err := c.Read(types.DomainNodeLimitPath(uuid)); err != nil {
		return nil, err
	} else if found {
		d.NodeLimit = types.DecodeStringList(b)
	}
	if b, found, err := c.Read(types.DomainNodeSelectorPath(uuid)); err != nil {
		return nil, err
	} else if found {
		if sel, derr := types.DecodeNodeSelector(b); derr == nil {
			d.NodeSelector = sel
		}
	}
	if b, found, err := c.Read(types.DomainAutostartPath(uuid)); err != nil {
		return nil, err
	} else if found {
		if v, derr := types.DecodeBool(b); derr == nil {
			d.NodeAutostart = v
		}
	}
	if b, found, err := c.Read(types.DomainRBDListPath(uuid)); err != nil {
		return nil, err
	} else if found {
		d.RBDList = types.DecodeStringList(b)
	}
	return d, nil
}
