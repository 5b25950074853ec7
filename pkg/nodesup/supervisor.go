package nodesup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/metrics"
	"github.com/parvane/pvcd/pkg/types"
	"github.com/parvane/pvcd/pkg/virt"
	"github.com/parvane/pvcd/pkg/vmctl"
)

const (
	defaultTick              = 5 * time.Second
	keepaliveGraceMultiplier = 6
	flushTimeout             = 30 * time.Minute
)

// GatewayAsserter is the primary-only gateway surface the KSE tick and
// primary election call into, kept as an interface (mirroring virt.Driver's
// split from *virt.Conn) so election and flush logic are unit-testable
// without a real network namespace.
type GatewayAsserter interface {
	AssertGateways(ctx context.Context) error
	TeardownGateways(ctx context.Context) error
}

// Fencer is the peer-fencing surface the liveness check calls into.
type Fencer interface {
	Fence(ctx context.Context, peer string) error
}

// Config configures a Supervisor.
type Config struct {
	Coord          *coord.Client
	Driver         virt.Driver
	VMCtl          *vmctl.Manager
	Gateway        GatewayAsserter
	Fencer         Fencer
	SelfNode       string
	Coordinator    bool
	ManagementAddr string
	Tick           time.Duration
}

// Supervisor is the Node Supervisor: registration, the KSE tick, primary
// election, and node-level flush/unflush/autostart orchestration.
type Supervisor struct {
	coord          *coord.Client
	driver         virt.Driver
	vmctl          *vmctl.Manager
	gateway        GatewayAsserter
	fencer         Fencer
	selfNode       string
	coordinator    bool
	managementAddr string
	tick           time.Duration
	logger         zerolog.Logger

	mu              sync.Mutex
	lastDomainState types.DomainState
	isPrimary       bool

	domainTriggerCh chan struct{}
	cancelWatch     func()
	stopCh          chan struct{}
	doneCh          chan struct{}
	domainDoneCh    chan struct{}
}

// NewSupervisor constructs a Supervisor. Call Start to register the node
// and begin the KSE tick.
func NewSupervisor(cfg Config) *Supervisor {
	tick := cfg.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Supervisor{
		coord:           cfg.Coord,
		driver:          cfg.Driver,
		vmctl:           cfg.VMCtl,
		gateway:         cfg.Gateway,
		fencer:          cfg.Fencer,
		selfNode:        cfg.SelfNode,
		coordinator:     cfg.Coordinator,
		managementAddr:  cfg.ManagementAddr,
		tick:            tick,
		logger:          log.WithNodeID(cfg.SelfNode),
		lastDomainState: types.NodeDomainStateReady,
		domainTriggerCh: make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
		domainDoneCh:    make(chan struct{}),
	}
}

// Start registers the node in the coordination store and launches the KSE
// tick loop and the domain_state reconciliation loop.
func (s *Supervisor) Start() error {
	if err := s.register(); err != nil {
		return fmt.Errorf("register node %s: %w", s.selfNode, err)
	}
	s.cancelWatch = s.coord.WatchData(types.NodeDomainStatePath(s.selfNode), func(deleted bool) coord.Action {
		if deleted {
			return coord.Stop
		}
		s.triggerDomainState()
		return coord.Continue
	})
	go s.domainStateLoop()
	go s.tickLoop()
	return nil
}

// Stop stops the tick and domain_state loops and marks the daemon stopped.
func (s *Supervisor) Stop() {
	close(s.stopCh)
	<-s.doneCh
	<-s.domainDoneCh
	if s.cancelWatch != nil {
		s.cancelWatch()
	}
}

// IsPrimary reports whether this node currently holds /primary_node.
func (s *Supervisor) IsPrimary() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPrimary
}

func (s *Supervisor) setPrimary(v bool) {
	s.mu.Lock()
	s.isPrimary = v
	s.mu.Unlock()
}

func (s *Supervisor) register() error {
	nodePath := types.NodePath(s.selfNode)
	if _, found, err := s.coord.Read(nodePath); err != nil {
		return err
	} else if !found {
		if _, err := s.coord.Create(nodePath, types.EncodeString(s.selfNode), false, false); err != nil {
			return err
		}
		fields := map[string][]byte{
			types.NodeDaemonStatePath(s.selfNode):    types.EncodeDaemonState(types.DaemonStateInit),
			types.NodeDomainStatePath(s.selfNode):    types.EncodeNodeDomainState(types.NodeDomainStateReady),
			types.NodeRouterStatePath(s.selfNode):    types.EncodeRouterState(types.RouterStateSecondary),
			types.NodeKeepalivePath(s.selfNode):      types.EncodeInt64(0),
			types.NodeMemFreePath(s.selfNode):        types.EncodeInt64(0),
			types.NodeMemUsedPath(s.selfNode):        types.EncodeInt64(0),
			types.NodeCPULoadPath(s.selfNode):        types.EncodeFloat64(0),
			types.NodeVCPUAllocPath(s.selfNode):      types.EncodeInt(0),
			types.NodeRunningDomainsPath(s.selfNode): types.EncodeStringList(nil),
			types.NodeDomainsCountPath(s.selfNode):   types.EncodeInt(0),
			types.NodeManagementAddrPath(s.selfNode): types.EncodeString(s.managementAddr),
			types.NodeCoordinatorPath(s.selfNode):    types.EncodeBool(s.coordinator),
		}
		for path, val := range fields {
			if _, err := s.coord.Create(path, val, false, false); err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
		}
	}

	if _, err := s.coord.Create(nodePath+"/liveness", []byte("1"), true, false); err != nil {
		return fmt.Errorf("create liveness witness: %w", err)
	}

	return s.writeDaemonState(types.DaemonStateRun)
}

func (s *Supervisor) writeDaemonState(state types.DaemonState) error {
	return s.coord.Write(types.NodeDaemonStatePath(s.selfNode), types.EncodeDaemonState(state))
}

func (s *Supervisor) readDaemonState() (types.DaemonState, error) {
	b, found, err := s.coord.Read(types.NodeDaemonStatePath(s.selfNode))
	if err != nil {
		return "", err
	}
	if !found {
		return types.DaemonStateInit, nil
	}
	return types.DecodeDaemonState(b)
}

func (s *Supervisor) tickLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tickOnce()
		case <-s.stopCh:
			if s.IsPrimary() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.relinquish(ctx)
				cancel()
			}
			_ = s.writeDaemonState(types.DaemonStateStop)
			return
		}
	}
}

func (s *Supervisor) tickOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.tick)
	defer cancel()

	metrics.KeepaliveTicksTotal.Inc()

	if err := s.publishTelemetry(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("telemetry publish failed")
	}
	s.checkPeers(ctx)
	s.maybeElect(ctx)

	if s.IsPrimary() && s.gateway != nil {
		if err := s.gateway.AssertGateways(ctx); err != nil {
			metrics.GatewayAssertionsTotal.WithLabelValues("failure").Inc()
			s.logger.Warn().Err(err).Msg("gateway assertion failed")
		} else {
			metrics.GatewayAssertionsTotal.WithLabelValues("success").Inc()
		}
	}
}
