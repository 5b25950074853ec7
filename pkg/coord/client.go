package coord

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/parvane/pvcd/pkg/events"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/metrics"
)

// sessionTTL is how long a session may go without renewal before the
// leader's janitor reaps its ephemeral nodes.
const sessionTTL = 15 * time.Second

// sessionRenewInterval is how often a Client renews its own session.
const sessionRenewInterval = 3 * time.Second

// Config holds configuration for creating a Client.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Client is the Coordination Store Client: a Raft-replicated hierarchical
// key-value tree with ephemeral/sequential nodes, watches, and advisory
// locks.
type Client struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft   *raft.Raft
	fsm    *fsm
	tree   *tree
	broker *events.Broker

	sessionID string

	watches *watchRegistry

	mu               sync.Mutex
	sessionListeners []chan SessionEvent
	stopCh           chan struct{}
	expired          bool
}

// SessionEvent is delivered to listeners registered via OnSessionEvent.
type SessionEvent struct {
	Expired bool
}

// NewClient constructs a Client. Call Bootstrap or Join before use.
func NewClient(cfg *Config) (*Client, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create coordination store data dir: %w", err)
	}

	t, err := newTree(filepath.Join(cfg.DataDir, "coord.db"))
	if err != nil {
		return nil, err
	}

	broker := events.NewBroker()
	broker.Start()

	clock := func() int64 { return time.Now().Unix() }
	f := newFSM(t, broker, clock)

	c := &Client{
		nodeID:    cfg.NodeID,
		bindAddr:  cfg.BindAddr,
		dataDir:   cfg.DataDir,
		tree:      t,
		broker:    broker,
		fsm:       f,
		sessionID: uuid.New().String(),
		watches:   newWatchRegistry(broker),
		stopCh:    make(chan struct{}),
	}
	return c, nil
}

func (c *Client) raftConfig() *raft.Config {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(c.nodeID)

	// Tuned for LAN deployment: detect and elect faster than the library's
	// WAN-oriented defaults so primary failover stays well under the
	// keepalive grace window.
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ElectionTimeout = 500 * time.Millisecond
	cfg.CommitTimeout = 50 * time.Millisecond
	cfg.LeaderLeaseTimeout = 250 * time.Millisecond
	return cfg
}

func (c *Client) newRaft() (*raft.Raft, raft.ServerAddress, error) {
	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, "", fmt.Errorf("resolve coordination store bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, "", fmt.Errorf("create coordination store transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, "", fmt.Errorf("create coordination store snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return nil, "", fmt.Errorf("create coordination store log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, "", fmt.Errorf("create coordination store stable store: %w", err)
	}
	r, err := raft.NewRaft(c.raftConfig(), c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, "", fmt.Errorf("create coordination store raft instance: %w", err)
	}
	return r, transport.LocalAddr(), nil
}

// Bootstrap initializes a new single-node coordination store cluster.
func (c *Client) Bootstrap() error {
	r, localAddr, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(c.nodeID), Address: localAddr}},
	})
	if err := future.Error(); err != nil {
		return fmt.Errorf("bootstrap coordination store cluster: %w", err)
	}

	c.startBackground()
	return nil
}

// Join starts this node's raft instance and relies on the existing leader
// to AddVoter it (out of band; the agent does not request this itself).
func (c *Client) Join() error {
	r, _, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r
	c.startBackground()
	return nil
}

// AddVoter adds a peer to the coordination store's raft configuration.
// Only the leader may call this successfully.
func (c *Client) AddVoter(nodeID, addr string) error {
	if !c.IsLeader() {
		return fmt.Errorf("add voter: not the coordination store leader")
	}
	future := c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	return future.Error()
}

// IsLeader reports whether this node is the coordination store's raft
// leader. It is unrelated to the PVC cluster's elected primary coordinator
// (/primary_node), which is just another path in the tree.
func (c *Client) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// PublishEvent publishes a higher-level domain event (session expiry,
// fencing, domain state transitions) onto the same broker the tree watches
// are dispatched from, so a single Subscribe call observes both.
func (c *Client) PublishEvent(t events.EventType, message string, metadata map[string]string) {
	c.broker.Publish(&events.Event{Type: t, Message: message, Metadata: metadata})
}

// Subscribe returns a channel receiving every event published on this
// client, both the coordination store's own tree.* events and the
// higher-level events published via PublishEvent.
func (c *Client) Subscribe() events.Subscriber {
	return c.broker.Subscribe()
}

// Unsubscribe releases a subscription returned by Subscribe.
func (c *Client) Unsubscribe(sub events.Subscriber) {
	c.broker.Unsubscribe(sub)
}

func (c *Client) applyOp(o op) (*applyResult, error) {
	if c.raft == nil {
		return nil, fmt.Errorf("coordination store raft not initialized")
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CoordApplyDuration)

	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode coordination-store op: %w", err)
	}
	future := c.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("apply coordination-store op: %w", err)
	}
	res, ok := future.Response().(*applyResult)
	if !ok {
		return nil, fmt.Errorf("unexpected coordination-store apply response")
	}
	return res, res.Err
}

func (c *Client) startBackground() {
	go c.sessionRenewLoop()
	go c.janitorLoop()
}

// Shutdown releases this session's ephemeral nodes, stops the raft
// instance, and closes the backing store.
func (c *Client) Shutdown() error {
	close(c.stopCh)

	paths, err := c.tree.ephemeralsBySession(c.sessionID)
	if err == nil {
		for _, p := range paths {
			_, _ = c.applyOp(op{Kind: opDelete, Path: p})
		}
	}

	c.watches.stop()
	c.broker.Stop()

	if c.raft != nil {
		if err := c.raft.Shutdown().Error(); err != nil {
			log.Logger.Warn().Err(err).Msg("coordination store raft shutdown error")
		}
	}
	return c.tree.Close()
}
