package coord

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hashicorp/raft"
	bolt "go.etcd.io/bbolt"

	"github.com/parvane/pvcd/pkg/events"
)

// opKind identifies the tree mutation a log entry carries.
type opKind string

const (
	opWrite          opKind = "write"
	opCreate         opKind = "create"
	opDelete         opKind = "delete"
	opDeleteRecurse  opKind = "delete_recursive"
	opTxn            opKind = "txn"
	opRenewSession   opKind = "renew_session"
	opExpireSessions opKind = "expire_sessions"
	opCAS            opKind = "cas"
)

// op is one tree mutation; a txn carries a batch of them applied together.
type op struct {
	Kind       opKind `json:"kind"`
	Path       string `json:"path,omitempty"`
	Value      []byte `json:"value,omitempty"`
	Ephemeral  bool   `json:"ephemeral,omitempty"`
	Sequential bool   `json:"sequential,omitempty"`
	Session    string `json:"session,omitempty"`
	Ops        []op   `json:"ops,omitempty"`

	// Compare-and-swap
	OldValue []byte `json:"old_value,omitempty"`

	// Session renewal / expiry
	Expired []string `json:"expired,omitempty"`
}

// applyResult is what FSM.Apply returns through the raft.ApplyFuture.
type applyResult struct {
	Err         error
	CreatedPath string // actual path for sequential creates
	Swapped     bool   // true if a CAS op's comparison matched
}

// fsm applies coordination-tree mutations and republishes the resulting
// watch-relevant events onto the local broker after each apply.
type fsm struct {
	mu      sync.Mutex
	tree    *tree
	broker  *events.Broker
	clock   func() int64 // seconds, injected for session TTL bookkeeping
	renewed map[string]int64
}

func newFSM(t *tree, broker *events.Broker, clock func() int64) *fsm {
	return &fsm{tree: t, broker: broker, clock: clock, renewed: map[string]int64{}}
}

func (f *fsm) Apply(l *raft.Log) interface{} {
	var o op
	if err := json.Unmarshal(l.Data, &o); err != nil {
		return &applyResult{Err: fmt.Errorf("decode coordination-store op: %w", err)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	res := f.apply(o)
	return res
}

func (f *fsm) apply(o op) *applyResult {
	switch o.Kind {
	case opWrite:
		return f.applyWrite(o)
	case opCreate:
		return f.applyCreate(o)
	case opDelete:
		return f.applyDelete(o)
	case opDeleteRecurse:
		return f.applyDeleteRecursive(o)
	case opCAS:
		return f.applyCAS(o)
	case opTxn:
		for _, sub := range o.Ops {
			if res := f.apply(sub); res.Err != nil {
				return res
			}
		}
		return &applyResult{}
	case opRenewSession:
		f.renewed[o.Session] = f.clock()
		return &applyResult{}
	case opExpireSessions:
		for _, session := range o.Expired {
			paths, err := f.tree.ephemeralsBySession(session)
			if err != nil {
				continue
			}
			for _, p := range paths {
				_ = f.tree.delete(p)
				f.publish(events.EventType("tree.deleted"), p, nil)
			}
			delete(f.renewed, session)
		}
		return &applyResult{}
	default:
		return &applyResult{Err: fmt.Errorf("unknown coordination-store op: %s", o.Kind)}
	}
}

func (f *fsm) applyWrite(o op) *applyResult {
	n := &node{Value: o.Value}
	if existing, found, _ := f.tree.get(o.Path); found {
		n.Ephemeral = existing.Ephemeral
		n.Sequential = existing.Sequential
		n.Session = existing.Session
		n.Seq = existing.Seq
	}
	if err := f.tree.put(o.Path, n); err != nil {
		return &applyResult{Err: err}
	}
	f.publish(events.EventType("tree.written"), o.Path, o.Value)
	return &applyResult{}
}

func (f *fsm) applyCreate(o op) *applyResult {
	path := o.Path
	if o.Sequential {
		seq, err := f.tree.nextSequence(o.Path)
		if err != nil {
			return &applyResult{Err: err}
		}
		path = fmt.Sprintf("%s-%010d", o.Path, seq)
	} else if _, found, _ := f.tree.get(path); found {
		return &applyResult{Err: fmt.Errorf("coordination-store path already exists: %s", path)}
	}
	n := &node{Value: o.Value, Ephemeral: o.Ephemeral, Sequential: o.Sequential, Session: o.Session}
	if err := f.tree.put(path, n); err != nil {
		return &applyResult{Err: err}
	}
	f.publish(events.EventType("tree.created"), path, o.Value)
	return &applyResult{CreatedPath: path}
}

// applyCAS writes o.Value at o.Path only if the current value equals
// o.OldValue (a missing path compares equal to a nil/empty OldValue), used
// for leader-less leader election such as primary-coordinator contention.
func (f *fsm) applyCAS(o op) *applyResult {
	existing, found, err := f.tree.get(o.Path)
	if err != nil {
		return &applyResult{Err: err}
	}
	var current []byte
	if found {
		current = existing.Value
	}
	if !bytesEqual(current, o.OldValue) {
		return &applyResult{Swapped: false}
	}

	n := &node{Value: o.Value}
	if found {
		n.Ephemeral = existing.Ephemeral
		n.Sequential = existing.Sequential
		n.Session = existing.Session
		n.Seq = existing.Seq
	}
	if err := f.tree.put(o.Path, n); err != nil {
		return &applyResult{Err: err}
	}
	f.publish(events.EventType("tree.written"), o.Path, o.Value)
	return &applyResult{Swapped: true}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *fsm) applyDelete(o op) *applyResult {
	if err := f.tree.delete(o.Path); err != nil {
		return &applyResult{Err: err}
	}
	f.publish(events.EventType("tree.deleted"), o.Path, nil)
	return &applyResult{}
}

func (f *fsm) applyDeleteRecursive(o op) *applyResult {
	removed, err := f.tree.deleteRecursive(o.Path)
	if err != nil {
		return &applyResult{Err: err}
	}
	for _, p := range removed {
		f.publish(events.EventType("tree.deleted"), p, nil)
	}
	return &applyResult{}
}

// staleSessions returns the session IDs last renewed before the cutoff.
// Only meaningful when called on the leader's fsm, since renewed is only
// advanced by applied renew_session entries.
func (f *fsm) staleSessions(cutoff int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var stale []string
	for session, last := range f.renewed {
		if last < cutoff {
			stale = append(stale, session)
		}
	}
	return stale
}

func (f *fsm) publish(t events.EventType, path string, value []byte) {
	if f.broker == nil {
		return
	}
	f.broker.Publish(&events.Event{
		Type:    t,
		Message: path,
		Metadata: map[string]string{
			"path":  path,
			"value": string(value),
		},
	})
}

// Snapshot dumps the whole tree and session table.
func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dump := treeSnapshot{Renewed: f.renewed}
	err := f.tree.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTree).ForEach(func(k, v []byte) error {
			if strings.HasPrefix(string(k), "\x00seq:") {
				return nil
			}
			var n node
			if err := json.Unmarshal(v, &n); err != nil {
				return nil
			}
			dump.Entries = append(dump.Entries, treeEntry{Path: string(k), Node: n})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &snapshot{data: dump}, nil
}

type treeEntry struct {
	Path string `json:"path"`
	Node node   `json:"node"`
}

type treeSnapshot struct {
	Entries []treeEntry      `json:"entries"`
	Renewed map[string]int64 `json:"renewed"`
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var dump treeSnapshot
	if err := json.NewDecoder(rc).Decode(&dump); err != nil {
		return fmt.Errorf("decode coordination-store snapshot: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range dump.Entries {
		n := e.Node
		if err := f.tree.put(e.Path, &n); err != nil {
			return err
		}
	}
	f.renewed = dump.Renewed
	if f.renewed == nil {
		f.renewed = map[string]int64{}
	}
	return nil
}

type snapshot struct {
	data treeSnapshot
}

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		return json.NewEncoder(sink).Encode(s.data)
	}()
	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *snapshot) Release() {}
