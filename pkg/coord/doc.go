/*
Package coord implements the Coordination Store Client: a thin wrapper over
a hierarchical key-value store replicated with Raft, offering the
primitives the rest of the agent is built on — read, write, create
(ephemeral/sequential), delete, list-children, multi-op transaction,
data/children watches, an advisory lock, and a session-state listener.

# Architecture

The tree (pkg/coord/store.go) is a single BoltDB bucket keyed by slash-
delimited path: one generic namespace for every entity. A Raft FSM
(pkg/coord/fsm.go) applies typed tree operations so every node's copy of
the tree is linearizable per key. Watches (pkg/coord/watch.go) are
dispatched locally off an event broker fed by the FSM's apply loop — they
never block the Raft apply path. Advisory locks (pkg/coord/lock.go) and
ephemeral-node sessions (pkg/coord/session.go) are both built from the same
tree primitives rather than bolted on as separate subsystems.

# Session model

A Client holds one session, renewed on a short internal tick. Ephemeral
nodes are tagged with their owning session ID; the Raft leader runs a
janitor that expires sessions which stop renewing and deletes their
ephemeral nodes, firing children-watch events the same way an explicit
delete would. If this node's own renewals fail for longer than the
session TTL, the client delivers a single EXPIRED event to its session
listeners. The client itself keeps accepting operations afterwards; callers
restart the process on that event, per the fatal-session-loss contract
component callers rely on.
*/
package coord
