// Package fencing implements the Fencing Module: when the primary
// coordinator observes a peer's keepalive go stale, it marks the peer
// dead, power-cycles it out of band, and on success flushes stale RBD
// locks and relocates the peer's domains to freshly selected live nodes
// so they come back up cold rather than risking a split-brain writer.
package fencing
