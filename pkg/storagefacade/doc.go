// Package storagefacade issues the CLI requests that drive the external
// Ceph/RBD block store: pool, OSD, volume, and snapshot lifecycle, plus
// stuck-lock recovery for a domain's block devices.
//
// The heavy lifting (replication, placement, scrubbing) happens inside
// Ceph itself; this package only shapes and serializes the `ceph`/`rbd`
// invocations; it does not write the coordination store's /ceph telemetry
// subtree. Every pool, OSD, volume and snapshot call holds an advisory
// lock on the affected /ceph coordination-store path first, so that a
// pool or volume is never touched by two nodes concurrently; FlushLocks
// takes no lock of its own.
package storagefacade
