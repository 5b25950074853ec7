// Package cmdqueue implements the cluster-wide request/response channel
// under /cmd/<channel>: a requester writes "<verb> <args>", the
// authoritative handler for that channel acquires the advisory lock,
// performs the work, and writes "success-<request>" or
// "failure-<request>" back to the same key.
//
// A handler crash releases the ephemeral advisory lock automatically, so
// the next instance to boot retries the request; handlers registered here
// must therefore be idempotent.
package cmdqueue
