// Package nodesup implements the Node Supervisor: registers this host in
// the coordination store, runs the Keepalive/Schedule/Evaluate (KSE) tick
// that publishes telemetry and watches peer liveness, contends for the
// primary-coordinator role, and drives node-level state transitions
// (flush/unflush, autostart) the way pkg/worker's heartbeat and health
// monitor loops drive container-worker lifecycle in the teacher repo.
package nodesup
