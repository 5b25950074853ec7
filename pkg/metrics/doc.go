/*
Package metrics provides Prometheus metrics collection and exposition for a
node agent's coordination store client, domain controller, node supervisor,
network controller, fencing module, and command queue.

Metrics are registered at package init and exposed over HTTP for scraping.
Unlike a poll-based collector, every metric here is updated inline at the
point of state change by the component that owns it, so there is no separate
background gatherer to keep in sync with the rest of the agent.

# Metrics Catalog

Cluster state:

pvc_nodes_total{daemon_state}:
  - Gauge. Nodes known to the coordination store, grouped by daemon_state.

pvc_domains_total{state}:
  - Gauge. VM domains known to the coordination store, grouped by state.

Coordination store (Raft):

pvc_coord_is_leader:
  - Gauge. 1 if this node holds Raft leadership, 0 otherwise.

pvc_coord_peers_total:
  - Gauge. Number of coordination-store peers.

pvc_coord_applied_index:
  - Gauge. Last applied coordination-store log index.

pvc_coord_apply_duration_seconds:
  - Histogram. Time to apply one coordination-store log entry.

pvc_coord_watch_dispatch_duration_seconds:
  - Histogram. Time to dispatch one watch callback.

Domain controller:

pvc_domain_reconcile_duration_seconds{state}:
  - HistogramVec. Time for a domain reconciliation pass, by the desired
    state the pass reconciled toward.

pvc_migrations_total{outcome}:
  - CounterVec. Live migration attempts, by outcome.

pvc_migration_duration_seconds{outcome}:
  - HistogramVec. Migration duration, by outcome.

pvc_lock_flushes_total{outcome}:
  - CounterVec. RBD lock-flush operations, by outcome.

Node supervisor:

pvc_keepalive_ticks_total:
  - Counter. Keepalive ticks processed.

pvc_node_flush_duration_seconds:
  - Histogram. Time to flush a node's runningdomains list to empty.

Network controller:

pvc_gateway_assertions_total{outcome}:
  - CounterVec. Gateway assertion attempts, by outcome.

pvc_firewall_rules_applied{vni, direction}:
  - GaugeVec. Firewall rules currently materialized, per network VNI/direction.

Fencing:

pvc_fence_attempts_total{outcome}:
  - CounterVec. Fencing attempts, by outcome (success, failure).

Command queue:

pvc_commands_total{channel, result}:
  - CounterVec. Command-queue requests handled, by channel and result.

# Usage

	import "github.com/parvane/pvcd/pkg/metrics"

	metrics.NodesTotal.WithLabelValues("ready").Set(5)
	metrics.MigrationsTotal.WithLabelValues("live").Inc()

	timer := metrics.NewTimer()
	// ... perform an operation ...
	timer.ObserveDurationVec(metrics.MigrationDuration, "live")

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

Package init registration:
  - All metrics are registered in init() via prometheus.MustRegister.
  - MustRegister panics on duplicate registration, so registration happens
    exactly once per metric variable.

Label discipline:
  - Labels are bounded sets (outcome, state, channel), never domain UUIDs or
    node IDs, to keep cardinality predictable.

No polling collector:
  - Earlier designs in this lineage used a background collector that polled
    a cluster manager for counts. This agent has no single in-process
    manager to poll: pkg/nodesup and pkg/vmctl update their own gauges and
    counters directly as state transitions happen.
*/
package metrics
