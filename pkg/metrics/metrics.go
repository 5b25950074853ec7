package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pvc_nodes_total",
			Help: "Total number of nodes by daemon_state",
		},
		[]string{"daemon_state"},
	)

	DomainsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pvc_domains_total",
			Help: "Total number of domains by state",
		},
		[]string{"state"},
	)

	// Coordination store (Raft) metrics
	CoordLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pvc_coord_is_leader",
			Help: "Whether this node is the coordination-store Raft leader (1 = leader, 0 = follower)",
		},
	)

	CoordPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pvc_coord_peers_total",
			Help: "Total number of coordination-store peers",
		},
	)

	CoordAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pvc_coord_applied_index",
			Help: "Last applied coordination-store log index",
		},
	)

	CoordApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pvc_coord_apply_duration_seconds",
			Help:    "Time taken to apply a coordination-store log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CoordWatchDispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pvc_coord_watch_dispatch_duration_seconds",
			Help:    "Time taken to dispatch a watch callback in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// VM Controller metrics
	DomainReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pvc_domain_reconcile_duration_seconds",
			Help:    "Time taken for a domain reconciliation pass, by desired state",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	MigrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvc_migrations_total",
			Help: "Total number of live migration attempts by outcome",
		},
		[]string{"outcome"}, // "live", "fallback"
	)

	MigrationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pvc_migration_duration_seconds",
			Help:    "Migration duration in seconds by outcome",
			Buckets: []float64{1, 5, 10, 30, 60, 90, 120, 180},
		},
		[]string{"outcome"},
	)

	LockFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvc_lock_flushes_total",
			Help: "Total number of RBD lock-flush operations by outcome",
		},
		[]string{"outcome"},
	)

	// Node Supervisor / KSE metrics
	KeepaliveTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pvc_keepalive_ticks_total",
			Help: "Total number of keepalive ticks processed",
		},
	)

	NodeFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pvc_node_flush_duration_seconds",
			Help:    "Time taken for a node flush to empty runningdomains",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	// Network Controller metrics
	GatewayAssertionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvc_gateway_assertions_total",
			Help: "Total number of gateway assertion attempts by outcome",
		},
		[]string{"outcome"},
	)

	FirewallRulesApplied = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pvc_firewall_rules_applied",
			Help: "Number of firewall rules currently materialized per network/direction",
		},
		[]string{"vni", "direction"},
	)

	// Fencing metrics
	FenceAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvc_fence_attempts_total",
			Help: "Total number of fencing attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Command queue metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvc_commands_total",
			Help: "Total number of command-queue requests handled by channel and result",
		},
		[]string{"channel", "result"},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(DomainsTotal)
	prometheus.MustRegister(CoordLeader)
	prometheus.MustRegister(CoordPeers)
	prometheus.MustRegister(CoordAppliedIndex)
	prometheus.MustRegister(CoordApplyDuration)
	prometheus.MustRegister(CoordWatchDispatchDuration)
	prometheus.MustRegister(DomainReconcileDuration)
	prometheus.MustRegister(MigrationsTotal)
	prometheus.MustRegister(MigrationDuration)
	prometheus.MustRegister(LockFlushesTotal)
	prometheus.MustRegister(KeepaliveTicksTotal)
	prometheus.MustRegister(NodeFlushDuration)
	prometheus.MustRegister(GatewayAssertionsTotal)
	prometheus.MustRegister(FirewallRulesApplied)
	prometheus.MustRegister(FenceAttemptsTotal)
	prometheus.MustRegister(CommandsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
