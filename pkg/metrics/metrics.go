package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Inventory metrics
	WorkloadsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_workloads_total",
			Help: "Total number of workloads",
		},
	)

	UnitsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roost_units_total",
			Help: "Total number of units by phase",
		},
		[]string{"phase"},
	)

	BindingsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roost_volume_bindings_total",
			Help: "Total number of volume bindings by phase",
		},
		[]string{"phase"},
	)

	// Reconciler metrics
	ReconcilePassesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roost_reconcile_passes_total",
			Help: "Total reconcile passes completed across all workloads",
		},
	)

	ReconcilePassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roost_reconcile_pass_duration_seconds",
			Help:    "Duration of a single reconcile pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	UnitOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_unit_operations_total",
			Help: "Total unit operations by kind and outcome",
		},
		[]string{"op", "outcome"},
	)

	ProvisionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roost_volume_provision_failures_total",
			Help: "Total volume provisioning failures",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roost_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(WorkloadsTotal)
	prometheus.MustRegister(UnitsTotal)
	prometheus.MustRegister(BindingsTotal)
	prometheus.MustRegister(ReconcilePassesTotal)
	prometheus.MustRegister(ReconcilePassDuration)
	prometheus.MustRegister(UnitOperationsTotal)
	prometheus.MustRegister(ProvisionFailuresTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
