package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corral_nodes_total",
			Help: "Total number of nodes by phase",
		},
		[]string{"phase"},
	)

	WorkloadsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corral_workloads_total",
			Help: "Total number of workloads by phase",
		},
		[]string{"phase"},
	)

	ClusterCPUCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_cluster_cpu_capacity_cores",
			Help: "Total CPU capacity across Ready nodes in cores",
		},
	)

	ClusterCPUReserved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_cluster_cpu_reserved_cores",
			Help: "CPU cores reserved by placed workloads",
		},
	)

	ClusterMemoryCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_cluster_memory_capacity_bytes",
			Help: "Total memory capacity across Ready nodes in bytes",
		},
	)

	ClusterMemoryReserved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_cluster_memory_reserved_bytes",
			Help: "Memory reserved by placed workloads in bytes",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corral_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Scheduler metrics
	ReconcilePasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_reconcile_passes_total",
			Help: "Total number of reconciliation passes",
		},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corral_reconcile_duration_seconds",
			Help:    "Duration of one reconciliation pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PlacementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_placements_total",
			Help: "Total number of workload placements committed",
		},
	)

	PlacementConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_placement_conflicts_total",
			Help: "Placements abandoned because a revision changed mid-pass",
		},
	)

	EvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_evictions_total",
			Help: "Total number of workloads evicted from lost nodes",
		},
	)

	WorkloadFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_workload_failures_total",
			Help: "Total number of workloads marked Failed",
		},
	)

	NodeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_node_failures_total",
			Help: "Total number of nodes marked Failed",
		},
	)

	RuntimeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_runtime_errors_total",
			Help: "Total number of container runtime call failures",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(WorkloadsTotal)
	prometheus.MustRegister(ClusterCPUCapacity)
	prometheus.MustRegister(ClusterCPUReserved)
	prometheus.MustRegister(ClusterMemoryCapacity)
	prometheus.MustRegister(ClusterMemoryReserved)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(ReconcilePasses)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(PlacementsTotal)
	prometheus.MustRegister(PlacementConflictsTotal)
	prometheus.MustRegister(EvictionsTotal)
	prometheus.MustRegister(WorkloadFailuresTotal)
	prometheus.MustRegister(NodeFailuresTotal)
	prometheus.MustRegister(RuntimeErrorsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
