/*
Package metrics provides Prometheus metrics and health endpoints for Roost.

All metrics are registered on the Prometheus default registry at package
init and exposed through a single HTTP handler. The package also carries
the node's health checker: components report their state here and the
/health, /ready and /live endpoints answer from it.

# Architecture

	┌────────────────── METRICS & HEALTH ───────────────────┐
	│                                                         │
	│  ┌───────────────────────────────────────────┐        │
	│  │         Prometheus Registry                │        │
	│  │  - Global DefaultRegistry                  │        │
	│  │  - MustRegister at package init            │        │
	│  │  - Automatic Go runtime metrics            │        │
	│  └──────────────────┬────────────────────────┘        │
	│                     │                                   │
	│  ┌──────────────────▼────────────────────────┐        │
	│  │         Instrumented Components            │        │
	│  │                                             │        │
	│  │  Reconciler: pass duration, pass count,    │        │
	│  │              unit operation outcomes       │        │
	│  │  Volumes: provisioning failures            │        │
	│  │  API: request count and duration           │        │
	│  │  Collector: workload/unit/binding gauges,  │        │
	│  │             Raft state (15s poll)          │        │
	│  └──────────────────┬────────────────────────┘        │
	│                     │                                   │
	│  ┌──────────────────▼────────────────────────┐        │
	│  │         HTTP Endpoints                     │        │
	│  │  /metrics  Prometheus text exposition      │        │
	│  │  /health   aggregate component health      │        │
	│  │  /ready    critical components ready       │        │
	│  │  /live     process liveness                │        │
	│  └───────────────────────────────────────────┘        │
	└─────────────────────────────────────────────────────┘

# Metrics Catalog

Inventory (refreshed by the Collector):

roost_workloads_total:
  - Type: Gauge
  - Description: Total number of workloads

roost_units_total{phase}:
  - Type: Gauge
  - Description: Total units by phase (Pending/Running/Ready/Failed/
    Terminating/Terminated)

roost_volume_bindings_total{phase}:
  - Type: Gauge
  - Description: Total volume bindings by phase (Bound/Released)

Reconciler:

roost_reconcile_passes_total:
  - Type: Counter
  - Description: Reconcile passes completed across all workload loops

roost_reconcile_pass_duration_seconds:
  - Type: Histogram
  - Description: Duration of a single reconcile pass

roost_unit_operations_total{op, outcome}:
  - Type: Counter
  - Description: Completed unit operations by kind (create/terminate)
    and outcome (ok/error/provisioning)

roost_volume_provision_failures_total:
  - Type: Counter
  - Description: Volume provisioning failures observed by the reconciler

Raft (refreshed by the Collector when a RaftSource is attached):

roost_raft_is_leader:
  - Type: Gauge
  - Description: 1 when this node is the Raft leader

roost_raft_log_index, roost_raft_applied_index:
  - Type: Gauge
  - Description: Current and last applied Raft log index

API:

roost_api_requests_total{method, status}:
  - Type: Counter
  - Description: API requests by route and HTTP status

roost_api_request_duration_seconds{method}:
  - Type: Histogram
  - Description: API request duration by route

# Usage

Counters and gauges are package variables, updated directly:

	metrics.ReconcilePassesTotal.Inc()
	metrics.UnitsTotal.WithLabelValues("Ready").Set(3)

Histogram observations usually go through the Timer helper:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.ReconcilePassDuration)

	timer := metrics.NewTimer()
	// ... handle request ...
	timer.ObserveDurationVec(metrics.APIRequestDuration, "GET /v1/workloads")

The Collector polls a read-only Source every 15 seconds and refreshes
the inventory gauges, writing zero for phases that emptied out so stale
values never linger:

	collector := metrics.NewCollector(store, mgr)
	collector.Start()
	defer collector.Stop()

Health checking: components report in, endpoints answer. Readiness
requires raft, runtime and api to have registered healthy.

	metrics.RegisterComponent("runtime", true, "")
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

# Integration Points

This package integrates with:

  - pkg/reconciler: pass timing and unit operation outcomes
  - pkg/manager: health registration, Raft gauges via RaftSource
  - pkg/api: request instrumentation and health endpoint mounting
  - Prometheus: scrapes /metrics

# Design Notes

Label discipline: labels stay cardinality-bounded (phases, operation
kinds, route patterns). Workload names, unit names and ordinals never
appear as label values; those belong in logs and events.

The Collector depends on narrow Source/RaftSource interfaces rather
than the manager type so the metrics package stays import-cycle free:
the reconciler imports metrics, and the manager imports the reconciler.
*/
package metrics
