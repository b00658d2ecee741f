/*
Package api serves the controller's HTTP/JSON control surface.

Everything an operator or the roost CLI does goes through here: applying
workload specs, scaling, pausing, retiring units, and reading status.
The server mutates nothing itself; it validates and dispatches to the
Backend (satisfied by the cmd wiring over the manager, reconciler and
scale coordinator) and renders the results.

# Routes

	POST   /v1/workloads                                          apply a spec
	GET    /v1/workloads                                          list all
	GET    /v1/namespaces/{ns}/workloads/{name}                   spec + status
	DELETE /v1/namespaces/{ns}/workloads/{name}                   request teardown
	POST   /v1/namespaces/{ns}/workloads/{name}/scale             set replicas
	POST   /v1/namespaces/{ns}/workloads/{name}/pause             suspend reconciliation
	POST   /v1/namespaces/{ns}/workloads/{name}/resume            resume reconciliation
	GET    /v1/namespaces/{ns}/workloads/{name}/units             per-ordinal records
	DELETE /v1/namespaces/{ns}/workloads/{name}/units/{ordinal}   retire one unit
	GET    /v1/namespaces/{ns}/workloads/{name}/bindings          volume bindings
	GET    /v1/events                                             NDJSON event stream
	GET    /healthz                                               liveness

Deleting a workload or a unit is asynchronous on purpose: the handler
records the request and returns 202; the reconcile loop performs the
ordered teardown or replacement. Errors come back as {"error": "..."}
with 404 for missing records and 400 for invalid specs.

Liveness, readiness and Prometheus metrics live on the separate metrics
listener, not here.
*/
package api
