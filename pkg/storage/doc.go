/*
Package storage provides BoltDB-backed persistence for Roost's controller
state.

The Store interface covers the three durable record types: workloads,
units, and volume bindings. All values are serialized as JSON and kept in
one bucket per type inside <dataDir>/roost.db.

# Key Layout

	workloads  <namespace>/<name>
	units      <namespace>/<workload>/<ordinal, zero-padded to 8 digits>
	bindings   <namespace>/<workload>/<ordinal, zero-padded to 8 digits>

Zero-padding the ordinal makes bolt's lexicographic key order equal to
numeric ordinal order, so ListUnits and ListBindings return records
sorted by ordinal via a plain prefix scan.

# Semantics

Saves are upserts. Gets wrap errdefs.ErrNotFound for missing keys so
callers can distinguish absence from I/O failure. Deletes of absent keys
succeed.

Reads use db.View and may run concurrently; writes use db.Update and are
serialized by bolt. When the store sits behind the replicated log, the
state machine is the only writer and applies commands in log order.
*/
package storage
