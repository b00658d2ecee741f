/*
Package manager owns the controller's replicated write path.

Every durable state change (workload specs, unit records, volume
bindings) is serialized as a Command, committed through a Raft log, and
applied to the BoltDB store by the FSM. Reads bypass the log and hit the
local store directly.

# Write Path

	caller ──► Manager.Apply(Command) ──► raft.Apply
	                                          │ committed
	                                          ▼
	                                    FSM.Apply(log)
	                                          │
	                                          ▼
	                                    storage.Store

Running even a single node through the log buys two things: recovery is
log replay plus snapshot restore, so a controller killed mid-reconcile
comes back with exactly the records it had committed; and the write path
is already shaped for a multi-node control plane without touching any
caller.

# Commands

The FSM processes whole-record upserts and deletes (save_workload,
save_unit, save_binding and their deletes) plus narrow spec mutations
(scale_workload, pause_workload, request_delete, update_status) that
read-modify-write inside the state machine so a scale cannot be clobbered
by a concurrent status write.

# Interfaces Served

The Manager satisfies the write-side interfaces the rest of the
controller is programmed against: the lifecycle manager's unit recorder,
the volume binder's binding store, the scale coordinator's spec store,
and the reconciler's source and recorder. The cmd wiring hands the same
Manager to all of them.
*/
package manager
