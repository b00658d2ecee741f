/*
Package reconciler converges workloads toward their declared shape, one
ordered step at a time.

Each tracked workload gets its own reconcile loop. A loop wakes up, reads
the stored spec and unit records, computes the single batch of operations
that is safe to run right now, dispatches them, and writes back an honest
status. Loops for different workloads are fully independent; within one
workload, passes never overlap, which is what makes ordinal assignment
race-free without any cross-node locking.

# Architecture

	┌──────────────────────────────────────────────────────────┐
	│                 Reconcile Loop (per workload)            │
	│        wakes on: interval | poke | operation done        │
	└──────────────┬───────────────────────────────────────────┘
	               │
	               ▼
	┌──────────────────────────┐
	│ BuildState               │  index units by ordinal,
	│                          │  reject conflicting records
	└──────────────┬───────────┘
	               ▼
	┌──────────────────────────┐
	│ Compute (plan.go)        │  gap-fill, update, scale,
	│                          │  retire, forget
	└──────────────┬───────────┘
	               ▼
	┌──────────────────────────┐
	│ execute (loop.go)        │  limiter slots, async dispatch
	│                          │  through the unit driver
	└──────────────┬───────────┘
	               ▼
	┌──────────────────────────┐
	│ ComputeStatus (status.go)│  counts, revisions, conditions,
	│                          │  blocking ordinal
	└──────────────────────────┘

A pass is a pure computation over a snapshot: Compute never touches the
store or the runtime. All slow work (image pulls, container starts,
graceful stops) runs in the lifecycle manager's goroutines; the loop
tracks each operation through its handle and refuses to issue a second
operation for an ordinal that already has one in flight.

# Ordering Model

Bring-up walks ordinals ascending. Unit k is created only once every
unit below k is Ready, so a database's primary at ordinal 0 is serving
before its replica at ordinal 1 boots:

	db-0: Ready        ✓
	db-1: Ready        ✓
	db-2: missing      → create db-2

Scale-down walks descending with the mirrored gate: unit k terminates
only after every unit above k is gone. The two walks can proceed in the
same pass when they do not touch the same ordinal.

Under the Parallel management policy both neighbor gates are off and
every missing or departing ordinal is eligible at once. The per-workload
limiter still applies, so Parallel changes ordering guarantees, not
blast radius.

# Failure Semantics

A Failed unit at ordinal k:

 1. Halts ordered bring-up above k. Creating db-3 while db-2 is crash
    looping would just stack failures.
 2. Never blocks scale-down or deletion. Failed units terminate like
    any other.
 3. Is never replaced automatically. The unit record, its message and
    exit code stay visible until an operator (or the manager's delete
    handler) calls RetireUnit, which terminates the unit and lets the
    ordinary create path bring up a replacement on the current template.

The blocking ordinal and reason are surfaced on the workload status, so
"why is my workload stuck at 2/5" is one Get away.

Volume provisioning failures are softer: the create is retried with
exponential backoff while the unit waits in Pending, and the loop
re-wakes itself when the backoff expires.

# Updates

A template change produces a new update revision. Under RollingUpdate
the plan replaces the highest ordinal still on the old revision, waits
for the replacement to be Ready, then moves down, stopping above the
configured partition. One replacement in flight, ever. If a replacement
sits not-Ready past the configured timeout the status raises
UpdateStalled and the rollout holds; nothing rolls back automatically.

Under OnDelete the plan never replaces units on its own. Terminated or
retired units are recreated on the current template, which is the whole
update mechanism.

Replacement reuses the ordinal's identity end to end: same name, same
address, same volume binding. Only the container is new.

# Records and Forgetting

Unit records outlive their containers on purpose. A Terminated unit at
an in-range ordinal is "forgotten" (record deleted) and recreated, with
its volume binding left in place for the replacement to reattach. A
Terminated unit above the replica count is forgotten for good and its
binding is released per the retention policy. Workload deletion drains
all units descending, releases or deletes bindings per policy, then
removes the workload record itself and retires the loop.

# Conflicts

BuildState refuses snapshots where two records claim one ordinal or a
record's name disagrees with its ordinal. The pass aborts before
planning anything, the Degraded condition carries the conflict, and no
operation runs until the records are repaired. Acting on a snapshot
like that could attach the wrong volume to the wrong unit, which is the
one mistake a stateful controller must never make.

# Integration Points

  - storage: Source reads workloads, units and bindings from the
    replicated store.
  - lifecycle: UnitDriver runs creates and terminations asynchronously;
    completion handles wake the loop.
  - volume: VolumeReleaser detaches bindings when ordinals retire.
  - scale: each loop owns a Limiter capping in-flight creates/deletes.
  - events: status transitions publish workload events when a broker is
    configured.
  - metrics: pass counts, pass durations and per-operation outcomes.

The manager wires all of these and calls Track once per stored workload
at startup; adoption of interrupted operations falls out of planning
over whatever records survived.
*/
package reconciler
