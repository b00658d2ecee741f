/*
Package types defines the core data structures used throughout Roost.

This package contains the domain model for stateful workloads: workload
specifications, per-ordinal units, volume bindings, and the status the
reconciler reports back. All other packages build on these types for
state management, persistence, and orchestration logic.

# Core Types

Workload:
  - Replicas N means units 0..N-1 exist, no more, no fewer
  - Template: the per-unit container spec; hashing it yields the revision
  - VolumeTemplate: per-ordinal persistent storage and retention policies
  - UpdateStrategy: RollingUpdate (with partition) or OnDelete
  - ManagementPolicy: OrderedReady or Parallel

Unit:
  - One member of a workload, addressed as <workload>-<ordinal>
  - Ordinal, Name, Address and BindingID never change after creation
  - Phase follows the lifecycle state machine below

VolumeBinding:
  - Ties an ordinal to provisioned storage
  - Survives unit replacement; reattached to the next unit at the ordinal
  - Released (data kept) or deleted per the retention policy

# State Machine

Units follow a one-way state machine:

	Pending → Running → Ready
	   ↓         ↓        ↓
	 Failed    Failed   Failed

	any non-terminal → Terminating → Terminated

Valid transitions are encoded in CanTransition. There is no path out of
Failed except Terminating: a failed ordinal is replaced, never revived.

# Design Patterns

All enums use typed string constants. Optional configuration uses
pointers (nil Probe means no health checking). Time-valued spec fields
are integer seconds so YAML input stays plain; accessor methods convert
to time.Duration.

Types are read-safe for concurrent use; mutations must be synchronized
by callers. The storage layer persists all types as JSON.
*/
package types
