/*
Package volume provides per-ordinal persistent storage for workload units.

The central object is the Binder, which maintains the one-to-one mapping
between an ordinal and its VolumeBinding:

	┌──────────────────────────────────────────────────────┐
	│                       Binder                          │
	│  • Bind(ordinal): idempotent, provisions on first use │
	│  • Unbind(ordinal, policy): Retain or Delete          │
	│  • routes to a Driver by volume class                 │
	└────────┬─────────────────────────────────────────────┘
	         │
	         ▼
	┌────────────────────┐
	│     Driver API     │  (Interface)
	│  • Provision       │
	│  • Remove          │
	│  • Mount           │
	│  • Unmount         │
	└────────┬───────────┘
	         │
	         ▼
	┌──────────────┐
	│ LocalDriver  │  directories under /var/lib/roost/volumes
	└──────────────┘

# Binding Lifecycle

A binding is created the first time a unit at an ordinal starts and is
reused by every replacement unit at that ordinal. Scaling down detaches
the binding under the workload's retention policy:

	Retain  → record marked Released, directory kept; a future scale-up
	          at the ordinal reattaches the same data
	Delete  → directory and record destroyed; the ordinal starts fresh

Provisioning failures surface as errdefs.ErrProvisioning so the caller
can hold the unit in Pending and retry with backoff rather than failing
the unit outright.
*/
package volume
