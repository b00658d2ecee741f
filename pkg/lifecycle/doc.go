/*
Package lifecycle drives single units through their phase machine.

The Manager owns the slow per-unit work: binding the volume, pulling the
image, creating and starting the container, graceful termination, and the
per-unit watch goroutines that promote units to Ready and demote them to
Failed. It deliberately knows nothing about ordinals beyond the one it is
operating on; ordering and gating across units belong to the reconciler.

# Phases

	Pending ──► Running ──► Ready
	   │           │          │
	   └───────────┴──────────┴──► Failed
	   │           │          │       │
	   └───────────┴──────────┴───────┴──► Terminating ──► Terminated

Create persists Pending immediately so the ordinal is visible, then works
towards Running. A unit with no probe is promoted to Ready as soon as its
container runs; with a probe, Ready waits for the first passing check.
Failed is entered when the container exits, disappears, or the probe fails
FailureThreshold times in a row. Failed units are not restarted in place:
recovery is retiring the unit and creating a fresh one at the ordinal.

# Asynchrony

Create and Terminate return a *Handle and do their work on a goroutine.
The reconciler keeps at most one handle per ordinal and checks Done on
every pass, so a stuck image pull or a long grace period never blocks
other ordinals from making progress. OnChange lets the reconciler wake
immediately on persisted transitions instead of waiting out its interval.

# Recovery

Resync is called once at controller start. Units recorded as Running or
Ready are matched against their containers: live ones are adopted and
monitored again, dead ones are cleared and reset to Pending for the
reconciler to recreate. Volume bindings are never touched here; Bind is
idempotent and reattaches the existing binding on recreate.
*/
package lifecycle
