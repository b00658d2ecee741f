/*
Package update implements template rollout strategies.

A workload's units carry the revision hash of the template they were
created from. When the template changes, the stored units drift from the
update revision and a strategy decides how they converge:

RollingUpdate replaces outdated units one at a time, highest ordinal
first, waiting for each replacement to become Ready before moving down.
The partition sets a floor: ordinals below it are never replaced, which
lets operators stage a rollout and widen it by lowering the partition.

OnDelete leaves every unit alone. Replacements only happen when units are
retired by hand; the recreate picks up the current template.

Strategies are pure decision functions over the workload and its stored
units. The reconciler asks for the next target only when the workload is
stable, executes the retire, and recreates the ordinal through its normal
create path. There is no rollback: a rollout that cannot make progress
within the update timeout is surfaced through the UpdateStalled condition
and waits for operator action.
*/
package update
