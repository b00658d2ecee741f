/*
Package health provides the probe mechanisms behind unit readiness.

Three probe types are supported, selected by the unit template:

	┌──────────────────────────────────────────────┐
	│              Checker Interface               │
	│  • Check(ctx) Result                         │
	│  • Type() ProbeType                          │
	└────────┬─────────────────────────────────────┘
	         │
	    ┌────┴──────┬──────────┐
	    ▼           ▼          ▼
	┌────────┐  ┌───────┐  ┌────────┐
	│  HTTP  │  │  TCP  │  │  Exec  │
	└────────┘  └───────┘  └────────┘

ForProbe translates a template probe plus the unit's IP into a ready-made
checker and schedule, so the lifecycle monitor never assembles URLs or
addresses itself.

Status accumulates results. The first success flips a unit healthy; the
configured number of consecutive failures (default 3) flips it unhealthy,
reported exactly once so the monitor can fail the unit on the crossing.
A new Status starts unproven, which is what keeps a unit in Running until
its first passing probe.
*/
package health
