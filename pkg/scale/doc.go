// Package scale owns the replica count and the surge limits.
//
// ScaleTo is the only code path that mutates a workload's Replicas. The
// reconciler never changes the count on its own; it converges the unit
// set towards whatever ScaleTo last stored. Scaling is declarative:
// calling ScaleTo(5) on a workload with 2 units records the new count
// and returns immediately, and the reconciler creates ordinals 2..4 one
// at a time on its next passes.
//
// The Limiter bounds concurrent runtime churn. By default each workload
// may have one create and one delete in flight at a time. A reconciler
// pass that cannot get a slot simply retries on the next pass; nothing
// queues and nothing is lost.
package scale
