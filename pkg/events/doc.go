/*
Package events provides an in-memory event broker for Roost's pub/sub
messaging.

Lifecycle transitions, volume operations and rollout milestones are
published as events so the API, the log and any external watcher observe
the same stream. Publishing never blocks the reconcile path: the broker
buffers up to 100 events and drops delivery to any subscriber whose own
buffer (50 events) is full.

Every event carries the namespace and workload it concerns in Metadata,
plus the ordinal for unit-scoped events, so subscribers can filter
without parsing messages.
*/
package events
