/*
Package runtime provides the container backend units run on.

The Runtime interface covers the full unit container lifecycle: image pull,
create, start, graceful stop, and removal, plus the status and address
queries the lifecycle manager polls. Two implementations exist: a
containerd-backed runtime for production and an in-memory fake for tests.

# Architecture

	┌────────────────── CONTAINERD RUNTIME ──────────────────┐
	│                                                          │
	│  ┌────────────────────────────────────────────┐         │
	│  │          ContainerdRuntime Client          │         │
	│  │  - Socket: /run/containerd/containerd.sock │         │
	│  │  - Namespace: roost                        │         │
	│  └────────────────────┬───────────────────────┘         │
	│                       │                                  │
	│  ┌────────────────────▼───────────────────────┐         │
	│  │             Unit Lifecycle                 │         │
	│  │  - Create: OCI spec from UnitConfig        │         │
	│  │  - Start: task + CNI network attach        │         │
	│  │  - Stop: SIGTERM, SIGKILL after grace      │         │
	│  │  - Remove: container + snapshot cleanup    │         │
	│  └────────────────────┬───────────────────────┘         │
	│                       │                                  │
	│  ┌────────────────────▼───────────────────────┐         │
	│  │               Networking                   │         │
	│  │  - CNI: per-unit namespace, stable query   │         │
	│  │    via io.roost.unit/ip container label    │         │
	│  │  - Host mode: units share the node address │         │
	│  └────────────────────────────────────────────┘         │
	└──────────────────────────────────────────────────────────┘

# Container Identity

Unit names are only unique within a Roost namespace, so the runtime
container ID is "<namespace>.<unit>", for example "default.db-0".
ContainerID and ParseContainerID convert between the two forms; the
controller uses ParseContainerID on startup to match live containers
against stored unit records.

# Stop Semantics

StopUnit registers the task wait channel first, sends SIGTERM, and only
escalates to SIGKILL once the grace period elapses without an exit. The
CNI allocation is released before the task is deleted so the IPAM lease
does not leak. Stopping or removing a unit that no longer exists returns
nil; teardown paths must be safe to repeat.

# Resource Limits

UnitConfig.CPULimit is expressed in cores and applied as a CFS quota
against a 100ms period (0.5 cores = 50000µs per 100000µs).
MemoryLimitBytes maps directly to the cgroup memory limit. Zero values
leave the unit unconstrained.

# Usage

	rt, err := runtime.NewContainerdRuntime(runtime.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()

	ctx := context.Background()
	if err := rt.PullImage(ctx, "postgres:16"); err != nil {
		log.Fatal(err)
	}

	id, err := rt.CreateUnit(ctx, runtime.UnitConfig{
		ID:       runtime.ContainerID("default", "db-0"),
		Hostname: "db-0",
		Image:    "postgres:16",
		Env:      []string{"PGDATA=/data/pg"},
		Mounts: []runtime.Mount{
			{HostPath: "/var/lib/roost/volumes/default/bind-1", ContainerPath: "/data"},
		},
		MemoryLimitBytes: 512 * 1024 * 1024,
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := rt.StartUnit(ctx, id); err != nil {
		log.Fatal(err)
	}

	ip, _ := rt.UnitIP(ctx, id)

	// Later: graceful stop with a 30s window, then cleanup.
	_ = rt.StopUnit(ctx, id, 30*time.Second)
	_ = rt.RemoveUnit(ctx, id)

# Testing

FakeRuntime implements Runtime in memory. StopDelay simulates a unit that
ignores SIGTERM, Exit simulates a crash, and Seed plants containers as if
a previous controller run created them. CreateOrder and ForceKilled let
tests assert ordering and escalation behavior.

# See Also

  - pkg/lifecycle for the state machine driving these operations
  - pkg/volume for the host paths mounted into units
  - containerd documentation: https://containerd.io/
*/
package runtime
