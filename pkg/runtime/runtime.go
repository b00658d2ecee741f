package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// State describes what the container runtime reports for a unit.
type State string

const (
	// StateUnknown means the runtime could not determine the unit state.
	StateUnknown State = "unknown"

	// StateCreated means the container exists but has never been started.
	StateCreated State = "created"

	// StateRunning means the unit process is running.
	StateRunning State = "running"

	// StateStopped means the unit process has exited. ExitCode carries
	// the exit status.
	StateStopped State = "stopped"

	// StateNotFound means no container exists for the unit.
	StateNotFound State = "notfound"
)

// Status is a point-in-time observation of a unit's container.
type Status struct {
	State    State
	ExitCode int
}

// Mount describes a host path bind-mounted into a unit.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// UnitConfig carries everything the runtime needs to materialize one unit.
type UnitConfig struct {
	// ID uniquely identifies the container within the runtime namespace.
	// Use ContainerID to derive it from a unit's coordinates.
	ID string

	// Hostname is set inside the container so the unit observes its own
	// stable network identity.
	Hostname string

	Image   string
	Command []string
	Env     []string
	Mounts  []Mount

	// CPULimit is in cores (0.5 is half a core). Zero means unlimited.
	CPULimit float64

	// MemoryLimitBytes is a hard cap. Zero means unlimited.
	MemoryLimitBytes int64
}

// Runtime is the container backend units run on. Implementations must make
// StopUnit and RemoveUnit idempotent: acting on a unit that no longer
// exists is not an error.
type Runtime interface {
	// PullImage fetches and unpacks an image so CreateUnit can use it.
	PullImage(ctx context.Context, image string) error

	// CreateUnit creates the container for a unit and returns its runtime ID.
	CreateUnit(ctx context.Context, cfg UnitConfig) (string, error)

	// StartUnit starts the unit process and attaches its network.
	StartUnit(ctx context.Context, id string) error

	// StopUnit sends SIGTERM and escalates to SIGKILL once grace elapses.
	StopUnit(ctx context.Context, id string, grace time.Duration) error

	// RemoveUnit deletes the container and its snapshot.
	RemoveUnit(ctx context.Context, id string) error

	// UnitStatus reports the observed container state.
	UnitStatus(ctx context.Context, id string) (Status, error)

	// UnitIP reports the address the unit is reachable at.
	UnitIP(ctx context.Context, id string) (string, error)

	// ListUnits returns the runtime IDs of every unit container.
	ListUnits(ctx context.Context) ([]string, error)

	Close() error
}

// ContainerID derives the runtime container ID for a unit. Unit names are
// only unique within a namespace, so the namespace is part of the ID.
func ContainerID(namespace, unitName string) string {
	return namespace + "." + unitName
}

// ParseContainerID splits a runtime container ID back into its namespace
// and unit name.
func ParseContainerID(id string) (namespace, unitName string, err error) {
	namespace, unitName, ok := strings.Cut(id, ".")
	if !ok || namespace == "" || unitName == "" {
		return "", "", fmt.Errorf("invalid container ID %q", id)
	}
	return namespace, unitName, nil
}
