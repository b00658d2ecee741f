package types

import (
	"fmt"
	"time"
)

// UnitPhase represents the lifecycle phase of a unit
type UnitPhase string

const (
	UnitPending     UnitPhase = "Pending"
	UnitRunning     UnitPhase = "Running"
	UnitReady       UnitPhase = "Ready"
	UnitTerminating UnitPhase = "Terminating"
	UnitTerminated  UnitPhase = "Terminated"
	UnitFailed      UnitPhase = "Failed"
)

// unitTransitions enumerates the legal phase transitions. A unit never
// re-enters an earlier phase; recovery from Failed requires retiring the
// unit and creating a fresh one at the same ordinal.
var unitTransitions = map[UnitPhase][]UnitPhase{
	UnitPending:     {UnitRunning, UnitFailed, UnitTerminating},
	UnitRunning:     {UnitReady, UnitFailed, UnitTerminating},
	UnitReady:       {UnitFailed, UnitTerminating},
	UnitTerminating: {UnitTerminated},
	UnitTerminated:  {},
	UnitFailed:      {UnitTerminating},
}

// CanTransition reports whether a unit may move from p to next.
func (p UnitPhase) CanTransition(next UnitPhase) bool {
	for _, allowed := range unitTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the phase is an end state that the unit will
// never leave on its own. Failed units hold their phase until an operator
// or the reconciler retires them.
func (p UnitPhase) Terminal() bool {
	return p == UnitTerminated
}

// UpdateStrategyType represents how template changes are rolled out
type UpdateStrategyType string

const (
	// RollingUpdate replaces outdated units one at a time in descending
	// ordinal order, waiting for each replacement to become Ready.
	RollingUpdate UpdateStrategyType = "RollingUpdate"
	// OnDelete recreates a unit with the new template only after the old
	// unit disappears from the runtime.
	OnDelete UpdateStrategyType = "OnDelete"
)

// ManagementPolicy controls ordering guarantees during scale operations
type ManagementPolicy string

const (
	// OrderedReady creates units strictly in ascending ordinal order and
	// deletes them strictly descending, one neighbor gating the next.
	OrderedReady ManagementPolicy = "OrderedReady"
	// Parallel drops the neighbor gates; concurrency limits still apply.
	Parallel ManagementPolicy = "Parallel"
)

// RetentionPolicy decides what happens to a volume binding when its unit
// is retired
type RetentionPolicy string

const (
	RetainVolume RetentionPolicy = "Retain"
	DeleteVolume RetentionPolicy = "Delete"
)

// ProbeType identifies the health probe mechanism
type ProbeType string

const (
	ProbeHTTP ProbeType = "http"
	ProbeTCP  ProbeType = "tcp"
	ProbeExec ProbeType = "exec"
)

// Probe describes a periodic health check run against a unit
type Probe struct {
	Type             ProbeType `json:"type" yaml:"type"`
	Path             string    `json:"path,omitempty" yaml:"path,omitempty"`
	Port             int       `json:"port,omitempty" yaml:"port,omitempty"`
	Command          []string  `json:"command,omitempty" yaml:"command,omitempty"`
	IntervalSeconds  int       `json:"intervalSeconds,omitempty" yaml:"intervalSeconds,omitempty"`
	TimeoutSeconds   int       `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	FailureThreshold int       `json:"failureThreshold,omitempty" yaml:"failureThreshold,omitempty"`
}

// Interval returns the probe interval as a duration.
func (p *Probe) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// Timeout returns the per-check timeout as a duration.
func (p *Probe) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Resources defines compute limits for a unit
type Resources struct {
	CPULimit         float64 `json:"cpuLimit,omitempty" yaml:"cpuLimit,omitempty"`
	MemoryLimitBytes int64   `json:"memoryLimitBytes,omitempty" yaml:"memoryLimitBytes,omitempty"`
}

// UnitTemplate is the per-unit specification stamped out for every ordinal.
// Changing any field changes the template revision and triggers the
// workload's update strategy.
type UnitTemplate struct {
	Image     string     `json:"image" yaml:"image"`
	Command   []string   `json:"command,omitempty" yaml:"command,omitempty"`
	Env       []string   `json:"env,omitempty" yaml:"env,omitempty"`
	MountPath string     `json:"mountPath,omitempty" yaml:"mountPath,omitempty"`
	Resources *Resources `json:"resources,omitempty" yaml:"resources,omitempty"`
	Probe     *Probe     `json:"probe,omitempty" yaml:"probe,omitempty"`
}

// VolumeTemplate describes the persistent volume provisioned per ordinal
type VolumeTemplate struct {
	Class     string          `json:"class,omitempty" yaml:"class,omitempty"`
	SizeBytes int64           `json:"sizeBytes,omitempty" yaml:"sizeBytes,omitempty"`
	Retention VolumeRetention `json:"retention,omitempty" yaml:"retention,omitempty"`
}

// VolumeRetention holds the per-situation retention policies. Both default
// to Retain: scaling down or deleting a workload never destroys data unless
// explicitly requested.
type VolumeRetention struct {
	WhenScaled  RetentionPolicy `json:"whenScaled,omitempty" yaml:"whenScaled,omitempty"`
	WhenDeleted RetentionPolicy `json:"whenDeleted,omitempty" yaml:"whenDeleted,omitempty"`
}

// UpdateStrategy selects and parameterizes the rollout behavior
type UpdateStrategy struct {
	Type UpdateStrategyType `json:"type,omitempty" yaml:"type,omitempty"`
	// Partition limits RollingUpdate to ordinals >= Partition. Units below
	// the partition keep the old template revision.
	Partition int `json:"partition,omitempty" yaml:"partition,omitempty"`
	// TimeoutSeconds bounds how long a replacement may stay not-Ready
	// before the rollout is reported as stalled.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

// Timeout returns the stall timeout as a duration.
func (s UpdateStrategy) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Workload is a stateful set of identical units with stable identities.
// Replicas N means units with ordinals 0..N-1 exist; each ordinal owns a
// volume binding that survives unit replacement.
type Workload struct {
	Name      string `json:"name" yaml:"name"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Replicas  int    `json:"replicas" yaml:"replicas"`

	Template       UnitTemplate   `json:"template" yaml:"template"`
	VolumeTemplate VolumeTemplate `json:"volumeTemplate,omitempty" yaml:"volumeTemplate,omitempty"`
	UpdateStrategy UpdateStrategy `json:"updateStrategy,omitempty" yaml:"updateStrategy,omitempty"`

	ManagementPolicy ManagementPolicy `json:"managementPolicy,omitempty" yaml:"managementPolicy,omitempty"`

	// TerminationGracePeriodSeconds is how long a unit gets between the
	// polite stop signal and the forced kill.
	TerminationGracePeriodSeconds int `json:"terminationGracePeriodSeconds,omitempty" yaml:"terminationGracePeriodSeconds,omitempty"`

	// Paused suspends reconciliation. Health monitoring and in-flight
	// operations continue; no new actions are dispatched.
	Paused bool `json:"paused,omitempty" yaml:"paused,omitempty"`

	// DeleteRequestedAt marks the workload for teardown. The reconciler
	// drains all units before the record itself is removed.
	DeleteRequestedAt *time.Time `json:"deleteRequestedAt,omitempty" yaml:"-"`

	Status WorkloadStatus `json:"status,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// Key returns the namespaced identifier used as the storage key.
func (w *Workload) Key() string {
	return w.Namespace + "/" + w.Name
}

// GracePeriod returns the termination grace period as a duration.
func (w *Workload) GracePeriod() time.Duration {
	return time.Duration(w.TerminationGracePeriodSeconds) * time.Second
}

// Deleting reports whether teardown has been requested.
func (w *Workload) Deleting() bool {
	return w.DeleteRequestedAt != nil
}

// ConditionType labels a workload status condition
type ConditionType string

const (
	ConditionAvailable     ConditionType = "Available"
	ConditionProgressing   ConditionType = "Progressing"
	ConditionDegraded      ConditionType = "Degraded"
	ConditionUpdateStalled ConditionType = "UpdateStalled"
)

// Condition is an observed aspect of workload health
type Condition struct {
	Type           ConditionType `json:"type"`
	Status         bool          `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	Message        string        `json:"message,omitempty"`
	LastTransition time.Time     `json:"lastTransition,omitempty"`
}

// WorkloadStatus is the reconciler's view of the workload, rebuilt every
// pass from persisted unit records
type WorkloadStatus struct {
	Replicas        int    `json:"replicas"`
	ReadyReplicas   int    `json:"readyReplicas"`
	UpdatedReplicas int    `json:"updatedReplicas"`
	CurrentRevision string `json:"currentRevision,omitempty"`
	UpdateRevision  string `json:"updateRevision,omitempty"`

	// HighestReadyOrdinal is the largest ordinal whose unit is Ready, or
	// -1 when none are.
	HighestReadyOrdinal int `json:"highestReadyOrdinal"`

	// BlockedOrdinal identifies the ordinal currently preventing progress,
	// if any, together with the reason.
	BlockedOrdinal *int   `json:"blockedOrdinal,omitempty"`
	BlockedReason  string `json:"blockedReason,omitempty"`

	Conditions []Condition `json:"conditions,omitempty"`
	ObservedAt time.Time   `json:"observedAt,omitempty"`
}

// Condition returns the condition of the given type, or nil.
func (s *WorkloadStatus) Condition(t ConditionType) *Condition {
	for i := range s.Conditions {
		if s.Conditions[i].Type == t {
			return &s.Conditions[i]
		}
	}
	return nil
}

// HealthState is the last observed probe state for a unit
type HealthState struct {
	Healthy              bool      `json:"healthy"`
	ConsecutiveFailures  int       `json:"consecutiveFailures,omitempty"`
	ConsecutiveSuccesses int       `json:"consecutiveSuccesses,omitempty"`
	Message              string    `json:"message,omitempty"`
	CheckedAt            time.Time `json:"checkedAt,omitempty"`
}

// Unit is one member of a workload. Name, Address, Ordinal and BindingID
// are fixed at creation and never change for the lifetime of the record.
type Unit struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Workload  string `json:"workload"`
	Ordinal   int    `json:"ordinal"`
	Address   string `json:"address"`

	Phase    UnitPhase `json:"phase"`
	Revision string    `json:"revision,omitempty"`

	// BindingID ties the unit to its volume binding. A replacement unit at
	// the same ordinal receives the same binding.
	BindingID string `json:"bindingId,omitempty"`

	// RuntimeID is the container identifier, set once started.
	RuntimeID string `json:"runtimeId,omitempty"`
	IP        string `json:"ip,omitempty"`

	Health  *HealthState `json:"health,omitempty"`
	Message string       `json:"message,omitempty"`

	ExitCode int `json:"exitCode,omitempty"`

	CreatedAt    time.Time `json:"createdAt,omitempty"`
	StartedAt    time.Time `json:"startedAt,omitempty"`
	ReadyAt      time.Time `json:"readyAt,omitempty"`
	TerminatedAt time.Time `json:"terminatedAt,omitempty"`
}

// Key returns the namespaced identifier used as the storage key.
func (u *Unit) Key() string {
	return fmt.Sprintf("%s/%s/%d", u.Namespace, u.Workload, u.Ordinal)
}

// BindingPhase tracks whether a volume binding is attached to an ordinal
type BindingPhase string

const (
	// BindingBound means the binding backs a live ordinal.
	BindingBound BindingPhase = "Bound"
	// BindingReleased means the ordinal was retired under the Retain
	// policy; the data stays on disk, detached.
	BindingReleased BindingPhase = "Released"
)

// VolumeBinding associates an ordinal with provisioned storage. The binding
// outlives individual units: replacements at the same ordinal reattach it.
type VolumeBinding struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Workload  string `json:"workload"`
	Ordinal   int    `json:"ordinal"`

	Class     string `json:"class"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`

	// Path is the host location backing the volume, set by the driver.
	Path string `json:"path,omitempty"`

	Phase BindingPhase `json:"phase"`

	CreatedAt  time.Time  `json:"createdAt,omitempty"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
}

// Key returns the namespaced identifier used as the storage key.
func (b *VolumeBinding) Key() string {
	return fmt.Sprintf("%s/%s/%d", b.Namespace, b.Workload, b.Ordinal)
}
