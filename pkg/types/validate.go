package types

import (
	"fmt"
	"strings"
)

const (
	DefaultNamespace = "default"

	DefaultGracePeriodSeconds   = 30
	DefaultUpdateTimeoutSeconds = 300

	DefaultProbeIntervalSeconds  = 30
	DefaultProbeTimeoutSeconds   = 10
	DefaultProbeFailureThreshold = 3

	DefaultVolumeClass = "local"
	DefaultMountPath   = "/data"
)

// SetDefaults fills in unset optional fields. Called on every spec before
// it is persisted so stored records are always fully populated.
func (w *Workload) SetDefaults() {
	if w.Namespace == "" {
		w.Namespace = DefaultNamespace
	}
	if w.ManagementPolicy == "" {
		w.ManagementPolicy = OrderedReady
	}
	if w.TerminationGracePeriodSeconds <= 0 {
		w.TerminationGracePeriodSeconds = DefaultGracePeriodSeconds
	}
	if w.UpdateStrategy.Type == "" {
		w.UpdateStrategy.Type = RollingUpdate
	}
	if w.UpdateStrategy.TimeoutSeconds <= 0 {
		w.UpdateStrategy.TimeoutSeconds = DefaultUpdateTimeoutSeconds
	}
	if w.VolumeTemplate.Class == "" {
		w.VolumeTemplate.Class = DefaultVolumeClass
	}
	if w.VolumeTemplate.Retention.WhenScaled == "" {
		w.VolumeTemplate.Retention.WhenScaled = RetainVolume
	}
	if w.VolumeTemplate.Retention.WhenDeleted == "" {
		w.VolumeTemplate.Retention.WhenDeleted = RetainVolume
	}
	if w.Template.MountPath == "" {
		w.Template.MountPath = DefaultMountPath
	}
	if p := w.Template.Probe; p != nil {
		if p.IntervalSeconds <= 0 {
			p.IntervalSeconds = DefaultProbeIntervalSeconds
		}
		if p.TimeoutSeconds <= 0 {
			p.TimeoutSeconds = DefaultProbeTimeoutSeconds
		}
		if p.FailureThreshold <= 0 {
			p.FailureThreshold = DefaultProbeFailureThreshold
		}
	}
}

// Validate checks the spec for fields that cannot be defaulted away.
func (w *Workload) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workload name is required")
	}
	if strings.Contains(w.Name, "/") || strings.Contains(w.Name, ".") {
		return fmt.Errorf("workload name %q must not contain '/' or '.'", w.Name)
	}
	if strings.Contains(w.Namespace, "/") || strings.Contains(w.Namespace, ".") {
		return fmt.Errorf("namespace %q must not contain '/' or '.'", w.Namespace)
	}
	if w.Replicas < 0 {
		return fmt.Errorf("replicas must be >= 0, got %d", w.Replicas)
	}
	if w.Template.Image == "" {
		return fmt.Errorf("template image is required")
	}
	switch w.UpdateStrategy.Type {
	case RollingUpdate:
		if w.UpdateStrategy.Partition < 0 {
			return fmt.Errorf("update partition must be >= 0, got %d", w.UpdateStrategy.Partition)
		}
	case OnDelete:
		if w.UpdateStrategy.Partition != 0 {
			return fmt.Errorf("partition is only valid with the RollingUpdate strategy")
		}
	default:
		return fmt.Errorf("unknown update strategy %q", w.UpdateStrategy.Type)
	}
	switch w.ManagementPolicy {
	case OrderedReady, Parallel:
	default:
		return fmt.Errorf("unknown management policy %q", w.ManagementPolicy)
	}
	for _, pol := range []RetentionPolicy{w.VolumeTemplate.Retention.WhenScaled, w.VolumeTemplate.Retention.WhenDeleted} {
		switch pol {
		case RetainVolume, DeleteVolume:
		default:
			return fmt.Errorf("unknown retention policy %q", pol)
		}
	}
	if p := w.Template.Probe; p != nil {
		switch p.Type {
		case ProbeHTTP:
			if p.Port <= 0 {
				return fmt.Errorf("http probe requires a port")
			}
		case ProbeTCP:
			if p.Port <= 0 {
				return fmt.Errorf("tcp probe requires a port")
			}
		case ProbeExec:
			if len(p.Command) == 0 {
				return fmt.Errorf("exec probe requires a command")
			}
		default:
			return fmt.Errorf("unknown probe type %q", p.Type)
		}
	}
	return nil
}
