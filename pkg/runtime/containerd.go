package runtime

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	cerrdefs "github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	gocni "github.com/containerd/go-cni"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/roostlabs/roost/pkg/log"
)

const (
	// DefaultNamespace is the containerd namespace for Roost units
	DefaultNamespace = "roost"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// DefaultCNIConfDir is where CNI network configuration is loaded from
	DefaultCNIConfDir = "/etc/cni/net.d"

	// DefaultCNIBinDir is where CNI plugin binaries are looked up
	DefaultCNIBinDir = "/opt/cni/bin"

	// ipLabel records the unit's CNI-assigned address on the container so
	// it survives a controller restart.
	ipLabel = "io.roost.unit/ip"

	// cfsPeriod is the CFS scheduler period CPU quotas are computed against.
	cfsPeriod = uint64(100000)
)

// Config configures the containerd-backed runtime.
type Config struct {
	// SocketPath is the containerd socket. Empty uses DefaultSocketPath.
	SocketPath string

	// Namespace is the containerd namespace units live in. Empty uses
	// DefaultNamespace.
	Namespace string

	// HostNetwork runs units in the host network namespace instead of
	// attaching a CNI network. Units then share the node's address.
	HostNetwork bool

	// CNIConfDir and CNIBinDirs override the CNI plugin locations.
	CNIConfDir string
	CNIBinDirs []string
}

// ContainerdRuntime implements Runtime on top of containerd.
type ContainerdRuntime struct {
	client    *containerd.Client
	cni       gocni.CNI
	namespace string
	nodeIP    string
}

var _ Runtime = (*ContainerdRuntime)(nil)

// NewContainerdRuntime connects to containerd and, unless host networking
// is requested, loads the CNI configuration units will be attached to.
func NewContainerdRuntime(cfg Config) (*ContainerdRuntime, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.CNIConfDir == "" {
		cfg.CNIConfDir = DefaultCNIConfDir
	}
	if len(cfg.CNIBinDirs) == 0 {
		cfg.CNIBinDirs = []string{DefaultCNIBinDir}
	}

	client, err := containerd.New(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	r := &ContainerdRuntime{
		client:    client,
		namespace: cfg.Namespace,
		nodeIP:    nodeIPv4(),
	}

	if !cfg.HostNetwork {
		cni, err := gocni.New(
			gocni.WithMinNetworkCount(2),
			gocni.WithPluginConfDir(cfg.CNIConfDir),
			gocni.WithPluginDir(cfg.CNIBinDirs),
		)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to initialize CNI: %w", err)
		}
		if err := cni.Load(gocni.WithLoNetwork, gocni.WithDefaultConf); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to load CNI config from %s: %w", cfg.CNIConfDir, err)
		}
		r.cni = cni
	}

	return r, nil
}

// Close closes the containerd client connection
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// PullImage pulls a container image from a registry
func (r *ContainerdRuntime) PullImage(ctx context.Context, imageRef string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	_, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack)
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageRef, err)
	}

	return nil
}

// CreateUnit creates the container for a unit from its resolved config.
// The image must already have been pulled.
func (r *ContainerdRuntime) CreateUnit(ctx context.Context, cfg UnitConfig) (string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	image, err := r.client.GetImage(ctx, cfg.Image)
	if err != nil {
		return "", fmt.Errorf("failed to get image %s: %w", cfg.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(cfg.Env),
		oci.WithHostname(cfg.Hostname),
	}
	if len(cfg.Command) > 0 {
		opts = append(opts, oci.WithProcessArgs(cfg.Command...))
	}
	if r.cni == nil {
		opts = append(opts,
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostHostsFile,
			oci.WithHostResolvconf,
		)
	}
	if cfg.CPULimit > 0 {
		quota := int64(cfg.CPULimit * float64(cfsPeriod))
		opts = append(opts, oci.WithCPUCFS(quota, cfsPeriod))
	}
	if cfg.MemoryLimitBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(cfg.MemoryLimitBytes)))
	}
	if len(cfg.Mounts) > 0 {
		mounts := make([]specs.Mount, 0, len(cfg.Mounts))
		for _, m := range cfg.Mounts {
			options := []string{"rbind", "rw"}
			if m.ReadOnly {
				options = []string{"rbind", "ro"}
			}
			mounts = append(mounts, specs.Mount{
				Source:      m.HostPath,
				Destination: m.ContainerPath,
				Type:        "bind",
				Options:     options,
			})
		}
		opts = append(opts, oci.WithMounts(mounts))
	}

	container, err := r.client.NewContainer(
		ctx,
		cfg.ID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(cfg.ID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	return container.ID(), nil
}

// StartUnit starts the unit's task and attaches its CNI network. The
// assigned address is recorded as a container label so UnitIP can answer
// after a controller restart.
func (r *ContainerdRuntime) StartUnit(ctx context.Context, id string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", id, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx)
		return fmt.Errorf("failed to start task: %w", err)
	}

	ip := r.nodeIP
	if r.cni != nil {
		ip, err = r.attachNetwork(ctx, id, task.Pid())
		if err != nil {
			_, _ = task.Delete(ctx, containerd.WithProcessKill)
			return err
		}
	}

	if _, err := container.SetLabels(ctx, map[string]string{ipLabel: ip}); err != nil {
		return fmt.Errorf("failed to record unit IP: %w", err)
	}

	return nil
}

// StopUnit stops a running unit. SIGTERM is sent first; once the grace
// period elapses without the task exiting the kill escalates to SIGKILL.
func (r *ContainerdRuntime) StopUnit(ctx context.Context, id string, grace time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load container %s: %w", id, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// No task means the unit is not running.
		return nil
	}
	pid := task.Pid()

	// Wait must be registered before the signal or the exit can be missed.
	statusC, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}

	if err := task.Kill(ctx, syscall.SIGTERM); err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to signal task: %w", err)
	}

	select {
	case <-statusC:
	case <-time.After(grace):
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil && !cerrdefs.IsNotFound(err) {
			return fmt.Errorf("failed to force kill task: %w", err)
		}
		select {
		case <-statusC:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	r.detachNetwork(ctx, id, pid)

	if _, err := task.Delete(ctx); err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return nil
}

// RemoveUnit deletes the container and its snapshot. A still-attached task
// is killed first since it blocks container deletion.
func (r *ContainerdRuntime) RemoveUnit(ctx context.Context, id string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load container %s: %w", id, err)
	}

	if task, err := container.Task(ctx, nil); err == nil {
		r.detachNetwork(ctx, id, task.Pid())
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !cerrdefs.IsNotFound(err) {
			return fmt.Errorf("failed to delete task: %w", err)
		}
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete container: %w", err)
	}

	return nil
}

// UnitStatus returns the observed state of a unit's container.
func (r *ContainerdRuntime) UnitStatus(ctx context.Context, id string) (Status, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return Status{State: StateNotFound}, nil
		}
		return Status{State: StateUnknown}, fmt.Errorf("failed to load container %s: %w", id, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			// Created but never started, or the task was already deleted.
			return Status{State: StateCreated}, nil
		}
		return Status{State: StateUnknown}, fmt.Errorf("failed to get task: %w", err)
	}

	status, err := task.Status(ctx)
	if err != nil {
		return Status{State: StateUnknown}, fmt.Errorf("failed to get task status: %w", err)
	}

	switch status.Status {
	case containerd.Running, containerd.Paused, containerd.Pausing:
		return Status{State: StateRunning}, nil
	case containerd.Stopped:
		return Status{State: StateStopped, ExitCode: int(status.ExitStatus)}, nil
	case containerd.Created:
		return Status{State: StateCreated}, nil
	default:
		return Status{State: StateUnknown}, nil
	}
}

// UnitIP reports the unit's address: the CNI-assigned IP recorded at start,
// or the node address under host networking.
func (r *ContainerdRuntime) UnitIP(ctx context.Context, id string) (string, error) {
	if r.cni == nil {
		return r.nodeIP, nil
	}

	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to load container %s: %w", id, err)
	}

	labels, err := container.Labels(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read container labels: %w", err)
	}

	ip := labels[ipLabel]
	if ip == "" {
		return "", fmt.Errorf("no IP recorded for %s", id)
	}
	return ip, nil
}

// ListUnits returns all container IDs in the Roost namespace
func (r *ContainerdRuntime) ListUnits(ctx context.Context) ([]string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		ids = append(ids, c.ID())
	}

	return ids, nil
}

// attachNetwork joins the task's network namespace to the loaded CNI
// networks and returns the assigned IPv4 address.
func (r *ContainerdRuntime) attachNetwork(ctx context.Context, id string, pid uint32) (string, error) {
	netns := fmt.Sprintf("/proc/%d/ns/net", pid)

	result, err := r.cni.Setup(ctx, id, netns)
	if err != nil {
		return "", fmt.Errorf("failed to set up network for %s: %w", id, err)
	}

	for name, iface := range result.Interfaces {
		if name == "lo" {
			continue
		}
		for _, conf := range iface.IPConfigs {
			if ip := conf.IP.To4(); ip != nil {
				return ip.String(), nil
			}
		}
	}

	return "", fmt.Errorf("no IPv4 address assigned to %s", id)
}

// detachNetwork releases the unit's CNI allocation. Failures are logged
// rather than returned so teardown always reaches task deletion.
func (r *ContainerdRuntime) detachNetwork(ctx context.Context, id string, pid uint32) {
	if r.cni == nil {
		return
	}
	netns := fmt.Sprintf("/proc/%d/ns/net", pid)
	if err := r.cni.Remove(ctx, id, netns); err != nil {
		log.Logger.Warn().Err(err).Str("container", id).Msg("Failed to release unit network")
	}
}

// nodeIPv4 picks the node's first non-loopback IPv4 address. Used for
// units running with host networking.
func nodeIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip := ipNet.IP.To4(); ip != nil {
			return ip.String()
		}
	}
	return "127.0.0.1"
}
