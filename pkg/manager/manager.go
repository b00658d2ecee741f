package manager

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/log"
	"github.com/roostlabs/roost/pkg/storage"
	"github.com/roostlabs/roost/pkg/types"
)

// applyTimeout bounds how long a write waits for log commitment.
const applyTimeout = 5 * time.Second

// Config holds the settings for creating a Manager.
type Config struct {
	// NodeID identifies this node in the Raft configuration.
	NodeID string
	// RaftBindAddr is the TCP address the Raft transport listens on.
	RaftBindAddr string
	// DataDir holds the BoltDB store, the Raft log and snapshots.
	DataDir string
}

// Manager is the replicated state owner. Writes go through the Raft log
// into the FSM; reads come straight from the local store.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string
	logger   zerolog.Logger

	raft  *raft.Raft
	fsm   *FSM
	store storage.Store
}

// New creates a Manager with its store opened. Call Bootstrap to bring
// up the log before issuing writes.
func New(cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Manager{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.RaftBindAddr,
		dataDir:  cfg.DataDir,
		logger:   log.WithComponent("manager"),
		fsm:      NewFSM(store),
		store:    store,
	}, nil
}

// Bootstrap starts the Raft log as a single-node cluster. An existing
// log directory is replayed instead of re-bootstrapped, which is what
// makes controller state survive restarts.
func (m *Manager) Bootstrap() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)

	// Tighter than the library defaults, which assume WAN latency.
	// Heartbeat 500ms / lease 250ms keeps failure detection under a
	// second on a LAN without spurious elections.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	config.LogOutput = m.logger.With().Str("subsystem", "raft").Logger()

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("resolve raft bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("create raft transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("create stable store: %w", err)
	}

	hasState, err := raft.HasExistingState(logStore, stableStore, snapshots)
	if err != nil {
		return fmt.Errorf("inspect raft state: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshots, transport)
	if err != nil {
		return fmt.Errorf("create raft: %w", err)
	}
	m.raft = r

	if !hasState {
		future := m.raft.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{
				{ID: config.LocalID, Address: transport.LocalAddr()},
			},
		})
		if err := future.Error(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
	}

	// Writes need a leader; on a single node that is an election away.
	select {
	case leader := <-m.raft.LeaderCh():
		if !leader {
			return fmt.Errorf("node %s did not win leadership", m.nodeID)
		}
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timed out waiting for leadership")
	}

	m.logger.Info().
		Str("node", m.nodeID).
		Str("addr", m.bindAddr).
		Bool("recovered", hasState).
		Msg("Raft log ready")
	return nil
}

// Apply commits one command to the log and waits for the FSM result.
func (m *Manager) Apply(cmd Command) error {
	if m.raft == nil {
		return fmt.Errorf("raft not bootstrapped")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	future := m.raft.Apply(data, applyTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply %s: %w", cmd.Op, err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) apply(op string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", op, err)
	}
	return m.Apply(Command{Op: op, Data: data})
}

// ApplyWorkload validates and persists a workload spec, creating it or
// updating it in place. Immutable identity (creation time, current
// status, pending deletion) carries over from the stored record.
func (m *Manager) ApplyWorkload(w *types.Workload) (*types.Workload, error) {
	w.SetDefaults()
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrInvalidSpec, err)
	}

	now := time.Now()
	existing, err := m.store.GetWorkload(w.Namespace, w.Name)
	switch {
	case err == nil:
		if existing.Deleting() {
			return nil, fmt.Errorf("%w: workload %s is being deleted", errdefs.ErrInvalidSpec, w.Key())
		}
		w.CreatedAt = existing.CreatedAt
		w.Status = existing.Status
		w.Paused = existing.Paused
	case errdefs.IsNotFound(err):
		w.CreatedAt = now
	default:
		return nil, err
	}
	w.UpdatedAt = now

	if err := m.apply(opSaveWorkload, w); err != nil {
		return nil, err
	}
	return w, nil
}

// PutReplicas sets the desired replica count. Satisfies the scale
// coordinator's spec store.
func (m *Manager) PutReplicas(namespace, name string, replicas int) error {
	return m.apply(opScaleWorkload, scalePayload{Namespace: namespace, Name: name, Replicas: replicas})
}

// SetPaused suspends or resumes reconciliation for the workload.
func (m *Manager) SetPaused(namespace, name string, paused bool) (*types.Workload, error) {
	w, err := m.store.GetWorkload(namespace, name)
	if err != nil {
		return nil, err
	}
	if w.Paused == paused {
		return w, nil
	}
	if err := m.apply(opPauseWorkload, pausePayload{Namespace: namespace, Name: name, Paused: paused}); err != nil {
		return nil, err
	}
	w.Paused = paused
	return w, nil
}

// RequestDelete marks the workload for teardown. The reconcile loop
// drains the units and removes the record once they are gone.
func (m *Manager) RequestDelete(namespace, name string) error {
	if _, err := m.store.GetWorkload(namespace, name); err != nil {
		return err
	}
	return m.apply(opRequestDelete, requestDeletePayload{Namespace: namespace, Name: name, At: time.Now()})
}

// UpdateStatus persists a freshly computed workload status. Satisfies
// the reconciler's recorder.
func (m *Manager) UpdateStatus(w *types.Workload) error {
	return m.apply(opUpdateStatus, statusPayload{Namespace: w.Namespace, Name: w.Name, Status: w.Status})
}

// DeleteWorkload removes the workload record. Only the reconcile loop
// calls this, after the last unit is gone.
func (m *Manager) DeleteWorkload(namespace, name string) error {
	return m.apply(opDeleteWorkload, workloadRef{Namespace: namespace, Name: name})
}

// SaveUnit persists a unit record. Satisfies the lifecycle recorder.
func (m *Manager) SaveUnit(u *types.Unit) error {
	return m.apply(opSaveUnit, u)
}

// DeleteUnit removes a unit record.
func (m *Manager) DeleteUnit(namespace, workload string, ordinal int) error {
	return m.apply(opDeleteUnit, ordinalRef{Namespace: namespace, Workload: workload, Ordinal: ordinal})
}

// SaveBinding persists a volume binding. Satisfies the binder's store.
func (m *Manager) SaveBinding(b *types.VolumeBinding) error {
	return m.apply(opSaveBinding, b)
}

// DeleteBinding removes a volume binding record.
func (m *Manager) DeleteBinding(namespace, workload string, ordinal int) error {
	return m.apply(opDeleteBinding, ordinalRef{Namespace: namespace, Workload: workload, Ordinal: ordinal})
}

// Reads go straight to the local store.

func (m *Manager) GetWorkload(namespace, name string) (*types.Workload, error) {
	return m.store.GetWorkload(namespace, name)
}

func (m *Manager) ListWorkloads() ([]*types.Workload, error) {
	return m.store.ListWorkloads()
}

func (m *Manager) GetUnit(namespace, workload string, ordinal int) (*types.Unit, error) {
	return m.store.GetUnit(namespace, workload, ordinal)
}

func (m *Manager) ListUnits(namespace, workload string) ([]*types.Unit, error) {
	return m.store.ListUnits(namespace, workload)
}

func (m *Manager) GetBinding(namespace, workload string, ordinal int) (*types.VolumeBinding, error) {
	return m.store.GetBinding(namespace, workload, ordinal)
}

func (m *Manager) ListBindings(namespace, workload string) ([]*types.VolumeBinding, error) {
	return m.store.ListBindings(namespace, workload)
}

// IsLeader reports whether this node currently leads the log.
func (m *Manager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

// RaftStats exposes the consensus internals for the metrics collector.
func (m *Manager) RaftStats() map[string]string {
	if m.raft == nil {
		return nil
	}
	return m.raft.Stats()
}

// Shutdown stops the log and closes the store.
func (m *Manager) Shutdown() error {
	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}
