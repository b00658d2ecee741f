package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/roostlabs/roost/pkg/storage"
	"github.com/roostlabs/roost/pkg/types"
)

// Command is one state change in the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Operations the FSM applies. Whole-record ops carry the record as Data;
// the workload mutations carry a small payload and read-modify-write
// inside the state machine.
const (
	opSaveWorkload   = "save_workload"
	opDeleteWorkload = "delete_workload"
	opScaleWorkload  = "scale_workload"
	opPauseWorkload  = "pause_workload"
	opRequestDelete  = "request_delete"
	opUpdateStatus   = "update_status"
	opSaveUnit       = "save_unit"
	opDeleteUnit     = "delete_unit"
	opSaveBinding    = "save_binding"
	opDeleteBinding  = "delete_binding"
)

type workloadRef struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

type ordinalRef struct {
	Namespace string `json:"namespace"`
	Workload  string `json:"workload"`
	Ordinal   int    `json:"ordinal"`
}

type scalePayload struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Replicas  int    `json:"replicas"`
}

type pausePayload struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Paused    bool   `json:"paused"`
}

// requestDeletePayload carries the deletion timestamp so applying the
// log is deterministic; the FSM never reads the clock.
type requestDeletePayload struct {
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	At        time.Time `json:"at"`
}

type statusPayload struct {
	Namespace string               `json:"namespace"`
	Name      string               `json:"name"`
	Status    types.WorkloadStatus `json:"status"`
}

// FSM applies committed commands to the BoltDB store. It is the only
// writer to the store once the manager is running.
type FSM struct {
	mu    sync.Mutex
	store storage.Store
}

// NewFSM creates a state machine over the given store.
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Apply applies one committed log entry. The returned value is the
// command error, surfaced to the caller through the apply future.
func (f *FSM) Apply(entry *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opSaveWorkload:
		var w types.Workload
		if err := json.Unmarshal(cmd.Data, &w); err != nil {
			return err
		}
		return f.store.SaveWorkload(&w)

	case opDeleteWorkload:
		var ref workloadRef
		if err := json.Unmarshal(cmd.Data, &ref); err != nil {
			return err
		}
		return f.store.DeleteWorkload(ref.Namespace, ref.Name)

	case opScaleWorkload:
		var p scalePayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.mutateWorkload(p.Namespace, p.Name, func(w *types.Workload) {
			w.Replicas = p.Replicas
		})

	case opPauseWorkload:
		var p pausePayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.mutateWorkload(p.Namespace, p.Name, func(w *types.Workload) {
			w.Paused = p.Paused
		})

	case opRequestDelete:
		var p requestDeletePayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.mutateWorkload(p.Namespace, p.Name, func(w *types.Workload) {
			if w.DeleteRequestedAt == nil {
				at := p.At
				w.DeleteRequestedAt = &at
			}
		})

	case opUpdateStatus:
		var p statusPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.mutateWorkload(p.Namespace, p.Name, func(w *types.Workload) {
			w.Status = p.Status
		})

	case opSaveUnit:
		var u types.Unit
		if err := json.Unmarshal(cmd.Data, &u); err != nil {
			return err
		}
		return f.store.SaveUnit(&u)

	case opDeleteUnit:
		var ref ordinalRef
		if err := json.Unmarshal(cmd.Data, &ref); err != nil {
			return err
		}
		return f.store.DeleteUnit(ref.Namespace, ref.Workload, ref.Ordinal)

	case opSaveBinding:
		var b types.VolumeBinding
		if err := json.Unmarshal(cmd.Data, &b); err != nil {
			return err
		}
		return f.store.SaveBinding(&b)

	case opDeleteBinding:
		var ref ordinalRef
		if err := json.Unmarshal(cmd.Data, &ref); err != nil {
			return err
		}
		return f.store.DeleteBinding(ref.Namespace, ref.Workload, ref.Ordinal)

	default:
		return fmt.Errorf("unknown command op %q", cmd.Op)
	}
}

// mutateWorkload loads the workload, applies fn, bumps UpdatedAt, and
// writes it back. This keeps narrow mutations from overwriting fields a
// concurrent writer changed between the caller's read and the commit.
func (f *FSM) mutateWorkload(namespace, name string, fn func(w *types.Workload)) error {
	w, err := f.store.GetWorkload(namespace, name)
	if err != nil {
		return err
	}
	fn(w)
	w.UpdatedAt = time.Now()
	return f.store.SaveWorkload(w)
}

// stateSnapshot is the serialized form of everything the FSM owns.
type stateSnapshot struct {
	Workloads []*types.Workload      `json:"workloads"`
	Units     []*types.Unit          `json:"units"`
	Bindings  []*types.VolumeBinding `json:"bindings"`
}

// Snapshot captures the full store for log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	workloads, err := f.store.ListWorkloads()
	if err != nil {
		return nil, fmt.Errorf("list workloads: %w", err)
	}

	snap := &stateSnapshot{Workloads: workloads}
	for _, w := range workloads {
		units, err := f.store.ListUnits(w.Namespace, w.Name)
		if err != nil {
			return nil, fmt.Errorf("list units for %s: %w", w.Key(), err)
		}
		snap.Units = append(snap.Units, units...)

		bindings, err := f.store.ListBindings(w.Namespace, w.Name)
		if err != nil {
			return nil, fmt.Errorf("list bindings for %s: %w", w.Key(), err)
		}
		snap.Bindings = append(snap.Bindings, bindings...)
	}
	return snap, nil
}

// Restore replaces the FSM state with a snapshot. Saves are upserts, so
// restoring over an existing store converges on the snapshot contents.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap stateSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, w := range snap.Workloads {
		if err := f.store.SaveWorkload(w); err != nil {
			return fmt.Errorf("restore workload %s: %w", w.Key(), err)
		}
	}
	for _, u := range snap.Units {
		if err := f.store.SaveUnit(u); err != nil {
			return fmt.Errorf("restore unit %s: %w", u.Key(), err)
		}
	}
	for _, b := range snap.Bindings {
		if err := f.store.SaveBinding(b); err != nil {
			return fmt.Errorf("restore binding %s: %w", b.Key(), err)
		}
	}
	return nil
}

// Persist writes the snapshot to the sink as one JSON document.
func (s *stateSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return sink.Close()
}

// Release is a no-op; the snapshot holds no resources.
func (s *stateSnapshot) Release() {}
