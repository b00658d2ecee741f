package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/types"
)

// ScaleRequest is the body of the scale endpoint.
type ScaleRequest struct {
	Replicas int `json:"replicas"`
}

// WorkloadList wraps the list endpoints' payloads.
type WorkloadList struct {
	Workloads []*types.Workload `json:"workloads"`
}

type UnitList struct {
	Units []*types.Unit `json:"units"`
}

type BindingList struct {
	Bindings []*types.VolumeBinding `json:"bindings"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var spec types.Workload
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("decode workload: %v", err)})
		return
	}

	applied, err := s.backend.ApplyWorkload(&spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleListWorkloads(w http.ResponseWriter, r *http.Request) {
	workloads, err := s.backend.ListWorkloads()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WorkloadList{Workloads: workloads})
}

func (s *Server) handleGetWorkload(w http.ResponseWriter, r *http.Request) {
	workload, err := s.backend.GetWorkload(r.PathValue("namespace"), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workload)
}

func (s *Server) handleDeleteWorkload(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteWorkload(r.PathValue("namespace"), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	// Teardown is ordered and asynchronous; 202 says "accepted, watch
	// the status".
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "deleting"})
}

func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	var req ScaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("decode scale request: %v", err)})
		return
	}

	workload, err := s.backend.ScaleWorkload(r.PathValue("namespace"), r.PathValue("name"), req.Replicas)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workload)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, true)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, false)
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	workload, err := s.backend.PauseWorkload(r.PathValue("namespace"), r.PathValue("name"), paused)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workload)
}

func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	namespace, name := r.PathValue("namespace"), r.PathValue("name")
	if _, err := s.backend.GetWorkload(namespace, name); err != nil {
		writeError(w, err)
		return
	}
	units, err := s.backend.ListUnits(namespace, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UnitList{Units: units})
}

func (s *Server) handleRetireUnit(w http.ResponseWriter, r *http.Request) {
	ordinal, err := strconv.Atoi(r.PathValue("ordinal"))
	if err != nil || ordinal < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid ordinal %q", r.PathValue("ordinal"))})
		return
	}

	namespace, name := r.PathValue("namespace"), r.PathValue("name")
	units, err := s.backend.ListUnits(namespace, name)
	if err != nil {
		writeError(w, err)
		return
	}
	found := false
	for _, u := range units {
		if u.Ordinal == ordinal {
			found = true
			break
		}
	}
	if !found {
		writeError(w, fmt.Errorf("unit %s-%d in %s: %w", name, ordinal, namespace, errdefs.ErrNotFound))
		return
	}

	if err := s.backend.RetireUnit(namespace, name, ordinal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retiring"})
}

func (s *Server) handleListBindings(w http.ResponseWriter, r *http.Request) {
	namespace, name := r.PathValue("namespace"), r.PathValue("name")
	if _, err := s.backend.GetWorkload(namespace, name); err != nil {
		writeError(w, err)
		return
	}
	bindings, err := s.backend.ListBindings(namespace, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BindingList{Bindings: bindings})
}
