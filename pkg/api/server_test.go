package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/types"
)

// fakeBackend records calls and serves canned state.
type fakeBackend struct {
	workloads map[string]*types.Workload
	units     map[string][]*types.Unit
	bindings  map[string][]*types.VolumeBinding

	retired  []int
	deleted  []string
	scaledTo int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		workloads: make(map[string]*types.Workload),
		units:     make(map[string][]*types.Unit),
		bindings:  make(map[string][]*types.VolumeBinding),
	}
}

func (f *fakeBackend) key(namespace, name string) string { return namespace + "/" + name }

func (f *fakeBackend) ApplyWorkload(w *types.Workload) (*types.Workload, error) {
	w.SetDefaults()
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrInvalidSpec, err)
	}
	f.workloads[w.Key()] = w
	return w, nil
}

func (f *fakeBackend) GetWorkload(namespace, name string) (*types.Workload, error) {
	w, ok := f.workloads[f.key(namespace, name)]
	if !ok {
		return nil, fmt.Errorf("workload %s/%s: %w", namespace, name, errdefs.ErrNotFound)
	}
	return w, nil
}

func (f *fakeBackend) ListWorkloads() ([]*types.Workload, error) {
	var out []*types.Workload
	for _, w := range f.workloads {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeBackend) DeleteWorkload(namespace, name string) error {
	if _, err := f.GetWorkload(namespace, name); err != nil {
		return err
	}
	f.deleted = append(f.deleted, f.key(namespace, name))
	return nil
}

func (f *fakeBackend) ScaleWorkload(namespace, name string, replicas int) (*types.Workload, error) {
	w, err := f.GetWorkload(namespace, name)
	if err != nil {
		return nil, err
	}
	if replicas < 0 {
		return nil, fmt.Errorf("%w: replicas must be >= 0", errdefs.ErrInvalidSpec)
	}
	w.Replicas = replicas
	f.scaledTo = replicas
	return w, nil
}

func (f *fakeBackend) PauseWorkload(namespace, name string, paused bool) (*types.Workload, error) {
	w, err := f.GetWorkload(namespace, name)
	if err != nil {
		return nil, err
	}
	w.Paused = paused
	return w, nil
}

func (f *fakeBackend) RetireUnit(namespace, workload string, ordinal int) error {
	f.retired = append(f.retired, ordinal)
	return nil
}

func (f *fakeBackend) ListUnits(namespace, workload string) ([]*types.Unit, error) {
	return f.units[f.key(namespace, workload)], nil
}

func (f *fakeBackend) ListBindings(namespace, workload string) ([]*types.VolumeBinding, error) {
	return f.bindings[f.key(namespace, workload)], nil
}

func newTestServer(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(NewServer(Config{Backend: backend}).Handler())
	t.Cleanup(srv.Close)
	return backend, srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestApplyWorkload(t *testing.T) {
	backend, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/workloads", &types.Workload{
		Name:     "db",
		Replicas: 3,
		Template: types.UnitTemplate{Image: "db:1.0"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var applied types.Workload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&applied))
	assert.Equal(t, "default", applied.Namespace)
	assert.Equal(t, types.OrderedReady, applied.ManagementPolicy)
	assert.Contains(t, backend.workloads, "default/db")
}

func TestApplyInvalidWorkload(t *testing.T) {
	_, srv := newTestServer(t)

	tests := []struct {
		name string
		spec *types.Workload
	}{
		{"missing image", &types.Workload{Name: "db", Replicas: 1}},
		{"missing name", &types.Workload{Replicas: 1, Template: types.UnitTemplate{Image: "db:1.0"}}},
		{"negative replicas", &types.Workload{Name: "db", Replicas: -1, Template: types.UnitTemplate{Image: "db:1.0"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/v1/workloads", tt.spec)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestGetWorkloadNotFound(t *testing.T) {
	_, srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/namespaces/default/workloads/ghost")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScale(t *testing.T) {
	backend, srv := newTestServer(t)
	backend.workloads["default/db"] = &types.Workload{Name: "db", Namespace: "default", Replicas: 3}

	resp := postJSON(t, srv.URL+"/v1/namespaces/default/workloads/db/scale", ScaleRequest{Replicas: 5})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, backend.scaledTo)

	var w types.Workload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&w))
	assert.Equal(t, 5, w.Replicas)
}

func TestScaleRejectsNegative(t *testing.T) {
	backend, srv := newTestServer(t)
	backend.workloads["default/db"] = &types.Workload{Name: "db", Namespace: "default", Replicas: 3}

	resp := postJSON(t, srv.URL+"/v1/namespaces/default/workloads/db/scale", ScaleRequest{Replicas: -2})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPauseResume(t *testing.T) {
	backend, srv := newTestServer(t)
	backend.workloads["default/db"] = &types.Workload{Name: "db", Namespace: "default"}

	resp := postJSON(t, srv.URL+"/v1/namespaces/default/workloads/db/pause", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, backend.workloads["default/db"].Paused)

	resp = postJSON(t, srv.URL+"/v1/namespaces/default/workloads/db/resume", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, backend.workloads["default/db"].Paused)
}

func TestDeleteWorkloadIsAccepted(t *testing.T) {
	backend, srv := newTestServer(t)
	backend.workloads["default/db"] = &types.Workload{Name: "db", Namespace: "default"}

	resp := doRequest(t, http.MethodDelete, srv.URL+"/v1/namespaces/default/workloads/db")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"default/db"}, backend.deleted)
}

func TestListUnits(t *testing.T) {
	backend, srv := newTestServer(t)
	backend.workloads["default/db"] = &types.Workload{Name: "db", Namespace: "default"}
	backend.units["default/db"] = []*types.Unit{
		{Name: "db-0", Ordinal: 0, Phase: types.UnitReady},
		{Name: "db-1", Ordinal: 1, Phase: types.UnitPending},
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/namespaces/default/workloads/db/units")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list UnitList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Units, 2)
	assert.Equal(t, types.UnitReady, list.Units[0].Phase)
}

func TestRetireUnit(t *testing.T) {
	backend, srv := newTestServer(t)
	backend.workloads["default/db"] = &types.Workload{Name: "db", Namespace: "default"}
	backend.units["default/db"] = []*types.Unit{{Name: "db-1", Ordinal: 1, Phase: types.UnitFailed}}

	resp := doRequest(t, http.MethodDelete, srv.URL+"/v1/namespaces/default/workloads/db/units/1")
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []int{1}, backend.retired)

	// No record at ordinal 7 to retire.
	resp = doRequest(t, http.MethodDelete, srv.URL+"/v1/namespaces/default/workloads/db/units/7")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, srv.URL+"/v1/namespaces/default/workloads/db/units/bogus")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	_, srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/healthz")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
