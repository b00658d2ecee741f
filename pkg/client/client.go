package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roostlabs/roost/pkg/api"
	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/events"
	"github.com/roostlabs/roost/pkg/types"
)

// Client talks to one roost controller.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the controller at addr (host:port or URL).
func New(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) url(format string, args ...interface{}) string {
	return c.baseURL + fmt.Sprintf(format, args...)
}

// do runs one request and decodes the JSON response into out (skipped
// when out is nil). Error payloads become Go errors; 404 carries
// errdefs.ErrNotFound so callers can errors.Is on it.
func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	msg := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		msg = body.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", msg, errdefs.ErrNotFound)
	}
	return fmt.Errorf("%s", msg)
}

// Apply creates or updates a workload spec.
func (c *Client) Apply(ctx context.Context, w *types.Workload) (*types.Workload, error) {
	var applied types.Workload
	if err := c.do(ctx, http.MethodPost, c.url("/v1/workloads"), w, &applied); err != nil {
		return nil, err
	}
	return &applied, nil
}

// ListWorkloads returns every workload the controller tracks.
func (c *Client) ListWorkloads(ctx context.Context) ([]*types.Workload, error) {
	var list api.WorkloadList
	if err := c.do(ctx, http.MethodGet, c.url("/v1/workloads"), nil, &list); err != nil {
		return nil, err
	}
	return list.Workloads, nil
}

// GetWorkload returns one workload's spec and status.
func (c *Client) GetWorkload(ctx context.Context, namespace, name string) (*types.Workload, error) {
	var w types.Workload
	if err := c.do(ctx, http.MethodGet, c.url("/v1/namespaces/%s/workloads/%s", namespace, name), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeleteWorkload requests teardown of the workload.
func (c *Client) DeleteWorkload(ctx context.Context, namespace, name string) error {
	return c.do(ctx, http.MethodDelete, c.url("/v1/namespaces/%s/workloads/%s", namespace, name), nil, nil)
}

// Scale sets the workload's desired replica count.
func (c *Client) Scale(ctx context.Context, namespace, name string, replicas int) (*types.Workload, error) {
	var w types.Workload
	err := c.do(ctx, http.MethodPost, c.url("/v1/namespaces/%s/workloads/%s/scale", namespace, name),
		api.ScaleRequest{Replicas: replicas}, &w)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Pause suspends reconciliation for the workload.
func (c *Client) Pause(ctx context.Context, namespace, name string) (*types.Workload, error) {
	return c.postWorkload(ctx, namespace, name, "pause")
}

// Resume re-enables reconciliation for the workload.
func (c *Client) Resume(ctx context.Context, namespace, name string) (*types.Workload, error) {
	return c.postWorkload(ctx, namespace, name, "resume")
}

func (c *Client) postWorkload(ctx context.Context, namespace, name, verb string) (*types.Workload, error) {
	var w types.Workload
	if err := c.do(ctx, http.MethodPost, c.url("/v1/namespaces/%s/workloads/%s/%s", namespace, name, verb), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ListUnits returns the workload's per-ordinal unit records.
func (c *Client) ListUnits(ctx context.Context, namespace, name string) ([]*types.Unit, error) {
	var list api.UnitList
	if err := c.do(ctx, http.MethodGet, c.url("/v1/namespaces/%s/workloads/%s/units", namespace, name), nil, &list); err != nil {
		return nil, err
	}
	return list.Units, nil
}

// RetireUnit terminates the unit at ordinal so the reconciler recreates
// it with the current template. The manual replacement trigger under the
// OnDelete strategy, and the recovery route for Failed units.
func (c *Client) RetireUnit(ctx context.Context, namespace, name string, ordinal int) error {
	return c.do(ctx, http.MethodDelete,
		c.url("/v1/namespaces/%s/workloads/%s/units/%s", namespace, name, strconv.Itoa(ordinal)), nil, nil)
}

// ListBindings returns the workload's volume bindings.
func (c *Client) ListBindings(ctx context.Context, namespace, name string) ([]*types.VolumeBinding, error) {
	var list api.BindingList
	if err := c.do(ctx, http.MethodGet, c.url("/v1/namespaces/%s/workloads/%s/bindings", namespace, name), nil, &list); err != nil {
		return nil, err
	}
	return list.Bindings, nil
}

// Events streams controller events into the returned channel until ctx
// is cancelled or the stream ends. namespace and workload filter the
// stream when non-empty.
func (c *Client) Events(ctx context.Context, namespace, workload string) (<-chan *events.Event, error) {
	url := c.url("/v1/events")
	sep := "?"
	if namespace != "" {
		url += sep + "namespace=" + namespace
		sep = "&"
	}
	if workload != "" {
		url += sep + "workload=" + workload
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	// The stream outlives any sane request timeout.
	streaming := &http.Client{}
	resp, err := streaming.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	ch := make(chan *events.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		dec := json.NewDecoder(resp.Body)
		for {
			var e events.Event
			if err := dec.Decode(&e); err != nil {
				return
			}
			select {
			case ch <- &e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
