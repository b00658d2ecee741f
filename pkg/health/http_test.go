package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/roostlabs/roost/pkg/types"
)

func TestHTTPChecker_HealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)

	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}

	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestHTTPChecker_UnhealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("error"))
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)

	result := checker.Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy, got healthy: %s", result.Message)
	}
}

func TestHTTPChecker_CustomStatusRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated) // 201
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithStatusRange(200, 299)

	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy for 201 status, got unhealthy: %s", result.Message)
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithTimeout(50 * time.Millisecond)

	result := checker.Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy due to timeout, got healthy: %s", result.Message)
	}
}

func TestHTTPChecker_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := checker.Check(ctx)

	if result.Healthy {
		t.Errorf("Expected unhealthy due to cancelled context, got healthy: %s", result.Message)
	}
}

func TestHTTPChecker_Type(t *testing.T) {
	checker := NewHTTPChecker("http://example.com")
	if checker.Type() != types.ProbeHTTP {
		t.Errorf("Expected type %s, got %s", types.ProbeHTTP, checker.Type())
	}
}
