package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/kafeventcsv/pkg/event"
	"github.com/jittakal/kafeventcsv/pkg/rowstream"
)

func sliceOpener(events ...event.Event) Opener {
	return OpenerFunc(func(ctx context.Context) (EventSource, error) {
		return NopCloser(rowstream.FromSlice(events)), nil
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		port        int
		metricsPort int
		wantErr     bool
	}{
		{"valid ports", 8080, 9090, false},
		{"same ports", 8080, 8080, true},
		{"invalid port", 0, 9090, true},
		{"invalid metrics port", 8080, 0, true},
		{"port out of range", 70000, 9090, true},
		{"high port numbers", 50000, 50001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Config{Port: tt.port, MetricsPort: tt.metricsPort}.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewHandler_Routes(t *testing.T) {
	checker := &mockHealthChecker{liveness: true, readiness: true, healthy: true}
	handler := NewHandler(Config{}, checker, sliceOpener(), nil, testLogger())

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/events.csv", http.StatusOK},
		{http.MethodHead, "/health/live", http.StatusOK},
		{http.MethodPost, "/events.csv", http.StatusMethodNotAllowed},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestNewHandler_CustomPaths(t *testing.T) {
	checker := &mockHealthChecker{liveness: true, readiness: true}
	cfg := Config{StreamPath: "/stream", LivenessPath: "/live", ReadinessPath: "/ready"}
	handler := NewHandler(cfg, checker, sliceOpener(), nil, testLogger())

	for _, path := range []string{"/stream", "/live", "/ready"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
	}
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()

	testCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_metric_total",
		Help: "Test metric",
	})
	registry.MustRegister(testCounter)
	testCounter.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	MetricsHandler(registry).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %v, want %v", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "test_metric_total 1") {
		t.Errorf("metrics body missing counter:\n%s", w.Body.String())
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServer_StartAndShutdown(t *testing.T) {
	registry := prometheus.NewRegistry()
	checker := &mockHealthChecker{liveness: true, readiness: true, healthy: true}
	port, metricsPort := freePort(t), freePort(t)

	opener := sliceOpener(event.Event{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Name: "some-event"})
	server := NewServer(Config{Port: port, MetricsPort: metricsPort}, checker, opener, registry, nil, testLogger())

	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/events.csv", port))
	if err != nil {
		t.Fatalf("GET /events.csv: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if want := "timestamp,event\r\n2024-01-01T00:00:00+00:00,some-event\r\n"; string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}

	resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", metricsPort))
	if err != nil {
		t.Errorf("Failed to connect to metrics server: %v", err)
	} else {
		resp.Body.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	if _, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health/live", port)); err == nil {
		t.Error("Expected error connecting to stopped server")
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	busy := ln.Addr().(*net.TCPAddr).Port

	server := NewServer(Config{Port: busy, MetricsPort: freePort(t)},
		&mockHealthChecker{}, sliceOpener(), prometheus.NewRegistry(), nil, testLogger())
	if err := server.Start(); err == nil {
		t.Error("Start() on a busy port should fail")
	}
}
