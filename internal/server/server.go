// Package server implements the HTTP server for CSV streaming, health checks
// and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	IsHealthy() bool
	GetStatus() map[string]string
}

// Config contains HTTP server configuration.
type Config struct {
	Port          int
	MetricsPort   int
	StreamPath    string
	LivenessPath  string
	ReadinessPath string
}

// Validate checks the server configuration.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.Port == c.MetricsPort {
		return fmt.Errorf("port and metrics port must differ: %d", c.Port)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.StreamPath == "" {
		c.StreamPath = "/events.csv"
	}
	if c.LivenessPath == "" {
		c.LivenessPath = "/health/live"
	}
	if c.ReadinessPath == "" {
		c.ReadinessPath = "/health/ready"
	}
	return c
}

// Server serves the CSV stream and health probes on one port and Prometheus
// metrics on another.
type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	logger        *slog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(
	config Config,
	healthChecker HealthChecker,
	opener Opener,
	registry *prometheus.Registry,
	metrics MetricsCollector,
	logger *slog.Logger,
) *Server {
	config = config.withDefaults()

	return &Server{
		// Streaming responses are unbounded, so there is no write timeout.
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           NewHandler(config, healthChecker, opener, metrics, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		metricsServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.MetricsPort),
			Handler:      MetricsHandler(registry),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler returns the mux serving the CSV stream and health probes.
func NewHandler(config Config, healthChecker HealthChecker, opener Opener, metrics MetricsCollector, logger *slog.Logger) http.Handler {
	config = config.withDefaults()

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+config.StreamPath, StreamHandler(opener, metrics, logger))
	mux.HandleFunc("GET "+config.LivenessPath, LivenessHandler(healthChecker, logger))
	mux.HandleFunc("GET "+config.ReadinessPath, ReadinessHandler(healthChecker, logger))
	return mux
}

// MetricsHandler returns the mux serving /metrics from registry.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

// Start binds both listeners and serves them in the background. Bind errors
// are returned directly.
func (s *Server) Start() error {
	httpLn, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	metricsLn, err := net.Listen("tcp", s.metricsServer.Addr)
	if err != nil {
		_ = httpLn.Close()
		return fmt.Errorf("listen %s: %w", s.metricsServer.Addr, err)
	}

	go s.serve("http", s.httpServer, httpLn)
	go s.serve("metrics", s.metricsServer, metricsLn)
	return nil
}

func (s *Server) serve(name string, srv *http.Server, ln net.Listener) {
	s.logger.Info("starting server", "server", name, "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("server failed", "server", name, "error", err)
	}
}

// Shutdown gracefully shuts down both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	errChan := make(chan error, 2)

	go func() {
		errChan <- s.httpServer.Shutdown(ctx)
	}()

	go func() {
		errChan <- s.metricsServer.Shutdown(ctx)
	}()

	var lastErr error
	for i := 0; i < 2; i++ {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			lastErr = err
		}
	}

	return lastErr
}
