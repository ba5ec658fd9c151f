// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package app wires configuration, device client, InfluxDB writer and the
// collector loop together, and serves /metrics, /health and /ready.
package app

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soothill/delock-energy-collector/collector"
	"github.com/soothill/delock-energy-collector/config"
	"github.com/soothill/delock-energy-collector/device"
	"github.com/soothill/delock-energy-collector/discovery"
	"github.com/soothill/delock-energy-collector/pkg/interfaces"
	"github.com/soothill/delock-energy-collector/pkg/logger"
	"github.com/soothill/delock-energy-collector/storage"
	"golang.org/x/time/rate"
)

const (
	discoveryTimeout      = 5 * time.Second
	readinessCheckTimeout = 2 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// App represents the main application
type App struct {
	cfg        *config.Config
	server     *http.Server
	fetcher    *device.Client
	writer     *storage.InfluxDBWriter
	resolver   interfaces.HostResolver
	controller *collector.Controller
	mu         sync.RWMutex // Protects fetcher and controller for debug dumps
	wg         sync.WaitGroup
}

// New creates a new application instance. It performs no network I/O.
func New(cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	fetcher, err := device.NewClient(cfg.Device.URL, cfg.Device.ConnectTimeout, cfg.Device.ReadTimeout)
	if err != nil {
		return nil, err
	}
	app.fetcher = fetcher

	app.writer = storage.NewInfluxDBWriter(storage.WriterConfig{
		URL:             cfg.InfluxDB.URL,
		Token:           cfg.InfluxDB.Token,
		Organization:    cfg.InfluxDB.Organization,
		Bucket:          cfg.InfluxDB.Bucket,
		BreakerFailures: cfg.InfluxDB.BreakerFailures,
		BreakerTimeout:  cfg.InfluxDB.BreakerTimeout,
	})

	if cfg.Device.MDNSInstance != "" {
		app.resolver = discovery.NewResolver(discovery.DefaultService, discovery.DefaultDomain, discoveryTimeout)
	}

	if cfg.Metrics.Address != "" {
		app.server = newMetricsServer(cfg.Metrics.Address, app.writer)
	}

	return app, nil
}

// Run starts the metrics server and the collector loop, and blocks until
// ctx is cancelled and the loop has terminated.
func (a *App) Run(ctx context.Context) collector.LoopState {
	a.resolveDevice(ctx)

	a.mu.Lock()
	controller := collector.NewController(a.fetcher, a.writer, collector.Settings{
		DeviceID:         a.cfg.Device.ID,
		BaselineInterval: a.cfg.Collector.PollInterval,
		RetryInterval:    a.cfg.Collector.RetryInterval,
	})
	a.controller = controller
	a.mu.Unlock()

	a.startMetricsServer()

	state := controller.Run(ctx)

	a.performGracefulShutdown()
	return state
}

// resolveDevice replaces the device host with its mDNS address when an
// instance name is configured. On failure the configured URL is kept.
func (a *App) resolveDevice(ctx context.Context) {
	if a.resolver == nil {
		return
	}

	instance := a.cfg.Device.MDNSInstance
	found, err := a.resolver.Lookup(ctx, instance)
	if err != nil {
		logger.Warn().Err(err).Str("instance", instance).Str("url", a.fetcher.URL()).
			Msg("mDNS lookup failed, using configured device URL")
		return
	}

	resolvedURL, err := discovery.RewriteURL(a.cfg.Device.URL, found)
	if err != nil {
		logger.Warn().Err(err).Str("instance", instance).Msg("Could not rewrite device URL")
		return
	}

	fetcher, err := device.NewClient(resolvedURL, a.cfg.Device.ConnectTimeout, a.cfg.Device.ReadTimeout)
	if err != nil {
		logger.Warn().Err(err).Str("url", resolvedURL).Msg("Resolved device URL rejected")
		return
	}

	logger.Info().Str("instance", instance).Str("url", resolvedURL).Msg("Using mDNS-resolved device URL")
	a.mu.Lock()
	a.fetcher = fetcher
	a.mu.Unlock()
}

// newMetricsServer builds the HTTP server for metrics and health checks
func newMetricsServer(addr string, db interfaces.TimeSeriesStorage) *http.Server {
	healthLimiter := rate.NewLimiter(10, 20)
	readyLimiter := rate.NewLimiter(10, 20)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))
	mux.HandleFunc("/ready", rateLimitMiddleware(readyLimiter, func(w http.ResponseWriter, r *http.Request) {
		readinessCheckHandler(w, r, db)
	}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// startMetricsServer starts the HTTP server for metrics and health checks
func (a *App) startMetricsServer() {
	if a.server == nil {
		logger.Info().Msg("Metrics server disabled")
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.server.Addr).Msg("Starting metrics and health check server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// performGracefulShutdown stops the metrics server and waits for goroutines
func (a *App) performGracefulShutdown() {
	if a.server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
		} else {
			logger.Info().Msg("HTTP server stopped")
		}
	}

	a.wg.Wait()
	logger.Info().Msg("All goroutines finished, exiting")
}

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	a.mu.RLock()
	fetcher, controller := a.fetcher, a.controller
	a.mu.RUnlock()

	logger.Info().
		Str("device_id", a.cfg.Device.ID).
		Str("device_url", fetcher.URL()).
		Str("bucket", a.cfg.InfluxDB.Bucket).
		Str("breaker_state", a.writer.BreakerState().String()).
		Msg("Collector configuration")

	if controller != nil {
		logger.Info().
			Str("phase", controller.Phase()).
			Object("state", controller.Snapshot()).
			Msg("Loop state")
	} else {
		logger.Info().Msg("Loop not started")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024) // 1MB buffer
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded for health endpoint")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles health check requests
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}

// readinessCheckHandler handles readiness check requests
func readinessCheckHandler(w http.ResponseWriter, r *http.Request, db interfaces.TimeSeriesStorage) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		logger.Warn().Err(err).Msg("Readiness check failed: InfluxDB unhealthy")
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, writeErr := w.Write([]byte("NOT READY: InfluxDB unhealthy")); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("READY")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
	}
}
