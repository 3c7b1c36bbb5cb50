// Package metrics exposes the daemon's Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "querykit"

// Metrics holds the collectors of one daemon. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	distroLoaded    *prometheus.GaugeVec
	distroPackages  *prometheus.GaugeVec
	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		distroLoaded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "distro_loaded",
				Help:      "Whether a distribution's repository index is loaded (1) or not (0).",
			},
			[]string{"distro"},
		),
		distroPackages: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "distro_packages",
				Help:      "Number of packages in a distribution's loaded index.",
			},
			[]string{"distro"},
		),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "Index loads and refreshes by distribution and result.",
			},
			[]string{"distro", "result"},
		),
		refreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Time spent loading or refreshing a distribution's index.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"distro"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Bus method calls by method and result.",
			},
			[]string{"method", "result"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Bus method calls answered from the result cache.",
			},
			[]string{"method"},
		),
	}

	m.registry.MustRegister(
		m.distroLoaded,
		m.distroPackages,
		m.refreshTotal,
		m.refreshDuration,
		m.requestsTotal,
		m.cacheHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// DistroLoaded records whether distro is loaded and how many packages it has.
func (m *Metrics) DistroLoaded(distro string, loaded bool, packages int) {
	if m == nil {
		return
	}
	v := 0.0
	if loaded {
		v = 1
	}
	m.distroLoaded.WithLabelValues(distro).Set(v)
	m.distroPackages.WithLabelValues(distro).Set(float64(packages))
}

// RefreshDone records one load or refresh attempt.
func (m *Metrics) RefreshDone(distro string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(distro, result(err)).Inc()
	m.refreshDuration.WithLabelValues(distro).Observe(took.Seconds())
}

// Request records one bus method call.
func (m *Metrics) Request(method string, err error) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, result(err)).Inc()
}

// CacheHit records a call answered from the result cache.
func (m *Metrics) CacheHit(method string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(method).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", logger.Fields{"address": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
