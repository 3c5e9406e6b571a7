// Package metrics exposes Prometheus counters for login resolution and
// manifest synchronisation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginTotal        *prometheus.CounterVec
	manifestFetches   *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	manifestRefreshes *prometheus.CounterVec
	registrySize      prometheus.Gauge

	metricsOnce       sync.Once
	metricsRegistered bool
)

// Recorder records wbctl metrics. The zero value is ready to use; nothing is
// recorded until Init has been called.
type Recorder struct{}

// New returns a Recorder.
func New() *Recorder {
	return &Recorder{}
}

// Init registers all metrics with the default registry.
func Init() {
	metricsOnce.Do(func() {
		loginTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wbctl_login_total",
				Help: "Login resolutions by flow and result",
			},
			[]string{"flow", "result"},
		)

		manifestFetches = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wbctl_manifest_fetch_total",
				Help: "Manifest fetch attempts by transport and result",
			},
			[]string{"transport", "result"},
		)

		fetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wbctl_manifest_fetch_duration_seconds",
				Help:    "Duration of manifest fetches in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"transport"},
		)

		manifestRefreshes = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wbctl_manifest_refresh_total",
				Help: "Stale manifest refreshes by result",
			},
			[]string{"result"},
		)

		registrySize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wbctl_registry_manifests",
				Help: "Number of manifests in the registry",
			},
		)

		metricsRegistered = true
	})
}

// RecordLogin records the outcome of a login flow.
func (r *Recorder) RecordLogin(flow, result string) {
	if r == nil || !metricsRegistered {
		return
	}
	loginTotal.WithLabelValues(flow, result).Inc()
}

// RecordFetch records one transport attempt of a manifest fetch.
func (r *Recorder) RecordFetch(transport string, ok bool, durationSeconds float64) {
	if r == nil || !metricsRegistered {
		return
	}
	manifestFetches.WithLabelValues(transport, result(ok)).Inc()
	fetchDuration.WithLabelValues(transport).Observe(durationSeconds)
}

// RecordRefresh records the outcome of a stale manifest refresh.
func (r *Recorder) RecordRefresh(ok bool) {
	if r == nil || !metricsRegistered {
		return
	}
	manifestRefreshes.WithLabelValues(result(ok)).Inc()
}

// SetRegistrySize records how many manifests are registered.
func (r *Recorder) SetRegistrySize(n int) {
	if r == nil || !metricsRegistered {
		return
	}
	registrySize.Set(float64(n))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// LoginTotal returns the login counter for testing.
func LoginTotal() *prometheus.CounterVec {
	return loginTotal
}

// ManifestFetches returns the fetch counter for testing.
func ManifestFetches() *prometheus.CounterVec {
	return manifestFetches
}

// ManifestRefreshes returns the refresh counter for testing.
func ManifestRefreshes() *prometheus.CounterVec {
	return manifestRefreshes
}

// RegistrySize returns the registry gauge for testing.
func RegistrySize() prometheus.Gauge {
	return registrySize
}

// IsRegistered returns whether Init has run.
func IsRegistered() bool {
	return metricsRegistered
}
