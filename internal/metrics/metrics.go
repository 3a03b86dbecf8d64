// Package metrics exposes the gateway's Prometheus instrumentation,
// registered against a shared Registry and mounted at /metrics by
// internal/httpapi.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Registry bundles every metric the gateway registers. Only SessionsActive
// and SessionErrors are updated, by internal/httpapi's stream handler.
type Registry struct {
	reg *prometheus.Registry

	TunersTotal    prometheus.Gauge
	TunersInUse    prometheus.Gauge
	LeasesGranted  *prometheus.CounterVec
	LeasesDenied   *prometheus.CounterVec
	Preemptions    *prometheus.CounterVec
	SessionsActive prometheus.Gauge
	SessionErrors  *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
	ScanChannels   prometheus.Gauge
	ProgramsStored prometheus.Gauge
}

// New builds and registers a fresh Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		TunersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atsctuner_tuners_total",
			Help: "Configured tuner capacity.",
		}),
		TunersInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atsctuner_tuners_in_use",
			Help: "Tuners currently leased.",
		}),
		LeasesGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atsctuner_leases_granted_total",
			Help: "Tuner leases granted, by kind (live, dvr, epg).",
		}, []string{"kind"}),
		LeasesDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atsctuner_leases_denied_total",
			Help: "Tuner lease requests denied after exhausting retry budget, by kind.",
		}, []string{"kind"}),
		Preemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atsctuner_preemptions_total",
			Help: "Leases preempted, by preempting kind.",
		}, []string{"kind"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atsctuner_sessions_active",
			Help: "Live streaming sessions currently open.",
		}),
		SessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atsctuner_session_errors_total",
			Help: "Session failures, by class.",
		}, []string{"class"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "atsctuner_epg_scan_duration_seconds",
			Help:    "Wall-clock duration of a single per-frequency EPG capture.",
			Buckets: prometheus.DefBuckets,
		}),
		ScanChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atsctuner_epg_scan_channels_pending",
			Help: "Frequencies remaining in the current EPG scan sweep.",
		}),
		ProgramsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atsctuner_epg_programs_stored",
			Help: "Program rows currently held in the EPG store.",
		}),
	}
	reg.MustRegister(
		r.TunersTotal, r.TunersInUse, r.LeasesGranted, r.LeasesDenied,
		r.Preemptions, r.SessionsActive, r.SessionErrors,
		r.ScanDuration, r.ScanChannels, r.ProgramsStored,
	)
	return r
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
