// Package metrics exposes Prometheus instruments for the mod manager.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the manager's instruments on their own registry
type Metrics struct {
	registry *prometheus.Registry

	Mods           prometheus.Gauge
	EnabledMods    prometheus.Gauge
	Edges          prometheus.Gauge
	Cycles         prometheus.Gauge
	PendingParses  prometheus.Gauge
	Rebuilds       prometheus.Counter
	RebuildSeconds prometheus.Histogram
	ParseBatches   prometheus.Counter
	Changes        *prometheus.CounterVec
	ChangeErrors   *prometheus.CounterVec
}

// New creates and registers all instruments
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Mods: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "moddeps_mods",
			Help: "Number of mods in the folder.",
		}),
		EnabledMods: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "moddeps_mods_enabled",
			Help: "Number of enabled mods in the folder.",
		}),
		Edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "moddeps_graph_edges",
			Help: "Number of requires edges in the published dependency graph.",
		}),
		Cycles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "moddeps_graph_cycles",
			Help: "Number of dependency cycles in the published graph.",
		}),
		PendingParses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "moddeps_parse_pending",
			Help: "Number of mod parse tasks not yet finished.",
		}),
		Rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moddeps_graph_rebuilds_total",
			Help: "Total number of dependency graph rebuilds.",
		}),
		RebuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "moddeps_graph_rebuild_duration_seconds",
			Help:    "Time taken to rebuild the dependency graph.",
			Buckets: prometheus.DefBuckets,
		}),
		ParseBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moddeps_parse_batches_total",
			Help: "Total number of completed parse batches.",
		}),
		Changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moddeps_enabled_changes_total",
			Help: "Number of mods whose enabled state was changed, by action.",
		}, []string{"action"}),
		ChangeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moddeps_enabled_change_errors_total",
			Help: "Number of failed enable/disable requests, by action.",
		}, []string{"action"}),
	}

	m.registry.MustRegister(
		m.Mods,
		m.EnabledMods,
		m.Edges,
		m.Cycles,
		m.PendingParses,
		m.Rebuilds,
		m.RebuildSeconds,
		m.ParseBatches,
		m.Changes,
		m.ChangeErrors,
	)
	return m
}

// Registry returns the registry the instruments live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
