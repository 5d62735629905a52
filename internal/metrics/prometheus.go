// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements Recorder with Prometheus metrics on its own registry.
type Collector struct {
	launches       *prometheus.CounterVec
	generation     prometheus.Gauge
	discoveryTime  prometheus.Histogram
	staleDiscovery prometheus.Counter
	startupTimeout prometheus.Counter
	termination    prometheus.Histogram
	syncJobs       *prometheus.CounterVec
	syncProgress   prometheus.Gauge
	controlClients prometheus.Gauge
	controlMsgs    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector creates a collector with metrics under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "replayhost"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_launches_total",
			Help:      "Total number of backend launches",
		},
		[]string{"mode", "status"},
	)

	c.generation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_generation",
			Help:      "Current backend generation",
		},
	)

	c.discoveryTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_port_discovery_seconds",
			Help:      "Time from launch until the backend announced its port",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	c.staleDiscovery = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_stale_discoveries_total",
			Help:      "Discoveries dropped because their generation was superseded",
		},
	)

	c.startupTimeout = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_startup_timeouts_total",
			Help:      "Generations that never announced a port",
		},
	)

	c.termination = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_termination_seconds",
			Help:      "Duration of backend terminations",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.syncJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_jobs_total",
			Help:      "Sync jobs by outcome",
		},
		[]string{"result"},
	)

	c.syncProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_progress_percent",
			Help:      "Progress of the active sync job",
		},
	)

	c.controlClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "control_clients",
			Help:      "Connected control channel clients",
		},
	)

	c.controlMsgs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_messages_total",
			Help:      "Messages sent to control clients",
		},
		[]string{"type"},
	)

	c.registry.MustRegister(
		c.launches,
		c.generation,
		c.discoveryTime,
		c.staleDiscovery,
		c.startupTimeout,
		c.termination,
		c.syncJobs,
		c.syncProgress,
		c.controlClients,
		c.controlMsgs,
	)

	return c
}

// BackendLaunch records a launch attempt.
func (c *Collector) BackendLaunch(mode string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.launches.WithLabelValues(mode, status).Inc()
}

// BackendGeneration records the current generation number.
func (c *Collector) BackendGeneration(generation uint64) {
	c.generation.Set(float64(generation))
}

// PortDiscovered records the startup time of a generation.
func (c *Collector) PortDiscovered(startup time.Duration) {
	c.discoveryTime.Observe(startup.Seconds())
}

// StaleDiscovery records a dropped discovery.
func (c *Collector) StaleDiscovery() {
	c.staleDiscovery.Inc()
}

// StartupTimeout records a startup timeout.
func (c *Collector) StartupTimeout() {
	c.startupTimeout.Inc()
}

// BackendTermination records a termination.
func (c *Collector) BackendTermination(duration time.Duration) {
	c.termination.Observe(duration.Seconds())
}

// SyncJob records a sync job outcome.
func (c *Collector) SyncJob(result string) {
	c.syncJobs.WithLabelValues(result).Inc()
}

// SyncProgress records the active job's progress.
func (c *Collector) SyncProgress(percent int) {
	c.syncProgress.Set(float64(percent))
}

// ControlClients records the number of connected clients.
func (c *Collector) ControlClients(n int) {
	c.controlClients.Set(float64(n))
}

// ControlMessage records a message sent to clients.
func (c *Collector) ControlMessage(messageType string) {
	c.controlMsgs.WithLabelValues(messageType).Inc()
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP handler exposing the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var _ Recorder = (*Collector)(nil)
