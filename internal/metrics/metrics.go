// SPDX-License-Identifier: MIT
//
// Package metrics exposes the server's prometheus collectors. Every Record
// method is safe on a nil *Metrics so callers never need to check whether
// metrics are enabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bbbtune"

// Metrics holds all collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Sync metrics
	peers        prometheus.Gauge       // Connected websocket peers
	paramChanges *prometheus.CounterVec // Parameter updates (by source and result)
	paramValue   *prometheus.GaugeVec   // Current raw value (by key)

	// Streaming metrics
	audioChunks  prometheus.Counter // Chunks broadcast
	audioSamples prometheus.Counter // Samples broadcast

	// Motor metrics
	levels   *prometheus.GaugeVec   // Filtered RMS (by channel)
	triggers *prometheus.CounterVec // Trigger activations (by motor)

	// Discovery metrics
	beacons *prometheus.CounterVec // Beacons sent (by result)

	// Mirror metrics
	mirrorPublishes *prometheus.CounterVec // MQTT publishes (by result)
}

// New creates the collectors together with the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of connected websocket peers.",
		}),
		paramChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "param_changes_total",
			Help:      "Parameter updates received, by source and result.",
		}, []string{"source", "result"}),
		paramValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "param_value",
			Help:      "Current raw value of each parameter.",
		}, []string{"key"}),
		audioChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_total",
			Help:      "PCM chunks broadcast to peers.",
		}),
		audioSamples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_samples_total",
			Help:      "PCM samples broadcast to peers.",
		}),
		levels: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rms_level",
			Help:      "Filtered RMS level driving each motor.",
		}, []string{"channel"}),
		triggers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "motor_triggers_total",
			Help:      "Motor trigger activations.",
		}, []string{"motor"}),
		beacons: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_beacons_total",
			Help:      "Discovery beacons sent, by result.",
		}, []string{"result"}),
		mirrorPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publishes_total",
			Help:      "MQTT mirror publishes, by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.peers.Set(float64(n))
}

// RecordParamChange counts an update from source ("peer" or "http").
func (m *Metrics) RecordParamChange(source string, applied bool) {
	if m == nil {
		return
	}
	r := "applied"
	if !applied {
		r = "rejected"
	}
	m.paramChanges.WithLabelValues(source, r).Inc()
}

func (m *Metrics) SetParamValue(key string, value float64) {
	if m == nil {
		return
	}
	m.paramValue.WithLabelValues(key).Set(value)
}

func (m *Metrics) RecordAudioChunk(samples int) {
	if m == nil {
		return
	}
	m.audioChunks.Inc()
	m.audioSamples.Add(float64(samples))
}

func (m *Metrics) SetLevels(mouth, body float64) {
	if m == nil {
		return
	}
	m.levels.WithLabelValues("mouth").Set(mouth)
	m.levels.WithLabelValues("body").Set(body)
}

func (m *Metrics) RecordTrigger(motor string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(motor).Inc()
}

// RecordBeacon matches the discovery OnSend hook.
func (m *Metrics) RecordBeacon(err error) {
	if m == nil {
		return
	}
	m.beacons.WithLabelValues(result(err == nil)).Inc()
}

func (m *Metrics) RecordMirrorPublish(err error) {
	if m == nil {
		return
	}
	m.mirrorPublishes.WithLabelValues(result(err == nil)).Inc()
}
