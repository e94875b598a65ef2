// SPDX-License-Identifier: MIT
package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func find(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SetPeers(3)
	m.RecordParamChange("peer", true)
	m.SetParamValue("HpfCutoff", 5000)
	m.RecordAudioChunk(1024)
	m.SetLevels(1, 2)
	m.RecordTrigger("mouth")
	m.RecordBeacon(nil)
	m.RecordMirrorPublish(errors.New("offline"))
	if m.Registry() != nil {
		t.Error("nil Metrics returned a registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.RecordAudioChunk(512)
	m.RecordAudioChunk(512)
	m.RecordParamChange("http", false)
	m.RecordBeacon(errors.New("unreachable"))
	m.SetPeers(2)

	if got := find(t, m, "bbbtune_audio_samples_total").GetMetric()[0].GetCounter().GetValue(); got != 1024 {
		t.Errorf("audio_samples_total = %v, want 1024", got)
	}
	if got := find(t, m, "bbbtune_peers").GetMetric()[0].GetGauge().GetValue(); got != 2 {
		t.Errorf("peers = %v, want 2", got)
	}

	changes := find(t, m, "bbbtune_param_changes_total").GetMetric()[0]
	labels := map[string]string{}
	for _, l := range changes.GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	if labels["source"] != "http" || labels["result"] != "rejected" {
		t.Errorf("param_changes_total labels = %v", labels)
	}

	beacons := find(t, m, "bbbtune_discovery_beacons_total").GetMetric()[0]
	if beacons.GetLabel()[0].GetValue() != "error" {
		t.Errorf("beacon result label = %q", beacons.GetLabel()[0].GetValue())
	}
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.RecordTrigger("body")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `bbbtune_motor_triggers_total{motor="body"} 1`) {
		t.Errorf("exposition missing trigger counter:\n%s", body)
	}
}
