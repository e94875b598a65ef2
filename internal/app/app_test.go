// SPDX-License-Identifier: MIT
package app

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/audio"
	"bbbtune/internal/config"
	"bbbtune/internal/errs"
	"bbbtune/internal/params"
	"bbbtune/internal/render"
	"bbbtune/internal/transport"
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		in      string
		want    Intent
		wantErr bool
	}{
		{"HpfCutoff=0.5", Intent{"HpfCutoff", 0.5}, false},
		{"FlipInterval=1", Intent{"FlipInterval", 1}, false},
		{"HpfCutoff", Intent{}, true},
		{"=0.5", Intent{}, true},
		{"HpfCutoff=loud", Intent{}, true},
		{"HpfCutoff=1.2", Intent{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIntent(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrInvalidArgument) {
					t.Errorf("ParseIntent(%q) error = %v", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseIntent(%q) = %+v, %v", tt.in, got, err)
			}
		})
	}
}

func TestOpenSource(t *testing.T) {
	cfg := config.Default().Audio
	src, err := OpenSource(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if src.SampleRate() != cfg.SampleRate {
		t.Errorf("tone rate %v", src.SampleRate())
	}

	cfg.Source = config.SourceWAV
	cfg.File = "does-not-exist.wav"
	if _, err := OpenSource(cfg); err == nil {
		t.Error("missing WAV opened")
	}
}

type closeTrackingSource struct {
	audio.Source
	closed int
}

func (s *closeTrackingSource) Close() error {
	s.closed++
	return s.Source.Close()
}

func TestNewServerClosesSourceOnError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer taken.Close()

	cfg := config.Default()
	cfg.Server.Address = taken.Addr().String()
	cfg.Server.Advertise = false
	tone, err := OpenSource(cfg.Audio)
	if err != nil {
		t.Fatal(err)
	}
	src := &closeTrackingSource{Source: tone}
	if _, err := NewServer(&cfg, src); err == nil {
		t.Fatal("NewServer bound an address already in use")
	}
	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
}

type recordingRenderer struct {
	mu      sync.Mutex
	spectra [][]analysis.Point
	models  []*params.Model
	levels  []transport.Levels
}

func (r *recordingRenderer) Spectrum(points []analysis.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spectra = append(r.spectra, slices.Clone(points))
}

func (r *recordingRenderer) Params(m *params.Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, m)
}

func (r *recordingRenderer) Levels(l transport.Levels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, l)
}

func (r *recordingRenderer) counts() (spectra, models, levels int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spectra), len(r.models), len(r.levels)
}

func (r *recordingRenderer) lastSpectrum() []analysis.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spectra[len(r.spectra)-1]
}

var _ render.Renderer = (*recordingRenderer)(nil)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func run(t *testing.T, fn func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("run did not stop")
		}
	})
}

func TestServerAndClientEndToEnd(t *testing.T) {
	scfg := config.Default()
	scfg.Server.Address = "127.0.0.1:0"
	scfg.Server.Advertise = false
	scfg.Audio.ToneModulation = 0
	src, err := OpenSource(scfg.Audio)
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewServer(&scfg, src)
	if err != nil {
		t.Fatal(err)
	}
	run(t, srv.Run)

	ccfg := config.Default()
	ccfg.Client.ServerAddress = srv.Addr().String()
	ccfg.Client.Discover = false
	ccfg.Client.FeedAddress = "127.0.0.1:0"
	ccfg.Client.RenderInterval = 10 * time.Millisecond
	r := &recordingRenderer{}
	cli, err := NewClient(&ccfg, r, []Intent{{params.HpfCutoff, 0.5}})
	if err != nil {
		t.Fatal(err)
	}
	run(t, cli.Run)

	// The command line intent reaches the device.
	want := 20 * math.Sqrt(1000)
	eventually(t, "intent applied on the server", func() bool {
		return math.Abs(srv.Store().Load().Value(params.HpfCutoff, 0)-want) < 1e-6
	})

	eventually(t, "spectrum, snapshot and levels rendered", func() bool {
		s, m, l := r.counts()
		return s > 3 && m > 0 && l > 0
	})
	frame := r.lastSpectrum()
	peak := frame[0]
	for _, p := range frame {
		if p.Magnitude > peak.Magnitude {
			peak = p
		}
	}
	if math.Abs(peak.Frequency-scfg.Audio.ToneFrequency) > 50 {
		t.Errorf("spectrum peak at %.1f Hz, want near %.0f Hz", peak.Frequency, scfg.Audio.ToneFrequency)
	}

	// The display feed serves the same updates.
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+cli.FeedAddr().String()+"/spectrum", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f render.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatal(err)
		}
		if len(f.Points) > 0 {
			break
		}
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"bbbtune_audio_chunks_total", "bbbtune_peers 1", "bbbtune_rms_level"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics missing %q", name)
		}
	}
}
