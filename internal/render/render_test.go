// SPDX-License-Identifier: MIT
package render

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/log"
	"bbbtune/internal/params"
	"bbbtune/internal/transport"
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		p    params.Param
		want string
	}{
		{params.Param{Value: 5000, Units: params.UnitsHz}, "5 kHz"},
		{params.Param{Value: 632.455, Units: params.UnitsHz}, "632.5 Hz"},
		{params.Param{Value: 1260, Units: params.UnitsHz}, "1.3 kHz"},
		{params.Param{Value: 20, Units: params.UnitsHz}, "20 Hz"},
		{params.Param{Value: 19999.96, Units: params.UnitsHz}, "20 kHz"},
		{params.Param{Value: 250, Units: params.UnitsMs}, "250 Ms"},
		{params.Param{Value: 5000}, "5000"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.p); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestLogRendererReportsPeak(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	r := NewLogRenderer()
	r.Spectrum(nil)
	r.Spectrum([]analysis.Point{{Frequency: 100, Magnitude: -60}, {Frequency: 1000, Magnitude: -3}, {Frequency: 2000, Magnitude: -40}})
	r.Params(params.NewDefaultModel())

	out := buf.String()
	if !strings.Contains(out, "Render: peak 1 kHz at -3.0 dB (3 bins)") {
		t.Errorf("missing peak line in %q", out)
	}
	if !strings.Contains(out, "HpfCutoff") || !strings.Contains(out, "5 kHz") {
		t.Errorf("missing parameter table in %q", out)
	}
}

type countingRenderer struct{ spectra, params, levels int }

func (c *countingRenderer) Spectrum([]analysis.Point) { c.spectra++ }
func (c *countingRenderer) Params(*params.Model)      { c.params++ }
func (c *countingRenderer) Levels(transport.Levels)   { c.levels++ }

func TestMultiFansOut(t *testing.T) {
	a, b := &countingRenderer{}, &countingRenderer{}
	r := Multi(a, b)
	r.Spectrum(nil)
	r.Params(params.NewModel())
	r.Levels(transport.Levels{})
	if *a != (countingRenderer{1, 1, 1}) || *b != *a {
		t.Errorf("counts %+v %+v", *a, *b)
	}
}

func dialFeed(t *testing.T, feed *SpectrumFeed) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(feed)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { feed.Close() })

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for feed.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("display never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestSpectrumFeed(t *testing.T) {
	feed := NewSpectrumFeed(time.Hour)
	conn := dialFeed(t, feed)

	points := []analysis.Point{{Frequency: 440, Magnitude: -6}}
	feed.Spectrum(points)
	feed.Spectrum(points) // rate limited
	feed.Levels(transport.Levels{Body: 42, BodyFlip: true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second Frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if len(first.Points) != 1 || first.Points[0] != points[0] {
		t.Errorf("first frame %+v, want the spectrum", first)
	}
	if second.Levels == nil || second.Levels.Body != 42 || len(second.Points) != 0 {
		t.Errorf("second frame %+v, want levels", second)
	}

	var raw map[string]json.RawMessage
	data, _ := json.Marshal(Frame{Points: points})
	json.Unmarshal(data, &raw)
	if _, ok := raw["points"]; !ok || len(raw) != 1 {
		t.Errorf("spectrum frame encodes as %s", data)
	}
}

func TestSpectrumFeedWithoutLimitSendsEveryFrame(t *testing.T) {
	feed := NewSpectrumFeed(0)
	conn := dialFeed(t, feed)

	for i := range 3 {
		feed.Spectrum([]analysis.Point{{Frequency: float64(100 * (i + 1))}})
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := range 3 {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if len(f.Points) != 1 || f.Points[0].Frequency != float64(100*(i+1)) {
			t.Errorf("frame %d = %+v", i, f)
		}
	}
}
