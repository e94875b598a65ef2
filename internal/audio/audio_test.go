// SPDX-License-Identifier: MIT
package audio

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/errs"
	"context"
	"errors"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestToneSource(t *testing.T) {
	if _, err := NewToneSource(8000, 5000, 0.5, 0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("tone above Nyquist error = %v", err)
	}
	if _, err := NewToneSource(8000, 440, 0, 0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("zero amplitude error = %v", err)
	}

	src, err := NewToneSource(8000, 440, 0.5, 0)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]int16, 800)
	if n, err := src.Read(buf); n != len(buf) || err != nil {
		t.Fatalf("Read() = %d, %v", n, err)
	}
	if p := peak(buf); p < 16000 || p > 16384 {
		t.Errorf("peak = %d, want about half scale", p)
	}

	// Consecutive reads continue the waveform.
	next := make([]int16, 1)
	src.Read(next)
	whole, _ := NewToneSource(8000, 440, 0.5, 0)
	ref := make([]int16, 801)
	whole.Read(ref)
	if next[0] != ref[800] {
		t.Errorf("sample 800 = %d, want %d", next[0], ref[800])
	}
}

func TestRecorderWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.wav")
	rec := NewRecorder(path)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close before audio: %v", err)
	}

	rec = NewRecorder(path)
	want := []int16{0, 1000, -1000, 32767, -32768, 42}
	rec.Process(want[:3], 22050)
	rec.Process(want[3:], 22050)
	rec.Process([]int16{1, 2}, 44100) // dropped, wrong rate
	if !rec.Recording() {
		t.Fatal("Recording() = false after first chunk")
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	if rec.Samples() != int64(len(want)) {
		t.Errorf("Samples() = %d, want %d", rec.Samples(), len(want))
	}
	rec.Process([]int16{9}, 22050)

	src, err := OpenWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	if src.SampleRate() != 22050 {
		t.Errorf("SampleRate() = %v, want 22050", src.SampleRate())
	}

	got := make([]int16, len(want))
	n, err := src.Read(got)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got[:n], want) {
		t.Errorf("read back %v, want %v", got[:n], want)
	}

	// The source loops.
	again := make([]int16, 2)
	if n, err := src.Read(again); err != nil || n != 2 || again[1] != want[1] {
		t.Errorf("after rewind Read() = %d %v, %v", n, again, err)
	}
}

func TestRecorderAndWAVFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "x.wav")
	rec := NewRecorder(path)
	rec.Process([]int16{1}, 8000)
	if rec.Recording() {
		t.Error("recorder claims to record into a missing directory")
	}
	if _, err := OpenWAV(path); err == nil {
		t.Error("OpenWAV of missing file succeeded")
	}
}

type collectSink struct {
	chunks [][]int16
	closed bool
}

func (c *collectSink) Process(samples []int16, _ float64) {
	c.chunks = append(c.chunks, slices.Clone(samples))
}

func (c *collectSink) Close() error {
	c.closed = true
	return nil
}

type finiteSource struct {
	data []int16
	pos  int
}

func (f *finiteSource) SampleRate() float64 { return 1000 }
func (f *finiteSource) Close() error        { return nil }
func (f *finiteSource) Read(buf []int16) (int, error) {
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(buf, f.data[f.pos:])
	f.pos += n
	return n, nil
}

func TestStreamerDeliversChunksInOrder(t *testing.T) {
	data := make([]int16, 10)
	for i := range data {
		data[i] = int16(1000 * (i + 1))
	}
	s, err := NewStreamer(&finiteSource{data: data}, 4)
	if err != nil {
		t.Fatal(err)
	}
	s.SetRealtime(false)
	sink := &collectSink{}
	s.AddSink(sink)

	var seen int
	s.AddSink(analysis.ProcessorFunc(func(samples []int16, rate float64) {
		seen += len(samples)
		if rate != 1000 {
			t.Errorf("rate = %v", rate)
		}
	}))

	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sink.chunks) != 3 || s.Chunks() != 3 {
		t.Fatalf("got %d chunks, want 3", len(sink.chunks))
	}
	if !slices.Equal(slices.Concat(sink.chunks...), data) || seen != len(data) {
		t.Errorf("chunks %v do not reassemble the source", sink.chunks)
	}

	if err := s.Close(); err != nil || !sink.closed {
		t.Errorf("Close() = %v, sink closed %v", err, sink.closed)
	}
}

func TestStreamerGateSilences(t *testing.T) {
	s, _ := NewStreamer(&finiteSource{data: []int16{5, -5, 3, 1}}, 4)
	s.SetRealtime(false)
	s.Gate().SetThreshold(0.5)
	s.Gate().Enable()
	sink := &collectSink{}
	s.AddSink(sink)
	s.Run(context.Background())
	if len(sink.chunks) != 1 || !slices.Equal(sink.chunks[0], []int16{0, 0, 0, 0}) {
		t.Errorf("gated chunk = %v", sink.chunks)
	}
}

func TestStreamerStopsOnCancel(t *testing.T) {
	src, _ := NewToneSource(8000, 440, 0.5, 2)
	s, _ := NewStreamer(src, 80)
	if d := s.ChunkDuration(); d.Milliseconds() != 10 {
		t.Errorf("ChunkDuration() = %s, want 10ms", d)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.AddSink(analysis.ProcessorFunc(func([]int16, float64) {
		if s.Chunks() >= 2 {
			cancel()
		}
	}))
	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStreamer(src, 0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("zero chunk size error = %v", err)
	}
}

func TestWriteDevices(t *testing.T) {
	var b strings.Builder
	WriteDevices(&b, []Device{{ID: 0, Name: "Mic", MaxInputChannels: 1, DefaultSampleRate: 48000}})
	if !strings.Contains(b.String(), "[0] Mic (Input)") {
		t.Errorf("unexpected listing %q", b.String())
	}
}
