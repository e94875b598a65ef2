// SPDX-License-Identifier: MIT
package analysis

import (
	"bbbtune/internal/errs"
	"errors"
	"math"
	"testing"
)

const testSampleRate = 44100.0

func TestNewBiquadValidation(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		cutoff     float64
		q          float64
		kind       FilterKind
	}{
		{"zero cutoff", testSampleRate, 0, 0.707, Lowpass},
		{"at nyquist", testSampleRate, testSampleRate / 2, 0.707, Lowpass},
		{"above nyquist", testSampleRate, 30000, 0.707, Highpass},
		{"zero q", testSampleRate, 1000, 0, Highpass},
		{"zero sample rate", 0, 1000, 0.707, Highpass},
		{"unknown kind", testSampleRate, 1000, 0.707, FilterKind(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBiquad(tt.sampleRate, tt.cutoff, tt.q, tt.kind)
			if !errors.Is(err, errs.ErrInvalidArgument) {
				t.Fatalf("NewBiquad() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestParseFilterKind(t *testing.T) {
	for in, want := range map[string]FilterKind{"highpass": Highpass, "HPF": Highpass, "lowpass": Lowpass, "lpf": Lowpass} {
		got, err := ParseFilterKind(in)
		if err != nil || got != want {
			t.Errorf("ParseFilterKind(%q) = %v, %v want %v", in, got, err, want)
		}
	}
	if _, err := ParseFilterKind("bandpass"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("ParseFilterKind(bandpass) error = %v", err)
	}
}

// A constant input settles to the DC gain: 1 for lowpass, 0 for highpass.
func TestBiquadDCResponse(t *testing.T) {
	tests := []struct {
		name   string
		kind   FilterKind
		cutoff float64
		want   float64
	}{
		{"lowpass 1k", Lowpass, 1000, 1},
		{"lowpass 20Hz", Lowpass, 20, 1},
		{"highpass 1k", Highpass, 1000, 0},
		{"highpass 5k", Highpass, 5000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewBiquad(testSampleRate, tt.cutoff, 0.7071, tt.kind)
			if err != nil {
				t.Fatal(err)
			}
			var y float64
			for range 20000 {
				y = f.Process(1)
			}
			if math.Abs(y-tt.want) > 1e-6 {
				t.Errorf("settled output = %.9f, want %.1f", y, tt.want)
			}
		})
	}
}

func TestBiquadAttenuatesStopband(t *testing.T) {
	f, err := NewBiquad(testSampleRate, 500, 0.7071, Lowpass)
	if err != nil {
		t.Fatal(err)
	}
	var peak float64
	for i := range 8192 {
		y := f.Process(math.Sin(2 * math.Pi * 10000 * float64(i) / testSampleRate))
		if i > 4096 {
			peak = max(peak, math.Abs(y))
		}
	}
	if peak > 0.01 {
		t.Errorf("10kHz through 500Hz lowpass peaks at %.4f, want < 0.01", peak)
	}
}

func TestBiquadMatchesDirectFormI(t *testing.T) {
	for _, kind := range []FilterKind{Highpass, Lowpass} {
		f, err := NewBiquad(testSampleRate, 2000, 0.7071, kind)
		if err != nil {
			t.Fatal(err)
		}
		var x1, x2, y1, y2 float64
		for i := range 2048 {
			x := math.Sin(2*math.Pi*440*float64(i)/testSampleRate) + 0.3*math.Sin(2*math.Pi*9000*float64(i)/testSampleRate)
			want := f.b0*x + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
			x2, x1 = x1, x
			y2, y1 = y1, want

			if got := f.Process(x); math.Abs(got-want) > 1e-9 {
				t.Fatalf("%v sample %d: got %.12f, want %.12f", kind, i, got, want)
			}
		}
	}
}

func TestBiquadZeroAllocs(t *testing.T) {
	f, _ := NewBiquad(testSampleRate, 1000, 0.7071, Highpass)
	allocs := testing.AllocsPerRun(100, func() {
		f.Process(0.25)
	})
	if allocs > 0 {
		t.Errorf("Process allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkBiquadProcess(b *testing.B) {
	f, _ := NewBiquad(testSampleRate, 1000, 0.7071, Lowpass)
	b.ReportAllocs()
	for b.Loop() {
		f.Process(0.5)
	}
}
