// SPDX-License-Identifier: MIT
package analysis

import (
	"bbbtune/internal/errs"
	"fmt"
	"math"
	"strings"
)

// FilterKind selects the biquad response.
type FilterKind int

const (
	Highpass FilterKind = iota
	Lowpass
)

func (k FilterKind) String() string {
	switch k {
	case Highpass:
		return "highpass"
	case Lowpass:
		return "lowpass"
	default:
		return fmt.Sprintf("FilterKind(%d)", int(k))
	}
}

// ParseFilterKind converts "highpass"/"lowpass" (case-insensitive, with the
// short forms "hpf"/"lpf") to a FilterKind.
func ParseFilterKind(name string) (FilterKind, error) {
	switch strings.ToLower(name) {
	case "highpass", "hpf":
		return Highpass, nil
	case "lowpass", "lpf":
		return Lowpass, nil
	default:
		return 0, fmt.Errorf("unsupported filter kind %q: %w", name, errs.ErrInvalidArgument)
	}
}

// Biquad is a second-order IIR filter designed with the bilinear-transform
// cookbook equations. Coefficients are normalized by a0 once at
// construction; only the two delay taps change afterwards.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

// NewBiquad designs a filter for the given sample rate, cutoff and Q. The
// cutoff must lie strictly between 0 and Nyquist.
func NewBiquad(sampleRate, cutoffHz, q float64, kind FilterKind) (*Biquad, error) {
	if sampleRate <= 0 || q <= 0 {
		return nil, fmt.Errorf("biquad: sample rate %.1f and Q %.3f must be positive: %w", sampleRate, q, errs.ErrInvalidArgument)
	}
	if cutoffHz <= 0 || cutoffHz >= sampleRate/2 {
		return nil, fmt.Errorf("biquad: cutoff %.1f Hz outside (0, %.1f): %w", cutoffHz, sampleRate/2, errs.ErrInvalidArgument)
	}

	w0 := 2 * math.Pi * cutoffHz / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	// Both kinds share the denominator.
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	var b0, b1, b2 float64
	switch kind {
	case Highpass:
		b0 = (1 + cosW0) / 2
		b1 = -(1 + cosW0)
		b2 = (1 + cosW0) / 2
	case Lowpass:
		b0 = (1 - cosW0) / 2
		b1 = 1 - cosW0
		b2 = (1 - cosW0) / 2
	default:
		return nil, fmt.Errorf("biquad: unsupported filter kind %v: %w", kind, errs.ErrInvalidArgument)
	}

	return &Biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}, nil
}

// Process filters one sample. The two taps hold transposed direct form II
// state; the output equals the direct form I difference equation
//
//	y[n] = b0·x[n] + b1·x[n-1] + b2·x[n-2] - a1·y[n-1] - a2·y[n-2]
func (f *Biquad) Process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}
