// SPDX-License-Identifier: MIT
package analysis

import (
	"bbbtune/internal/errs"
	"bbbtune/internal/log"
	"bbbtune/internal/ring"
	"bbbtune/pkg/bitint"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// MinDisplayHz and MaxDisplayHz bound the retained bins, inclusive.
	MinDisplayHz = 20.0
	MaxDisplayHz = 20000.0

	// DefaultSmoothing is the weight given to the newest magnitude.
	DefaultSmoothing = 0.8

	// DefaultDisplaySize is the display history length, 2^11 samples.
	DefaultDisplaySize = 2048

	fullScale = 32768.0
)

var logger = log.Named("Analysis")

// Point is one retained bin of a spectrum frame.
type Point struct {
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"`
}

// Pre-allocated buffers for one Compute pass.
type fftWorkspace struct {
	input     []float64    // windowed history, len N
	fftOutput []complex128 // N/2+1 coefficients
	window    []float64    // flat-top coefficients
	smoothed  []float64    // per retained bin, dB
	frame     []Point      // reused result of Compute
}

// SpectrumAnalyzer turns a stream of int16 PCM into a smoothed dB spectrum
// restricted to the audible band. It keeps the last N samples in a ring and
// recomputes the whole frame from that history on every Compute.
//
// A SpectrumAnalyzer is owned by a single goroutine (the client reactor).
type SpectrumAnalyzer struct {
	fftCalculator *fourier.FFT
	history       *ring.Buffer[float64]
	size          int
	sampleRate    float64
	alpha         float64
	windowSum     float64
	lo, hi        int // retained bin indices, inclusive
	workspace     fftWorkspace
}

// NewSpectrumAnalyzer creates an analyzer over size samples (a power of two)
// at sampleRate. alpha is the smoothing weight in (0, 1].
func NewSpectrumAnalyzer(size int, sampleRate, alpha float64) (*SpectrumAnalyzer, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("spectrum: size must be a power of 2, got %d: %w", size, errs.ErrInvalidArgument)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("spectrum: sample rate must be positive, got %.1f: %w", sampleRate, errs.ErrInvalidArgument)
	}
	if !(alpha > 0 && alpha <= 1) {
		return nil, fmt.Errorf("spectrum: smoothing must be in (0, 1], got %v: %w", alpha, errs.ErrInvalidArgument)
	}

	lo := int(math.Ceil(MinDisplayHz * float64(size) / sampleRate))
	hi := min(int(math.Floor(MaxDisplayHz*float64(size)/sampleRate)), size/2)
	if hi < lo {
		return nil, fmt.Errorf("spectrum: no bins between %.0f and %.0f Hz for size %d at %.0f Hz: %w",
			MinDisplayHz, MaxDisplayHz, size, sampleRate, errs.ErrInvalidArgument)
	}

	history, err := ring.New[float64](size)
	if err != nil {
		return nil, err
	}

	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.FlatTop(coeffs)
	var sum float64
	for _, c := range coeffs {
		sum += c
	}

	a := &SpectrumAnalyzer{
		fftCalculator: fourier.NewFFT(size),
		history:       history,
		size:          size,
		sampleRate:    sampleRate,
		alpha:         alpha,
		windowSum:     sum,
		lo:            lo,
		hi:            hi,
		workspace: fftWorkspace{
			input:     make([]float64, size),
			fftOutput: make([]complex128, size/2+1),
			window:    coeffs,
			smoothed:  make([]float64, hi-lo+1),
			frame:     make([]Point, hi-lo+1),
		},
	}
	for i := range a.workspace.frame {
		a.workspace.frame[i].Frequency = float64(lo+i) * a.BinWidth()
	}

	logger.Debugf("spectrum analyzer ready (size %d, %.0f Hz, bins %d..%d)", size, sampleRate, lo, hi)
	return a, nil
}

// Push appends a PCM chunk to the history, evicting the oldest samples.
func (a *SpectrumAnalyzer) Push(samples []int16) {
	for _, s := range samples {
		a.history.Add(float64(s))
	}
}

// Compute windows the current history (zero padded until the ring fills),
// runs the FFT, converts the retained bins to dB and folds them into the
// smoothing state. The returned frame is reused by the next Compute; copy it
// before handing it to another goroutine.
func (a *SpectrumAnalyzer) Compute() []Point {
	ws := &a.workspace
	n := a.history.CopyTo(ws.input)
	clear(ws.input[n:])
	for i := range ws.input {
		ws.input[i] *= ws.window[i]
	}

	a.fftCalculator.Coefficients(ws.fftOutput, ws.input)

	for k := a.lo; k <= a.hi; k++ {
		i := k - a.lo
		db := a.decibels(cmplx.Abs(ws.fftOutput[k]))
		ws.smoothed[i] = ws.smoothed[i]*(1-a.alpha) + db*a.alpha
		ws.frame[i].Magnitude = ws.smoothed[i]
	}
	return ws.frame
}

func (a *SpectrumAnalyzer) decibels(abs float64) float64 {
	if a.windowSum == 0 {
		return 0
	}
	m := 2 * abs / fullScale / a.windowSum
	if !(m > 0) {
		return 0
	}
	return 20 * math.Log10(m)
}

// Reset clears the history and the smoothing state.
func (a *SpectrumAnalyzer) Reset() {
	a.history.Clear()
	clear(a.workspace.smoothed)
	for i := range a.workspace.frame {
		a.workspace.frame[i].Magnitude = 0
	}
}

// BinWidth is the frequency spacing of adjacent bins in Hz.
func (a *SpectrumAnalyzer) BinWidth() float64 {
	return a.sampleRate / float64(a.size)
}

// Frequencies returns the centre frequency of every retained bin.
func (a *SpectrumAnalyzer) Frequencies() []float64 {
	out := make([]float64, len(a.workspace.frame))
	for i, p := range a.workspace.frame {
		out[i] = p.Frequency
	}
	return out
}

// Size is the FFT length.
func (a *SpectrumAnalyzer) Size() int { return a.size }

// SampleRate is the rate the bins were laid out for.
func (a *SpectrumAnalyzer) SampleRate() float64 { return a.sampleRate }
