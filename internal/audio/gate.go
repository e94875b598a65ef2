// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// Gate silences chunks whose peak stays below a threshold. The settings
// are atomic so the CLI or a future parameter can change them while the
// streamer runs.
type Gate struct {
	enabled   atomic.Bool
	threshold atomic.Int32 // absolute amplitude, 0..MaxInt16
}

// NewGate returns a disabled gate at threshold (0..1 of full scale).
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

func (g *Gate) Enable()  { g.enabled.Store(true) }
func (g *Gate) Disable() { g.enabled.Store(false) }

func (g *Gate) Enabled() bool { return g.enabled.Load() }

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	threshold = math.Min(math.Max(threshold, 0), 1)
	g.threshold.Store(int32(threshold * math.MaxInt16))
}

// Threshold returns the current threshold in the range 0.0-1.0.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold.Load()) / math.MaxInt16
}

// Open reports whether buf should pass. A disabled gate is always open.
func (g *Gate) Open(buf []int16) bool {
	if !g.enabled.Load() {
		return true
	}
	return peak(buf) > g.threshold.Load()
}

// peak returns the largest absolute sample without branching in the loop.
func peak(buf []int16) int32 {
	var maxAmplitude int32
	for _, s := range buf {
		sample := int32(s)
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	return maxAmplitude
}
