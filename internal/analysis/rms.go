// SPDX-License-Identifier: MIT
package analysis

import (
	"bbbtune/internal/ring"
	"math"
)

// MovingRMS tracks the root mean square of the last N samples. The sum of
// squares is maintained incrementally so each Add is O(1).
type MovingRMS struct {
	window *ring.Buffer[float64]
	sum    float64
}

// NewMovingRMS creates an estimator over a window of size samples.
func NewMovingRMS(size int) (*MovingRMS, error) {
	window, err := ring.New[float64](size)
	if err != nil {
		return nil, err
	}
	return &MovingRMS{window: window}, nil
}

// Add pushes a sample and returns the updated RMS.
func (m *MovingRMS) Add(x float64) float64 {
	wasFull := m.window.Full()
	evicted := m.window.Add(x)
	m.sum += x * x
	if wasFull {
		m.sum -= evicted * evicted
	}
	// Rounding can leave a tiny negative residue after long runs.
	if m.sum < 0 {
		m.sum = 0
	}
	return m.RMS()
}

// RMS returns sqrt(sum/count), or 0 before the first sample.
func (m *MovingRMS) RMS() float64 {
	n := m.window.Len()
	if n == 0 {
		return 0
	}
	return math.Sqrt(m.sum / float64(n))
}

// Size is the window length in samples.
func (m *MovingRMS) Size() int { return m.window.Cap() }

// Resize changes the window length, keeping the oldest retained samples,
// and recomputes the sum once from what survived.
func (m *MovingRMS) Resize(size int) error {
	if err := m.window.Resize(size); err != nil {
		return err
	}
	m.sum = 0
	for v := range m.window.Values() {
		m.sum += v * v
	}
	return nil
}

// Clear drops all samples.
func (m *MovingRMS) Clear() {
	m.window.Clear()
	m.sum = 0
}
