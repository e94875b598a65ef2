// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"
)

func TestMovingRMS(t *testing.T) {
	m, err := NewMovingRMS(4)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.RMS(); got != 0 {
		t.Fatalf("RMS() before any sample = %v, want 0", got)
	}

	for range 4 {
		m.Add(1)
	}
	if got := m.RMS(); got != 1 {
		t.Fatalf("RMS() of ones = %v, want 1", got)
	}

	// One zero pushes a one out of the window.
	got := m.Add(0)
	want := math.Sqrt(3.0 / 4.0)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Add(0) = %v, want %v", got, want)
	}
}

func TestMovingRMSPartialWindow(t *testing.T) {
	m, _ := NewMovingRMS(8)
	m.Add(3)
	if got := m.Add(-3); got != 3 {
		t.Errorf("RMS() over two samples = %v, want 3", got)
	}
}

func TestMovingRMSResizeAndClear(t *testing.T) {
	m, _ := NewMovingRMS(4)
	for _, v := range []float64{2, 2, 4, 4} {
		m.Add(v)
	}
	if err := m.Resize(2); err != nil {
		t.Fatal(err)
	}
	// The oldest two samples survive.
	if got := m.RMS(); got != 2 {
		t.Errorf("RMS() after resize = %v, want 2", got)
	}
	if m.Size() != 2 {
		t.Errorf("Size() = %d, want 2", m.Size())
	}

	m.Clear()
	if got := m.RMS(); got != 0 {
		t.Errorf("RMS() after Clear = %v, want 0", got)
	}
	if err := m.Resize(0); err == nil {
		t.Error("Resize(0) should fail")
	}
}

func TestMovingRMSNeverNegative(t *testing.T) {
	m, _ := NewMovingRMS(3)
	for i := range 10000 {
		v := 1e8
		if i%3 == 0 {
			v = 1e-8
		}
		m.Add(v)
	}
	for range 3 {
		m.Add(0)
	}
	if got := m.RMS(); math.IsNaN(got) || got < 0 {
		t.Errorf("RMS() = %v after drain, want >= 0", got)
	}
}

func TestMovingRMSZeroAllocs(t *testing.T) {
	m, _ := NewMovingRMS(256)
	allocs := testing.AllocsPerRun(100, func() {
		m.Add(0.5)
	})
	if allocs > 0 {
		t.Errorf("Add allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkMovingRMSAdd(b *testing.B) {
	m, _ := NewMovingRMS(8820)
	b.ReportAllocs()
	for b.Loop() {
		m.Add(0.5)
	}
}
