// SPDX-License-Identifier: MIT
package tui

import (
	"bbbtune/internal/audio"
	"slices"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

var testDevices = []audio.Device{
	{ID: 0, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000},
	{ID: 1, Name: "USB Mic", MaxInputChannels: 1, DefaultSampleRate: 44100},
	{ID: 2, Name: "Line In", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 32000},
}

func press(m Picker, keys ...tea.KeyMsg) (Picker, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(Picker)
	}
	return m, cmd
}

var (
	down  = tea.KeyMsg{Type: tea.KeyDown}
	up    = tea.KeyMsg{Type: tea.KeyUp}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	quit  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
)

func sized(m Picker) Picker {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(Picker)
}

func TestPickerOffersInputsOnly(t *testing.T) {
	m := sized(NewPicker(testDevices))
	view := m.View()
	if strings.Contains(view, "Speakers") {
		t.Error("output-only device listed")
	}
	if !strings.Contains(view, "USB Mic") || !strings.Contains(view, "Line In") {
		t.Errorf("inputs missing from %q", view)
	}
}

func TestPickerChoosesDeviceAndRate(t *testing.T) {
	m := sized(NewPicker(testDevices))
	m, _ = press(m, down, down, enter) // stays on the last device
	if m.activeScreen != RateScreen {
		t.Fatal("enter did not open the rate screen")
	}
	// Line In defaults to 32000, which is inserted between the common rates.
	if !slices.Contains(m.rates, 32000) || m.rates[m.rateIndex] != 32000 {
		t.Fatalf("rates %v, index %d", m.rates, m.rateIndex)
	}

	m, cmd := press(m, down, enter)
	sel, ok := m.Selection()
	if !ok || cmd == nil {
		t.Fatal("selection not confirmed")
	}
	if sel.DeviceID != 2 || sel.SampleRate != 44100 {
		t.Errorf("selection = %+v", sel)
	}
}

func TestPickerBackAndQuit(t *testing.T) {
	m := sized(NewPicker(testDevices))
	m, _ = press(m, enter, esc, up)
	if m.activeScreen != ListScreen || m.selectedIndex != 0 {
		t.Errorf("screen %v index %d after esc", m.activeScreen, m.selectedIndex)
	}
	m, cmd := press(m, quit)
	if _, ok := m.Selection(); ok || cmd == nil {
		t.Error("quit should end without a selection")
	}
}

func TestPickerWithoutDevices(t *testing.T) {
	m := sized(NewPicker(nil))
	m, _ = press(m, enter)
	if m.activeScreen != ListScreen || !strings.Contains(m.View(), "No capture devices") {
		t.Errorf("unexpected view %q", m.View())
	}
}

func TestRatesFor(t *testing.T) {
	tests := []struct {
		rate      float64
		wantLen   int
		wantIndex int
	}{
		{44100, 6, 3},
		{11025, 7, 1},
		{192000, 7, 6},
	}
	for _, tt := range tests {
		rates, i := ratesFor(audio.Device{DefaultSampleRate: tt.rate})
		if len(rates) != tt.wantLen || i != tt.wantIndex || rates[i] != tt.rate {
			t.Errorf("ratesFor(%v) = %v, %d", tt.rate, rates, i)
		}
		if !slices.IsSorted(rates) {
			t.Errorf("ratesFor(%v) not ascending: %v", tt.rate, rates)
		}
	}
}
