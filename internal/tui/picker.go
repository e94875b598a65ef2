// SPDX-License-Identifier: MIT
//
// Package tui is the interactive capture device picker behind
// "bbbtune devices --interactive". The user chooses an input device and a
// sample rate; the selection is turned into the audio section of the
// config file by the caller.
package tui

import (
	"bbbtune/internal/audio"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

var (
	keyQuit   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp     = key.NewBinding(key.WithKeys("up", "k"))
	keyDown   = key.NewBinding(key.WithKeys("down", "j"))
	keyEnter  = key.NewBinding(key.WithKeys("enter"))
	keyBack   = key.NewBinding(key.WithKeys("esc"))
	baseRates = []float64{8000, 16000, 22050, 44100, 48000, 96000}
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	RateScreen
)

// Selection is the device and rate the user confirmed.
type Selection struct {
	DeviceID   int
	Name       string
	SampleRate float64
}

// Picker is the Bubble Tea model. Only devices with input channels are
// offered.
type Picker struct {
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	activeScreen  ScreenType

	rates     []float64
	rateIndex int

	selection Selection
	chosen    bool
}

// NewPicker creates a picker over devices.
func NewPicker(devices []audio.Device) Picker {
	var inputs []audio.Device
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return Picker{devices: inputs, activeScreen: ListScreen}
}

func (m Picker) Init() tea.Cmd { return nil }

// ratesFor offers the common rates plus the device default, ascending.
func ratesFor(d audio.Device) ([]float64, int) {
	rates := make([]float64, 0, len(baseRates)+1)
	inserted := false
	for _, r := range baseRates {
		if !inserted && d.DefaultSampleRate <= r {
			if d.DefaultSampleRate != r {
				rates = append(rates, d.DefaultSampleRate)
			}
			inserted = true
		}
		rates = append(rates, r)
	}
	if !inserted {
		rates = append(rates, d.DefaultSampleRate)
	}
	for i, r := range rates {
		if r == d.DefaultSampleRate {
			return rates, i
		}
	}
	return rates, 0
}

func (m Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}
		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, keyUp):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, keyDown):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, keyEnter):
				if len(m.devices) > 0 {
					m.activeScreen = RateScreen
					m.rates, m.rateIndex = ratesFor(m.devices[m.selectedIndex])
				}
			}
		case RateScreen:
			switch {
			case key.Matches(msg, keyBack):
				m.activeScreen = ListScreen
			case key.Matches(msg, keyUp):
				if m.rateIndex > 0 {
					m.rateIndex--
				}
			case key.Matches(msg, keyDown):
				if m.rateIndex < len(m.rates)-1 {
					m.rateIndex++
				}
			case key.Matches(msg, keyEnter):
				d := m.devices[m.selectedIndex]
				m.selection = Selection{DeviceID: d.ID, Name: d.Name, SampleRate: m.rates[m.rateIndex]}
				m.chosen = true
				return m, tea.Quit
			}
		}
		m.refresh()
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *Picker) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ListScreen {
		m.viewport.SetContent(m.renderDevices())
	} else {
		m.viewport.SetContent(m.renderRates())
	}
}

// View renders the UI
func (m Picker) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Capture Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Choose rate • q: Quit")
	} else {
		title = titleStyle.Render("Sample Rate")
		help = infoStyle.Render("↑/↓: Change • Enter: Use this device • Esc: Back • q: Quit")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m Picker) renderDevices() string {
	if len(m.devices) == 0 {
		return "No capture devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		deviceInfo := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, device.Kind())
		deviceInfo += fmt.Sprintf("    Input channels: %d, Default sample rate: %.0f Hz\n",
			device.MaxInputChannels, device.DefaultSampleRate)
		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}
		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Picker) renderRates() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Device: %s\n\n", m.devices[m.selectedIndex].Name)
	for i, rate := range m.rates {
		marker := " "
		if i == m.rateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.rateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// Selection returns the confirmed choice; ok is false if the user quit.
func (m Picker) Selection() (Selection, bool) {
	return m.selection, m.chosen
}

// Run shows the picker full screen until the user chooses or quits.
func Run(devices []audio.Device) (Selection, bool, error) {
	p := tea.NewProgram(NewPicker(devices), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok := final.(Picker).Selection()
	return sel, ok, nil
}
