// SPDX-License-Identifier: MIT
package params

// Keys of the built-in parameters.
const (
	HpfCutoff      = "HpfCutoff"
	LpfCutoff      = "LpfCutoff"
	WindowSizeMs   = "WindowSizeMs"
	AudioLatencyMs = "AudioLatencyMs"
	FlipInterval   = "FlipInterval"
	BodyThreshold  = "BodyThreshold"
	MouthThreshold = "MouthThreshold"
)

type definition struct {
	key           string
	def, min, max float64
	units         string
	scale         Scale
}

var defaults = []definition{
	// signal processing
	{HpfCutoff, 5000, 20, 20000, UnitsHz, Logarithmic},
	{LpfCutoff, 1000, 20, 20000, UnitsHz, Logarithmic},
	{WindowSizeMs, 200, 5, 500, UnitsMs, Linear},
	{AudioLatencyMs, 250, 0, 1000, UnitsMs, Linear},

	// motor triggers
	{FlipInterval, 1000, 100, 2000, UnitsMs, Linear},
	{BodyThreshold, 5000, 500, 20000, UnitsNone, Linear},
	{MouthThreshold, 5000, 500, 20000, UnitsNone, Linear},
}

// NewDefaultModel returns the parameter set the device boots with.
func NewDefaultModel() *Model {
	m := NewModel()
	for _, d := range defaults {
		var err error
		m, err = m.Register(d.key, d.def, d.min, d.max, d.units, d.scale)
		if err != nil {
			// The table above is static.
			panic(err)
		}
	}
	return m
}
