// SPDX-License-Identifier: MIT
package params

import (
	"bbbtune/internal/errs"
	"fmt"
	"math"
)

// Units used by the built-in parameters.
const (
	UnitsHz   = "Hz"
	UnitsMs   = "Ms"
	UnitsNone = ""
)

// Param is one tunable value with its bounds and scale. Param is a plain
// value; copying it copies everything.
type Param struct {
	Value   float64 `json:"value"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Units   string  `json:"units"`
	Scale   Scale   `json:"p_type"`
}

// Percent returns the normalized position of Value.
func (p Param) Percent() float64 {
	return p.Scale.toPercent(p.Value, p.Min, p.Max)
}

// ValueAt maps a normalized position back to a raw value. The result is
// clamped to the bounds so floating point error never leaves the range.
func (p Param) ValueAt(percent float64) float64 {
	v := p.Scale.toValue(percent, p.Min, p.Max)
	return math.Min(math.Max(v, p.Min), p.Max)
}

// Contains reports whether v lies within [Min, Max].
func (p Param) Contains(v float64) bool {
	return v >= p.Min && v <= p.Max
}

func (p Param) validate(key string) error {
	if key == "" {
		return fmt.Errorf("params: empty key: %w", errs.ErrInvalidArgument)
	}
	if math.IsNaN(p.Min) || math.IsNaN(p.Max) || !(p.Min < p.Max) {
		return fmt.Errorf("params: %s: min %v must be below max %v: %w", key, p.Min, p.Max, errs.ErrInvalidArgument)
	}
	switch p.Scale {
	case Linear:
	case Logarithmic:
		if p.Min <= 0 {
			return fmt.Errorf("params: %s: logarithmic scale needs a positive min, got %v: %w", key, p.Min, errs.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("params: %s: unsupported scale %v: %w", key, p.Scale, errs.ErrInvalidArgument)
	}
	if !p.Contains(p.Default) {
		return fmt.Errorf("params: %s: default %v outside [%v, %v]: %w", key, p.Default, p.Min, p.Max, errs.ErrOutOfRange)
	}
	if !p.Contains(p.Value) {
		return fmt.Errorf("params: %s: value %v outside [%v, %v]: %w", key, p.Value, p.Min, p.Max, errs.ErrOutOfRange)
	}
	return nil
}
