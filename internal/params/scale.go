// SPDX-License-Identifier: MIT
package params

import (
	"bbbtune/internal/errs"
	"fmt"
	"math"
)

// Scale maps between a parameter's raw value and a normalized position in
// [0, 1].
type Scale int

const (
	Linear Scale = iota
	Logarithmic
)

func (s Scale) String() string {
	switch s {
	case Linear:
		return "linear"
	case Logarithmic:
		return "logarithmic"
	default:
		return fmt.Sprintf("Scale(%d)", int(s))
	}
}

// MarshalText encodes the scale the way the wire expects it in p_type.
func (s Scale) MarshalText() ([]byte, error) {
	switch s {
	case Linear, Logarithmic:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("params: cannot marshal %v: %w", s, errs.ErrInvalidArgument)
	}
}

// UnmarshalText accepts "linear" and "logarithmic". An empty string is
// linear, matching parameters registered without an explicit scale.
func (s *Scale) UnmarshalText(text []byte) error {
	switch string(text) {
	case "linear", "":
		*s = Linear
	case "logarithmic":
		*s = Logarithmic
	default:
		return fmt.Errorf("params: unknown scale %q: %w", text, errs.ErrInvalidArgument)
	}
	return nil
}

// toValue is the inverse mapping of toPercent.
func (s Scale) toValue(p, min, max float64) float64 {
	if s == Logarithmic {
		return min * math.Pow(max/min, p)
	}
	return min + (max-min)*p
}

func (s Scale) toPercent(v, min, max float64) float64 {
	if s == Logarithmic {
		return math.Log10(v/min) / math.Log10(max/min)
	}
	return (v - min) / (max - min)
}
