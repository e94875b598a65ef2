// SPDX-License-Identifier: MIT
package render

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/log"
	"bbbtune/internal/params"
	"bbbtune/internal/transport"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// LogRenderer writes a one-line summary of each update to the log.
type LogRenderer struct {
	logger *log.Logger
}

func NewLogRenderer() *LogRenderer {
	return &LogRenderer{logger: log.Named("Render")}
}

// Spectrum logs the strongest bin.
func (r *LogRenderer) Spectrum(points []analysis.Point) {
	if len(points) == 0 {
		return
	}
	peak := points[0]
	for _, p := range points[1:] {
		if p.Magnitude > peak.Magnitude {
			peak = p
		}
	}
	r.logger.Infof("peak %s at %.1f dB (%d bins)", formatHz(peak.Frequency), peak.Magnitude, len(points))
}

func (r *LogRenderer) Params(m *params.Model) {
	r.logger.Infof("parameters v%d", m.Version())
	for _, e := range m.Entries() {
		r.logger.Infof("  %-15s %-10s %5.1f%%", e.Key, FormatValue(e.Param), 100*e.Percent())
	}
}

func (r *LogRenderer) Levels(l transport.Levels) {
	r.logger.Debugf("mouth %.0f (open %t) body %.0f (flip %t)", l.Mouth, l.MouthOpen, l.Body, l.BodyFlip)
}

// FormatValue renders a parameter value with its units.
func FormatValue(p params.Param) string {
	switch p.Units {
	case params.UnitsHz:
		return formatHz(p.Value)
	case params.UnitsNone:
		return fmt.Sprintf("%.0f", p.Value)
	default:
		return fmt.Sprintf("%.0f %s", p.Value, p.Units)
	}
}

// formatHz rounds the SI mantissa to one decimal; humanize's own digit
// helpers truncate.
func formatHz(f float64) string {
	v, prefix := humanize.ComputeSI(f)
	s := strings.TrimSuffix(strconv.FormatFloat(v, 'f', 1, 64), ".0")
	return s + " " + prefix + "Hz"
}
