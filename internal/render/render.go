// SPDX-License-Identifier: MIT
//
// Package render is the client's display boundary. Renderers receive the
// smoothed spectrum, parameter snapshots and motor levels; drawing them is
// left to whatever sits behind the interface (a log, a browser on the
// spectrum feed).
package render

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/params"
	"bbbtune/internal/transport"
)

// Renderer consumes display updates. Spectrum points are only valid for
// the duration of the call.
type Renderer interface {
	Spectrum(points []analysis.Point)
	Params(m *params.Model)
	Levels(l transport.Levels)
}

type multi []Renderer

// Multi fans every update out to rs in order.
func Multi(rs ...Renderer) Renderer {
	return multi(rs)
}

func (m multi) Spectrum(points []analysis.Point) {
	for _, r := range m {
		r.Spectrum(points)
	}
}

func (m multi) Params(p *params.Model) {
	for _, r := range m {
		r.Params(p)
	}
}

func (m multi) Levels(l transport.Levels) {
	for _, r := range m {
		r.Levels(l)
	}
}
