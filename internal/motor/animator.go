// SPDX-License-Identifier: MIT
//
// Package motor turns the device's audio stream into mouth and body
// triggers. The mouth follows high-passed energy and the body follows
// low-passed energy, each measured by a moving RMS and compared against a
// threshold from the parameter model. Trigger decisions are delayed by
// AudioLatencyMs so they line up with the audible output.
package motor

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/errs"
	"bbbtune/internal/log"
	"bbbtune/internal/metrics"
	"bbbtune/internal/params"
	"bbbtune/internal/ring"
	"bbbtune/internal/transport"
	"fmt"
	"math"
)

var motorLog = log.Named("Motor")

// FilterQ is the Butterworth quality factor used for both trigger filters.
const FilterQ = math.Sqrt2 / 2

// settings is the numeric configuration derived from one model version.
type settings struct {
	hpfCutoff      float64
	lpfCutoff      float64
	windowSamples  int
	latencySamples int
	flipSamples    int
	mouthThreshold float64
	bodyThreshold  float64
}

func settingsFrom(m *params.Model, sampleRate float64) settings {
	samples := func(ms float64) int {
		return int(math.Round(ms * sampleRate / 1000))
	}
	s := settings{
		hpfCutoff:      m.Value(params.HpfCutoff, 5000),
		lpfCutoff:      m.Value(params.LpfCutoff, 1000),
		windowSamples:  max(1, samples(m.Value(params.WindowSizeMs, 200))),
		latencySamples: max(0, samples(m.Value(params.AudioLatencyMs, 0))),
		flipSamples:    max(1, samples(m.Value(params.FlipInterval, 1000))),
		mouthThreshold: m.Value(params.MouthThreshold, 5000),
		bodyThreshold:  m.Value(params.BodyThreshold, 5000),
	}
	// Cutoffs are clamped below Nyquist so low device rates still work.
	nyquist := sampleRate/2 - 1
	s.hpfCutoff = math.Min(s.hpfCutoff, nyquist)
	s.lpfCutoff = math.Min(s.lpfCutoff, nyquist)
	return s
}

// Animator implements analysis.AudioProcessor. It is driven by the
// streamer goroutine only.
type Animator struct {
	store    *params.Store
	actuator Actuator
	metrics  *metrics.Metrics
	onLevels func(transport.Levels)

	version    uint64
	sampleRate float64
	cfg        settings

	hpf, lpf   *analysis.Biquad
	mouth      *analysis.MovingRMS
	body       *analysis.MovingRMS
	delay      *ring.Buffer[float64]
	mouthOpen  bool
	bodyFlip   bool
	sinceFlip  int
	configured bool
}

var _ analysis.AudioProcessor = (*Animator)(nil)

// NewAnimator creates an animator reading its settings from store. act and
// m may be nil.
func NewAnimator(store *params.Store, act Actuator, m *metrics.Metrics) (*Animator, error) {
	if store == nil {
		return nil, fmt.Errorf("motor: nil parameter store: %w", errs.ErrInvalidArgument)
	}
	if act == nil {
		act = NewLogActuator()
	}
	return &Animator{store: store, actuator: act, metrics: m}, nil
}

// OnLevels registers fn to receive the levels after every chunk.
func (a *Animator) OnLevels(fn func(transport.Levels)) { a.onLevels = fn }

// Levels returns the state after the last processed chunk.
func (a *Animator) Levels() transport.Levels {
	var l transport.Levels
	if a.configured {
		l.Mouth = a.mouth.RMS()
		l.Body = a.body.RMS()
	}
	l.MouthOpen = a.mouthOpen
	l.BodyFlip = a.bodyFlip
	return l
}

// configure rebuilds the filters when the model or the stream rate changes.
// RMS windows and the delay line keep their samples across a resize.
func (a *Animator) configure(m *params.Model, sampleRate float64) error {
	cfg := settingsFrom(m, sampleRate)
	rateChanged := sampleRate != a.sampleRate

	if !a.configured || rateChanged || cfg.hpfCutoff != a.cfg.hpfCutoff {
		hpf, err := analysis.NewBiquad(sampleRate, cfg.hpfCutoff, FilterQ, analysis.Highpass)
		if err != nil {
			return err
		}
		a.hpf = hpf
	}
	if !a.configured || rateChanged || cfg.lpfCutoff != a.cfg.lpfCutoff {
		lpf, err := analysis.NewBiquad(sampleRate, cfg.lpfCutoff, FilterQ, analysis.Lowpass)
		if err != nil {
			return err
		}
		a.lpf = lpf
	}

	var err error
	switch {
	case !a.configured:
		if a.mouth, err = analysis.NewMovingRMS(cfg.windowSamples); err != nil {
			return err
		}
		if a.body, err = analysis.NewMovingRMS(cfg.windowSamples); err != nil {
			return err
		}
	case cfg.windowSamples != a.mouth.Size():
		if err = a.mouth.Resize(cfg.windowSamples); err != nil {
			return err
		}
		if err = a.body.Resize(cfg.windowSamples); err != nil {
			return err
		}
	}

	switch {
	case cfg.latencySamples == 0:
		a.delay = nil
	case a.delay == nil:
		if a.delay, err = ring.New[float64](cfg.latencySamples); err != nil {
			return err
		}
	case a.delay.Cap() != cfg.latencySamples:
		if err = a.delay.Resize(cfg.latencySamples); err != nil {
			return err
		}
	}

	if rateChanged && a.configured {
		motorLog.Infof("stream rate changed %.0f -> %.0f Hz", a.sampleRate, sampleRate)
	}
	a.cfg = cfg
	a.sampleRate = sampleRate
	a.version = m.Version()
	a.configured = true
	motorLog.Debugf("configured v%d: hpf %.0f Hz, lpf %.0f Hz, window %d, latency %d, flip %d",
		a.version, cfg.hpfCutoff, cfg.lpfCutoff, cfg.windowSamples, cfg.latencySamples, cfg.flipSamples)
	return nil
}

// Process runs one chunk through both trigger paths.
func (a *Animator) Process(samples []int16, sampleRate float64) {
	m := a.store.Load()
	if !a.configured || m.Version() != a.version || sampleRate != a.sampleRate {
		if err := a.configure(m, sampleRate); err != nil {
			motorLog.Errorf("cannot apply parameters v%d: %v", m.Version(), err)
			if !a.configured {
				return
			}
		}
	}

	for _, s := range samples {
		x := float64(s)
		if a.delay != nil {
			full := a.delay.Full()
			out := a.delay.Add(x)
			if !full {
				out = 0
			}
			x = out
		}
		a.mouth.Add(a.hpf.Process(x))
		a.body.Add(a.lpf.Process(x))
	}
	a.sinceFlip = min(a.sinceFlip+len(samples), a.cfg.flipSamples)
	a.update()
}

func (a *Animator) update() {
	mouth, body := a.mouth.RMS(), a.body.RMS()

	if open := mouth > a.cfg.mouthThreshold; open != a.mouthOpen {
		a.mouthOpen = open
		a.drive(Mouth, open)
	}

	// The body flips out while the low band is loud and returns when it
	// is quiet, at most once per flip interval.
	loud := body > a.cfg.bodyThreshold
	if loud != a.bodyFlip && a.sinceFlip >= a.cfg.flipSamples {
		a.bodyFlip = loud
		a.sinceFlip = 0
		a.drive(Body, loud)
	}

	a.metrics.SetLevels(mouth, body)
	if a.onLevels != nil {
		a.onLevels(transport.Levels{Mouth: mouth, Body: body, MouthOpen: a.mouthOpen, BodyFlip: a.bodyFlip})
	}
}

func (a *Animator) drive(m Motor, on bool) {
	if on {
		a.metrics.RecordTrigger(string(m))
	}
	if err := a.actuator.Set(m, on); err != nil {
		motorLog.Warnf("actuator %s: %v", m, err)
	}
}
