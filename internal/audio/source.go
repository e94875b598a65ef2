// SPDX-License-Identifier: MIT
/*
Package audio produces the device's PCM stream:
- Sources: synthetic tone, WAV file and (with the portaudio build tag) live capture
- A streamer that cuts the source into fixed chunks and fans them out
- Noise gate with branchless peak detection
- WAV recording of a received stream

All PCM is mono, signed 16-bit.
*/
package audio

import (
	"bbbtune/internal/errs"
	"fmt"
	"math"
)

// Source produces mono int16 PCM.
type Source interface {
	SampleRate() float64
	// Read fills buf and returns the number of samples written. Sources
	// that loop never return io.EOF.
	Read(buf []int16) (int, error)
	Close() error
}

// liveSource is implemented by sources that block in Read at the hardware
// rate, so the streamer must not pace them again.
type liveSource interface {
	Live() bool
}

// ToneSource synthesizes a sine whose amplitude is modulated by a slow
// envelope, which is enough to exercise both motor triggers without any
// hardware.
type ToneSource struct {
	sampleRate float64
	freq       float64
	amplitude  float64
	modFreq    float64
	n          uint64
}

// NewToneSource creates a tone at freq Hz with peak amplitude in (0, 1].
// modFreq is the envelope rate in Hz; 0 gives a steady tone.
func NewToneSource(sampleRate, freq, amplitude, modFreq float64) (*ToneSource, error) {
	if sampleRate <= 0 || freq <= 0 || freq >= sampleRate/2 {
		return nil, fmt.Errorf("tone: frequency %.1f Hz invalid at %.0f Hz: %w", freq, sampleRate, errs.ErrInvalidArgument)
	}
	if !(amplitude > 0 && amplitude <= 1) || modFreq < 0 {
		return nil, fmt.Errorf("tone: amplitude %v or modulation %v invalid: %w", amplitude, modFreq, errs.ErrInvalidArgument)
	}
	return &ToneSource{sampleRate: sampleRate, freq: freq, amplitude: amplitude, modFreq: modFreq}, nil
}

func (s *ToneSource) SampleRate() float64 { return s.sampleRate }

func (s *ToneSource) Read(buf []int16) (int, error) {
	for i := range buf {
		t := float64(s.n) / s.sampleRate
		env := 1.0
		if s.modFreq > 0 {
			env = 0.5 * (1 - math.Cos(2*math.Pi*s.modFreq*t))
		}
		buf[i] = int16(math.Sin(2*math.Pi*s.freq*t) * env * s.amplitude * math.MaxInt16)
		s.n++
	}
	return len(buf), nil
}

func (s *ToneSource) Close() error { return nil }
