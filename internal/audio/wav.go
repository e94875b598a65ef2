// SPDX-License-Identifier: MIT
package audio

import (
	"bbbtune/internal/errs"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource plays a PCM WAV file in a loop, down-mixed to mono 16-bit.
type WAVSource struct {
	file     *os.File
	decoder  *wav.Decoder
	channels int
	bitDepth int
	rate     float64
	buf      *audio.IntBuffer
}

// OpenWAV opens path for looped playback.
func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s is not a valid WAV file: %w", path, errs.ErrInvalidArgument)
	}
	format := d.Format()
	if format == nil || format.NumChannels <= 0 || format.SampleRate <= 0 {
		f.Close()
		return nil, fmt.Errorf("%s has no usable format chunk: %w", path, errs.ErrInvalidArgument)
	}
	bitDepth := int(d.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		f.Close()
		return nil, fmt.Errorf("%s: unsupported bit depth %d: %w", path, bitDepth, errs.ErrInvalidArgument)
	}

	return &WAVSource{
		file:     f,
		decoder:  d,
		channels: format.NumChannels,
		bitDepth: bitDepth,
		rate:     float64(format.SampleRate),
		buf:      &audio.IntBuffer{Format: format},
	}, nil
}

func (s *WAVSource) SampleRate() float64 { return s.rate }

// Read decodes the next frames, rewinding at the end of the data chunk.
func (s *WAVSource) Read(out []int16) (int, error) {
	need := len(out) * s.channels
	if cap(s.buf.Data) < need {
		s.buf.Data = make([]int, need)
	}
	s.buf.Data = s.buf.Data[:need]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if n == 0 {
		if err := s.decoder.Rewind(); err != nil {
			return 0, fmt.Errorf("rewind: %w", err)
		}
		if n, err = s.decoder.PCMBuffer(s.buf); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
	}

	frames := n / s.channels
	for i := range frames {
		var sum int
		for c := range s.channels {
			sum += s.buf.Data[i*s.channels+c]
		}
		out[i] = toInt16(sum/s.channels, s.bitDepth)
	}
	return frames, nil
}

func toInt16(v, bitDepth int) int16 {
	switch bitDepth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

func (s *WAVSource) Close() error {
	return s.file.Close()
}
