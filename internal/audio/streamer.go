// SPDX-License-Identifier: MIT
package audio

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/errs"
	"bbbtune/internal/log"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var streamLog = log.Named("Streamer")

// Streamer cuts a Source into fixed-size chunks and hands every chunk to
// its sinks in order. Non-live sources are paced to real time.
type Streamer struct {
	source    Source
	chunkSize int
	realtime  bool
	gate      *Gate
	sinks     []analysis.AudioProcessor
	buf       []int16
	chunks    uint64
}

// NewStreamer creates a streamer reading chunkSize samples at a time.
func NewStreamer(source Source, chunkSize int) (*Streamer, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("streamer: chunk size %d: %w", chunkSize, errs.ErrInvalidArgument)
	}
	live := false
	if ls, ok := source.(liveSource); ok {
		live = ls.Live()
	}
	return &Streamer{
		source:    source,
		chunkSize: chunkSize,
		realtime:  !live,
		gate:      NewGate(0.001),
		buf:       make([]int16, chunkSize),
	}, nil
}

// AddSink registers p. Sinks must not retain the chunk slice.
func (s *Streamer) AddSink(p analysis.AudioProcessor) {
	s.sinks = append(s.sinks, p)
}

// SetRealtime overrides pacing; tests use it to stream as fast as possible.
func (s *Streamer) SetRealtime(on bool) { s.realtime = on }

// Gate returns the noise gate applied before the sinks.
func (s *Streamer) Gate() *Gate { return s.gate }

// ChunkDuration is the playback time of one chunk.
func (s *Streamer) ChunkDuration() time.Duration {
	return time.Duration(float64(s.chunkSize) / s.source.SampleRate() * float64(time.Second))
}

// Chunks is the number of chunks delivered so far. Only read it after Run
// has returned or from a sink.
func (s *Streamer) Chunks() uint64 { return s.chunks }

// Run streams until ctx is done or the source fails. io.EOF from a
// non-looping source ends the stream without error.
func (s *Streamer) Run(ctx context.Context) error {
	rate := s.source.SampleRate()
	streamLog.Infof("streaming %d-sample chunks at %.0f Hz (%s per chunk)", s.chunkSize, rate, s.ChunkDuration())

	var tick <-chan time.Time
	if s.realtime {
		ticker := time.NewTicker(s.ChunkDuration())
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return nil
			}
		} else if ctx.Err() != nil {
			return nil
		}

		n, err := s.source.Read(s.buf)
		if errors.Is(err, io.EOF) {
			streamLog.Infof("source exhausted after %d chunks", s.chunks)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		chunk := s.buf[:n]
		if !s.gate.Open(chunk) {
			clear(chunk)
		}
		for _, sink := range s.sinks {
			sink.Process(chunk, rate)
		}
		s.chunks++
	}
}

// Close closes the sinks that hold resources, then the source.
func (s *Streamer) Close() error {
	var errList []error
	for _, sink := range s.sinks {
		if c, ok := sink.(analysis.ClosableProcessor); ok {
			errList = append(errList, c.Close())
		}
	}
	errList = append(errList, s.source.Close())
	return errors.Join(errList...)
}
