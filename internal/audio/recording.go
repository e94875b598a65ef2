// SPDX-License-Identifier: MIT
package audio

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/log"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var recLog = log.Named("Recorder")

// Recorder writes a received PCM stream to a 16-bit mono WAV file. The
// file is created on the first chunk so the header carries the stream's
// sample rate.
type Recorder struct {
	path string

	mu          sync.Mutex
	isRecording atomic.Bool
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer // Reusable buffer for format conversion
	sampleRate  int
	samples     int64
	done        bool // set by Close or a failed create
}

var _ analysis.ClosableProcessor = (*Recorder)(nil)

// NewRecorder prepares a recording to path.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

func (r *Recorder) start(sampleRate int) error {
	file, err := os.Create(r.path)
	if err != nil {
		return err
	}
	r.outputFile = file
	r.wavEncoder = wav.NewEncoder(file, sampleRate, 16, 1, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	r.sampleRate = sampleRate
	r.isRecording.Store(true)
	recLog.Infof("recording to %s at %d Hz", r.path, sampleRate)
	return nil
}

// Process appends a chunk. Chunks at a different sample rate than the
// first one are dropped.
func (r *Recorder) Process(samples []int16, sampleRate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return
	}
	if r.wavEncoder == nil {
		if err := r.start(int(sampleRate)); err != nil {
			recLog.Errorf("cannot create %s: %v", r.path, err)
			r.done = true
			return
		}
	}
	if int(sampleRate) != r.sampleRate {
		recLog.Warnf("dropping chunk at %.0f Hz, recording is %d Hz", sampleRate, r.sampleRate)
		return
	}

	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, s := range samples {
		r.sampleBuf.Data[i] = int(s)
	}
	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		recLog.Errorf("error writing to WAV file: %v", err)
		return
	}
	r.samples += int64(len(samples))
}

// Recording reports whether a file is open.
func (r *Recorder) Recording() bool { return r.isRecording.Load() }

// Samples is the number of samples written.
func (r *Recorder) Samples() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// Close finalizes the WAV header and closes the file. Closing a recorder
// that never received audio does nothing.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	if !r.isRecording.Load() {
		return nil
	}
	r.isRecording.Store(false)

	if err := r.wavEncoder.Close(); err != nil {
		r.outputFile.Close()
		return fmt.Errorf("finalize %s: %w", r.path, err)
	}
	r.wavEncoder = nil
	if err := r.outputFile.Close(); err != nil {
		return err
	}
	r.outputFile = nil

	size := uint64(0)
	if info, err := os.Stat(r.path); err == nil {
		size = uint64(info.Size())
	}
	recLog.Infof("wrote %s: %d samples, %s", r.path, r.samples, humanize.Bytes(size))
	return nil
}
