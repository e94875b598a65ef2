// SPDX-License-Identifier: MIT
package analysis

// AudioProcessor consumes PCM chunks in arrival order. Process is called
// from the streaming hot path and must not block.
type AudioProcessor interface {
	Process(samples []int16, sampleRate float64)
}

// ClosableProcessor combines AudioProcessor with a Close method for resource cleanup.
type ClosableProcessor interface {
	AudioProcessor
	Close() error
}

// ProcessorFunc adapts an ordinary function to AudioProcessor.
type ProcessorFunc func(samples []int16, sampleRate float64)

func (f ProcessorFunc) Process(samples []int16, sampleRate float64) { f(samples, sampleRate) }
