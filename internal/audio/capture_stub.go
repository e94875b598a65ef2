// SPDX-License-Identifier: MIT

//go:build !portaudio

package audio

// CaptureSource is unavailable without the portaudio build tag.
type CaptureSource struct{}

func OpenCapture(deviceID int, sampleRate float64, framesPerBuffer int) (*CaptureSource, error) {
	return nil, ErrNoCapture
}

func (c *CaptureSource) SampleRate() float64       { return 0 }
func (c *CaptureSource) Read([]int16) (int, error) { return 0, ErrNoCapture }
func (c *CaptureSource) Close() error              { return nil }

func HostDevices() ([]Device, error) { return nil, ErrNoCapture }
