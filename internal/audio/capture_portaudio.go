// SPDX-License-Identifier: MIT

//go:build portaudio

package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// CaptureSource reads mono PCM from an input device in blocking mode.
type CaptureSource struct {
	stream *portaudio.Stream
	buf    []int16
	rate   float64
	once   sync.Once
}

// OpenCapture opens deviceID (DefaultDeviceID for the host default) at
// sampleRate, delivering framesPerBuffer samples per hardware read.
func OpenCapture(deviceID int, sampleRate float64, framesPerBuffer int) (*CaptureSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	dev, err := inputDevice(deviceID)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	p := portaudio.LowLatencyParameters(dev, nil)
	p.Input.Channels = 1
	p.Output.Channels = 0
	p.SampleRate = sampleRate
	p.FramesPerBuffer = framesPerBuffer

	c := &CaptureSource{buf: make([]int16, framesPerBuffer), rate: sampleRate}
	stream, err := portaudio.OpenStream(p, c.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

func inputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == DefaultDeviceID {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	return devices[deviceID], nil
}

func (c *CaptureSource) SampleRate() float64 { return c.rate }

func (c *CaptureSource) Live() bool { return true }

// Read blocks for as many hardware buffers as it takes to fill out.
func (c *CaptureSource) Read(out []int16) (int, error) {
	n := 0
	for n < len(out) {
		if err := c.stream.Read(); err != nil {
			return n, err
		}
		n += copy(out[n:], c.buf)
	}
	return n, nil
}

func (c *CaptureSource) Close() error {
	var err error
	c.once.Do(func() {
		if e := c.stream.Stop(); e != nil {
			err = e
		}
		if e := c.stream.Close(); e != nil && err == nil {
			err = e
		}
		portaudio.Terminate()
	})
	return err
}

// HostDevices lists every PortAudio device.
func HostDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
	}
	return devices, nil
}
