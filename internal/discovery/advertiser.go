// SPDX-License-Identifier: MIT
package discovery

import (
	"bbbtune/internal/errs"
	"bbbtune/internal/log"
	"fmt"
	"sync"
	"time"
)

var discoveryLog = log.Named("Discovery")

// Options configures the multicast group used by an Advertiser or Listener.
type Options struct {
	Group    string
	Port     int
	TTL      int
	Interval time.Duration

	// OnSend, if set, is called after every beacon with the send error.
	OnSend func(err error)
}

// DefaultOptions returns the well-known group, port, TTL and interval.
func DefaultOptions() Options {
	return Options{
		Group:    DefaultGroup,
		Port:     DefaultPort,
		TTL:      DefaultTTL,
		Interval: DefaultInterval,
	}
}

// Advertiser periodically sends a beacon to the multicast group. It runs
// in its own goroutine between Start and Stop and can be restarted.
type Advertiser struct {
	opts    Options
	payload []byte

	sender   *MulticastSender
	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects sender, ticker and doneChan during Start/Stop.
}

// NewAdvertiser validates the beacon and options. No socket is opened
// until Start.
func NewAdvertiser(beacon Beacon, opts Options) (*Advertiser, error) {
	payload, err := beacon.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := groupAddr(opts.Group, opts.Port); err != nil {
		return nil, err
	}
	if opts.TTL < 1 || opts.TTL > 255 {
		return nil, fmt.Errorf("advertiser: TTL %d outside 1..255: %w", opts.TTL, errs.ErrInvalidArgument)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
		discoveryLog.Warnf("invalid advertise interval, defaulting to %s", opts.Interval)
	}
	return &Advertiser{opts: opts, payload: payload}, nil
}

// Start opens the send socket, sends the first beacon immediately and then
// one per interval. Starting a running advertiser does nothing. Socket
// errors are returned; send errors are only logged.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ticker != nil {
		discoveryLog.Warnf("advertiser already running")
		return nil
	}

	group, _ := groupAddr(a.opts.Group, a.opts.Port)
	sender, err := NewMulticastSender(group, a.opts.TTL)
	if err != nil {
		return err
	}

	a.sender = sender
	a.ticker = time.NewTicker(a.opts.Interval)
	a.doneChan = make(chan struct{})

	ticker, doneChan := a.ticker, a.doneChan
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		discoveryLog.Infof("advertising %s on %s every %s", a.payload, group, a.opts.Interval)
		a.send(sender)
		for {
			select {
			case <-ticker.C:
				a.send(sender)
			case <-doneChan:
				return
			}
		}
	}()
	return nil
}

func (a *Advertiser) send(sender *MulticastSender) {
	err := sender.Send(a.payload)
	if err != nil {
		discoveryLog.Warnf("error sending beacon: %v", err)
	} else {
		discoveryLog.Debugf("beacon sent (%d bytes)", len(a.payload))
	}
	if a.opts.OnSend != nil {
		a.opts.OnSend(err)
	}
}

// Stop halts advertising and closes the socket. It is safe to call on an
// advertiser that was never started and more than once.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	if a.ticker == nil {
		a.mu.Unlock()
		return nil
	}
	close(a.doneChan)
	a.ticker.Stop()
	a.ticker = nil
	sender := a.sender
	a.sender = nil
	a.mu.Unlock()

	a.wg.Wait()
	discoveryLog.Infof("advertising stopped")
	return sender.Close()
}

// Running reports whether the advertiser is between Start and Stop.
func (a *Advertiser) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ticker != nil
}

// Close implements io.Closer.
func (a *Advertiser) Close() error { return a.Stop() }
