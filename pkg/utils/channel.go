// SPDX-License-Identifier: MIT
package utils

import (
	"bbbtune/internal/errs"
	"bbbtune/internal/transport"
	"fmt"
	"slices"
	"sync"
)

// FakeChannel is an in-memory transport.EventChannel. Tests push inbound
// events with Deliver, end the connection with Fail and inspect what the
// code under test sent with Sent.
type FakeChannel struct {
	mu     sync.Mutex
	events chan transport.Event
	sent   []transport.Event
	err    error
	closed bool
}

var _ transport.EventChannel = (*FakeChannel)(nil)

// NewFakeChannel returns an open channel buffering up to buffer inbound
// events.
func NewFakeChannel(buffer int) *FakeChannel {
	return &FakeChannel{events: make(chan transport.Event, buffer)}
}

func (f *FakeChannel) Send(ev transport.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("fake channel closed: %w", errs.ErrChannel)
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *FakeChannel) Events() <-chan transport.Event { return f.events }

func (f *FakeChannel) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *FakeChannel) Close() error {
	f.Fail(nil)
	return nil
}

// Deliver queues ev as if the peer had sent it. It reports false when the
// channel is closed or the buffer is full.
func (f *FakeChannel) Deliver(ev transport.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.events <- ev:
		return true
	default:
		return false
	}
}

// Fail ends the connection with err, as if the peer went away.
func (f *FakeChannel) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.err = err
	close(f.events)
}

// Sent returns a copy of every event sent so far.
func (f *FakeChannel) Sent() []transport.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

func (f *FakeChannel) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
