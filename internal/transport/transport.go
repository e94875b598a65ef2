// SPDX-License-Identifier: MIT
package transport

// Transport fans an event out to every connected peer.
// Implementations should be thread-safe.
type Transport interface {
	Send(ev Event) error
	Close() error
}

// EventChannel is one bidirectional event connection to a peer. Events
// arrive in the order the peer sent them; the channel returned by Events is
// closed when the connection ends, after which Err explains why.
type EventChannel interface {
	Send(ev Event) error
	Events() <-chan Event
	Err() error
	Close() error
}
