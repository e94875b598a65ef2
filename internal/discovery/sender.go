// SPDX-License-Identifier: MIT
package discovery

import (
	"bbbtune/internal/errs"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
)

// MulticastSender writes datagrams to a multicast group.
type MulticastSender struct {
	conn   net.PacketConn
	pc     *ipv4.PacketConn
	group  *net.UDPAddr
	mu     sync.Mutex // Protects conn during Close
	closed bool
}

// NewMulticastSender opens an unbound UDP socket for sending to group with
// the given TTL. Loopback is enabled so listeners on the same host see the
// datagrams.
func NewMulticastSender(group *net.UDPAddr, ttl int) (*MulticastSender, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("open multicast socket: %w: %w", errs.ErrSocket, err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(ttl); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set multicast TTL %d: %w: %w", ttl, errs.ErrSocket, err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		discoveryLog.Warnf("failed to enable multicast loopback: %v", err)
	}

	discoveryLog.Debugf("multicast sender ready for %s (TTL %d)", group, ttl)
	return &MulticastSender{conn: conn, pc: pc, group: group}, nil
}

// Send transmits data as one datagram.
func (s *MulticastSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("multicast sender is closed: %w", errs.ErrSocket)
	}
	if _, err := s.pc.WriteTo(data, nil, s.group); err != nil {
		return fmt.Errorf("send to %s: %w: %w", s.group, errs.ErrSocket, err)
	}
	return nil
}

// Close closes the underlying socket.
func (s *MulticastSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close multicast socket: %w: %w", errs.ErrSocket, err)
	}
	return nil
}
