// SPDX-License-Identifier: MIT
package discovery

import (
	"bbbtune/internal/errs"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
)

// Callback receives every datagram that arrives on the group. payload is
// owned by the callee.
type Callback func(payload []byte, from *net.UDPAddr)

// Listener receives datagrams sent to a multicast group. It can be started
// and stopped repeatedly, which is how the client suspends discovery while
// it is connected.
type Listener struct {
	group *net.UDPAddr

	mu      sync.Mutex
	conn    *net.UDPConn
	running bool
	wg      sync.WaitGroup
}

// NewListener prepares a listener for group:port.
func NewListener(group string, port int) (*Listener, error) {
	addr, err := groupAddr(group, port)
	if err != nil {
		return nil, err
	}
	return &Listener{group: addr}, nil
}

// StartListening binds the group port, joins the group and delivers every
// datagram to cb on the listener's goroutine. A second call while running
// logs a warning and returns nil.
func (l *Listener) StartListening(cb Callback) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		discoveryLog.Warnf("listener already running on %s", l.group)
		return nil
	}

	lc := net.ListenConfig{Control: reuseControl}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", l.group.Port))
	if err != nil {
		return fmt.Errorf("listen on %s: %w: %w", l.group, errs.ErrSocket, err)
	}
	conn := pconn.(*net.UDPConn)
	joinGroup(ipv4.NewPacketConn(conn), l.group)

	l.conn = conn
	l.running = true
	l.wg.Add(1)
	go l.receiveLoop(conn, cb)

	discoveryLog.Infof("listening for beacons on %s", l.group)
	return nil
}

func (l *Listener) receiveLoop(conn *net.UDPConn, cb Callback) {
	defer l.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				discoveryLog.Errorf("receive error: %v", err)
			}
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		discoveryLog.Debugf("received %d bytes from %s", n, from)
		if cb != nil {
			cb(payload, from)
		}
	}
}

// StopListening closes the socket and waits for the receive goroutine. It
// is safe to call before StartListening and more than once.
func (l *Listener) StopListening() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	conn.Close()
	l.wg.Wait()
	discoveryLog.Infof("stopped listening on %s", l.group)
}

// Listening reports whether the listener is running.
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// joinGroup joins on every multicast capable interface that is up, plus
// loopback for same-host traffic. Failures are warnings.
func joinGroup(p *ipv4.PacketConn, group *net.UDPAddr) {
	ifaces, err := net.Interfaces()
	if err != nil {
		discoveryLog.Warnf("failed to list interfaces: %v", err)
		return
	}
	joined := 0
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagMulticast == 0 && iface.Flags&net.FlagLoopback == 0 {
			continue
		}
		if err := p.JoinGroup(iface, group); err != nil {
			discoveryLog.Warnf("failed to join %s on %s: %v", group.IP, iface.Name, err)
			continue
		}
		joined++
	}
	if joined == 0 {
		discoveryLog.Warnf("could not join %s on any interface", group.IP)
	}
}
