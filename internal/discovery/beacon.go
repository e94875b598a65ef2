// SPDX-License-Identifier: MIT
//
// Package discovery advertises the device on a multicast group and lets
// clients find it without configuration. The server sends a small JSON
// beacon every few seconds; clients listen on the group and connect to the
// address in the first valid beacon.
package discovery

import (
	"bbbtune/internal/errs"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultGroup    = "239.255.255.250"
	DefaultPort     = 49154
	DefaultTTL      = 2
	DefaultInterval = 5000 * time.Millisecond

	// BeaconType identifies beacons sent by a bbbtune server.
	BeaconType = "bbb_server"

	maxDatagram = 2048
)

// Beacon is the advertisement payload.
type Beacon struct {
	Type string `json:"type"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// NewBeacon returns a server beacon for ip:port.
func NewBeacon(ip string, port int) Beacon {
	return Beacon{Type: BeaconType, IP: ip, Port: port}
}

// Validate checks the type tag, that IP is a dotted IPv4 address and that
// the port is usable.
func (b Beacon) Validate() error {
	if b.Type != BeaconType {
		return fmt.Errorf("beacon: unexpected type %q: %w", b.Type, errs.ErrInvalidArgument)
	}
	if ip := net.ParseIP(b.IP); ip == nil || ip.To4() == nil {
		return fmt.Errorf("beacon: %q is not an IPv4 address: %w", b.IP, errs.ErrInvalidArgument)
	}
	if b.Port <= 0 || b.Port > 65535 {
		return fmt.Errorf("beacon: port %d out of range: %w", b.Port, errs.ErrInvalidArgument)
	}
	return nil
}

// Address is the host:port the client should connect to.
func (b Beacon) Address() string {
	return net.JoinHostPort(b.IP, strconv.Itoa(b.Port))
}

// Encode returns the wire form.
func (b Beacon) Encode() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(b)
}

// ParseBeacon decodes and validates a received datagram.
func ParseBeacon(payload []byte) (Beacon, error) {
	var b Beacon
	if err := json.Unmarshal(payload, &b); err != nil {
		return Beacon{}, fmt.Errorf("beacon: %w: %w", errs.ErrInvalidArgument, err)
	}
	if err := b.Validate(); err != nil {
		return Beacon{}, err
	}
	return b, nil
}

// LocalIPv4 returns the first non-loopback IPv4 address of an interface
// that is up.
func LocalIPv4() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w: %w", errs.ErrSocket, err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no non-loopback IPv4 address found: %w", errs.ErrSocket)
}

func groupAddr(group string, port int) (*net.UDPAddr, error) {
	ip := net.ParseIP(group)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("%q is not an IPv4 multicast group: %w", group, errs.ErrInvalidArgument)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("multicast port %d out of range: %w", port, errs.ErrInvalidArgument)
	}
	return &net.UDPAddr{IP: ip.To4(), Port: port}, nil
}
