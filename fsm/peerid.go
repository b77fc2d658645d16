// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"fmt"
	"net"
)

// PeerID is an opaque, comparable handle on a remote peer. It is cheap to
// copy, safe to use as a map key, and totally ordered so address-book and
// peer-manager collections can keep deterministic iteration order in tests.
type PeerID struct {
	ip   [16]byte
	port uint16
}

// NewPeerID builds a PeerID from a TCP endpoint.
func NewPeerID(addr *net.TCPAddr) PeerID {
	var id PeerID
	ip := addr.IP.To16()
	copy(id.ip[:], ip)
	id.port = uint16(addr.Port)
	return id
}

// ParsePeerID parses a "host:port" string into a PeerID.
func ParsePeerID(hostport string) (PeerID, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return PeerID{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return PeerID{}, fmt.Errorf("fsm: invalid IP %q", host)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return PeerID{}, fmt.Errorf("fsm: invalid port %q", portStr)
	}
	return NewPeerID(&net.TCPAddr{IP: ip, Port: port}), nil
}

// ToTCPAddr converts the PeerID back into a network endpoint.
func (p PeerID) ToTCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.IP(p.ip[:]), Port: int(p.port)}
}

// String implements fmt.Stringer.
func (p PeerID) String() string {
	return p.ToTCPAddr().String()
}

// Less provides a total order over PeerIDs, used to keep deterministic
// iteration when a collection must be walked in a stable order (e.g. nonce
// tie-breaks, test fixtures).
func (p PeerID) Less(other PeerID) bool {
	for i := range p.ip {
		if p.ip[i] != other.ip[i] {
			return p.ip[i] < other.ip[i]
		}
	}
	return p.port < other.port
}

// ConnDirection is the direction a connection was established in.
type ConnDirection uint8

const (
	// Inbound means the remote peer connected to us.
	Inbound ConnDirection = iota
	// Outbound means we dialed the remote peer.
	Outbound
)

func (d ConnDirection) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// IsOutbound reports whether the direction is Outbound.
func (d ConnDirection) IsOutbound() bool { return d == Outbound }

// IsInbound reports whether the direction is Inbound.
func (d ConnDirection) IsInbound() bool { return d == Inbound }
