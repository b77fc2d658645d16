// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package reactor

import (
	"net"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
)

// Config bundles the reactor's tunables and network dependencies.
type Config struct {
	// NumTargetOutbound is how many outbound connections the reactor
	// tries to maintain.
	NumTargetOutbound int

	// Bootstrap is the initial pool of candidate addresses to dial,
	// e.g. parsed from --connect or a DNS seed lookup performed by the
	// caller.
	Bootstrap []*net.TCPAddr

	// Dial establishes a connection to a peer. The default is
	// net.Dialer.Dial; SOCKS5Dialer returns a replacement that routes
	// through Tor.
	Dial func(network, addr string) (net.Conn, error)

	// ListenAddr, if non-empty, accepts inbound connections on this
	// address in addition to dialing outbound ones.
	ListenAddr string

	// RefreshPeersTicker drives the periodic check for whether more
	// outbound connections should be attempted.
	RefreshPeersTicker ticker.Ticker

	// ConnectTimeout bounds a single dial attempt.
	ConnectTimeout time.Duration

	// ReadBufferSize is the chunk size used for conn.Read.
	ReadBufferSize int
}

// DefaultConfig returns sensible defaults; callers must still set Dial (or
// call DefaultConfig().WithPlainDialer()) and Bootstrap/ListenAddr.
func DefaultConfig() Config {
	return Config{
		NumTargetOutbound: 8,
		ConnectTimeout:    10 * time.Second,
		ReadBufferSize:    16 * 1024,
		RefreshPeersTicker: ticker.New(30 * time.Second),
	}
}

// WithPlainDialer sets Dial to a plain net.Dialer respecting ConnectTimeout.
func (c Config) WithPlainDialer() Config {
	d := net.Dialer{Timeout: c.ConnectTimeout}
	c.Dial = d.Dial
	return c
}
