// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
)

// Config bundles every tunable named in the spec. NewFSM uses the values as
// given and does not fill in zero-value fields; start from DefaultConfig to
// get the defaults.
type Config struct {
	// ChainParams selects the network (magic bytes, genesis, retarget
	// rules): chaincfg.MainNetParams, TestNet3Params, SigNetParams or
	// RegressionNetParams.
	ChainParams *chaincfg.Params

	// ProtocolVersion is advertised in our outgoing version message.
	ProtocolVersion uint32
	// MinPeerProtocolVersion is the lowest remote protocol_version we'll
	// negotiate with.
	MinPeerProtocolVersion uint32
	// UserAgent is sent in our version message.
	UserAgent string

	// RequiredServices are the service bits a candidate outbound filter
	// peer must advertise.
	RequiredServices wire.ServiceFlag

	// MaxOutboundPeers bounds simultaneous outbound connections.
	MaxOutboundPeers int
	// MaxInboundPeers bounds simultaneous inbound connections.
	MaxInboundPeers int

	// MaxMessagePayload caps a single wire message's payload length.
	MaxMessagePayload uint32

	// HandshakeTimeout bounds how long a peer may spend in any single
	// handshake substate.
	HandshakeTimeout time.Duration
	// TimestampTolerance bounds how far a peer's version timestamp may
	// drift from local time and still be accepted.
	TimestampTolerance time.Duration

	// HeaderSyncTimeout bounds how long we wait for a headers response
	// before switching sync peers.
	HeaderSyncTimeout time.Duration
	// MaxHeadersPerMsg is the protocol-level cap on a headers response.
	MaxHeadersPerMsg int

	// CFHeaderStride is the height-range width requested per getcfheaders.
	CFHeaderStride uint32
	// MaxInFlightCFHeaders bounds concurrent cfheaders requests.
	MaxInFlightCFHeaders int
	// FilterHeaderTimeout, FilterTimeout and BlockTimeout bound their
	// respective requests before retrying on an alternate peer.
	FilterHeaderTimeout time.Duration
	FilterTimeout       time.Duration
	BlockTimeout        time.Duration
	// MaxPeerStrikes is how many timeouts/invalid responses a peer may
	// accrue in filter sync before being disconnected.
	MaxPeerStrikes int

	// PingInterval and PingTimeout drive the liveness manager.
	PingInterval time.Duration
	PingTimeout  time.Duration
	// MaxPingLatencySamples bounds the per-peer RTT ring buffer.
	MaxPingLatencySamples int

	// RebroadcastInterval is how often unconfirmed transactions are
	// re-announced to peers that haven't yet been asked.
	RebroadcastInterval time.Duration

	// CommandQueueCapacity is not read by the FSM or the reactor; the
	// reactor's command channel has a fixed capacity of 1024.
	CommandQueueCapacity int

	// Clock provides local and adjusted time; tests inject
	// clock.NewTestClock so timeouts are deterministic.
	Clock clock.Clock
}

// DefaultConfig returns a Config with every spec-mandated default filled in,
// for chaincfg.MainNetParams.
func DefaultConfig() Config {
	return Config{
		ChainParams:            &chaincfg.MainNetParams,
		ProtocolVersion:        wire.ProtocolVersion,
		MinPeerProtocolVersion: 70012,
		UserAgent:              "/spvd:0.1.0/",
		RequiredServices:       wire.SFNodeNetwork | wire.SFNodeCF,
		MaxOutboundPeers:       8,
		MaxInboundPeers:        0,
		MaxMessagePayload:      32 * 1024 * 1024,
		HandshakeTimeout:       6 * time.Second,
		TimestampTolerance:     90 * time.Minute,
		HeaderSyncTimeout:      30 * time.Second,
		MaxHeadersPerMsg:       2000,
		CFHeaderStride:         2000,
		MaxInFlightCFHeaders:   8,
		FilterHeaderTimeout:    30 * time.Second,
		FilterTimeout:          30 * time.Second,
		BlockTimeout:           30 * time.Second,
		MaxPeerStrikes:         3,
		PingInterval:           2 * time.Minute,
		PingTimeout:            30 * time.Second,
		MaxPingLatencySamples:  64,
		RebroadcastInterval:    60 * time.Second,
		CommandQueueCapacity:   1024,
		Clock:                  clock.NewDefaultClock(),
	}
}
