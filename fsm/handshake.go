// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"net"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// localPlaceholderIP stands in for addresses in the version message's
// legacy addrMe/addrYou fields, which modern nodes ignore.
func localPlaceholderIP() net.IP {
	return net.IPv4zero
}

// peerState is the handshake state of one connection, per spec §3/§4.2:
// Connecting -> AwaitingVersion -> AwaitingVerack -> Negotiated -> Disconnecting.
type peerState uint8

const (
	stateConnecting peerState = iota
	stateAwaitingVersion
	stateAwaitingVerack
	stateNegotiated
	stateDisconnecting
)

// peer is the peer manager's per-connection record.
type peer struct {
	id            PeerID
	link          ConnDirection
	state         peerState
	substateSince time.Time
	lastActive    time.Time

	ourNonce   uint64
	sentVerack bool

	services  wire.ServiceFlag
	height    int32
	userAgent string
	version   uint32
	relay     bool
}

// NegotiatedInfo summarizes a peer that has reached Negotiated. The
// sub-managers are not handed this type; they receive the peer's fields
// directly from the dispatcher.
type NegotiatedInfo struct {
	ID        PeerID
	Link      ConnDirection
	Services  wire.ServiceFlag
	Height    int32
	UserAgent string
	Version   uint32
}

// handshakeManager owns peer connection lifecycle and version/verack
// negotiation, per spec §4.2.
type handshakeManager struct {
	cfg   *Config
	out   *outputSink
	peers map[PeerID]*peer

	// recentNonces remembers our own recent outgoing version nonces so a
	// reflected nonce can be recognized as a self-connection.
	recentNonces []uint64

	negotiatedOutbound int
}

const maxRecentNonces = 64

func newHandshakeManager(cfg *Config, out *outputSink) *handshakeManager {
	return &handshakeManager{
		cfg:   cfg,
		out:   out,
		peers: make(map[PeerID]*peer),
	}
}

// connected handles the connected() FSM callback: creates the peer record
// and, for outbound links, sends our version immediately.
func (h *handshakeManager) connected(id PeerID, link ConnDirection, now time.Time) {
	p := &peer{id: id, link: link, state: stateAwaitingVersion, substateSince: now, lastActive: now}
	h.peers[id] = p

	h.out.event(EventPeerConnected(id, link))

	if link == Outbound {
		nonce, err := wire.RandomUint64()
		if err != nil {
			nonce = uint64(now.UnixNano())
		}
		p.ourNonce = nonce
		h.rememberNonce(nonce)
		h.out.write(id, h.encodeVersion(nonce, now))
	}
}

// disconnected drops the peer record.
func (h *handshakeManager) disconnected(id PeerID) {
	p, ok := h.peers[id]
	if ok && p.state == stateNegotiated && p.link == Outbound {
		h.negotiatedOutbound--
	}
	delete(h.peers, id)
}

// isNegotiated reports whether id has completed the handshake.
func (h *handshakeManager) isNegotiated(id PeerID) bool {
	p, ok := h.peers[id]
	return ok && p.state == stateNegotiated
}

// peerInfo returns the current peer record, if any.
func (h *handshakeManager) peerInfo(id PeerID) (*peer, bool) {
	p, ok := h.peers[id]
	return p, ok
}

// negotiatedOutboundCount reports how many outbound peers are Negotiated.
func (h *handshakeManager) negotiatedOutboundCount() int { return h.negotiatedOutbound }

// onVersion processes a received version message.
func (h *handshakeManager) onVersion(id PeerID, v *wire.MsgVersion, now time.Time) {
	p, ok := h.peers[id]
	if !ok {
		return
	}
	if p.state != stateAwaitingVersion {
		h.out.disconnect(id, Protocol(ProtocolErrorReason("unexpected version message")))
		return
	}

	if h.isOurNonce(v.Nonce) {
		h.out.disconnect(id, Protocol(SelfConnection()))
		return
	}

	if uint32(v.ProtocolVersion) < h.cfg.MinPeerProtocolVersion {
		h.out.disconnect(id, Protocol(ProtocolErrorReason("protocol version too old")))
		return
	}

	delta := v.Timestamp.Sub(now)
	if delta > h.cfg.TimestampTolerance || delta < -h.cfg.TimestampTolerance {
		h.out.disconnect(id, Protocol(ProtocolErrorReason("version timestamp out of tolerance")))
		return
	}

	if p.link == Outbound && v.Services&h.cfg.RequiredServices != h.cfg.RequiredServices {
		h.out.disconnect(id, Protocol(ProtocolErrorReason("missing required service flags")))
		return
	}

	p.services = v.Services
	p.height = v.LastBlock
	p.userAgent = v.UserAgent
	p.version = minUint32(h.cfg.ProtocolVersion, uint32(v.ProtocolVersion))
	p.relay = !v.DisableRelayTx

	if p.link == Inbound {
		nonce, err := wire.RandomUint64()
		if err != nil {
			nonce = uint64(now.UnixNano())
		}
		p.ourNonce = nonce
		h.rememberNonce(nonce)
		h.out.write(id, h.encodeVersion(nonce, now))
	}

	h.out.write(id, encodeOrPanic(wire.NewMsgVerAck(), h.cfg))
	p.state = stateAwaitingVerack
	p.substateSince = now
}

// onVerack processes a received verack message.
func (h *handshakeManager) onVerack(id PeerID, now time.Time) {
	p, ok := h.peers[id]
	if !ok {
		return
	}

	switch p.state {
	case stateAwaitingVersion:
		// BIP-0060 ordering requires version before verack; per spec's
		// open question, an early verack is a protocol error.
		h.out.disconnect(id, Protocol(ProtocolErrorReason("verack received before version")))
		return
	case stateNegotiated:
		return // redundant verack, ignore
	case stateAwaitingVerack:
		// fall through to negotiate below
	default:
		return
	}

	if p.link == Outbound && h.negotiatedOutbound >= h.cfg.MaxOutboundPeers {
		h.out.disconnect(id, Protocol(PeerMisbehaving(0)))
		return
	}

	p.state = stateNegotiated
	p.lastActive = now
	if p.link == Outbound {
		h.negotiatedOutbound++
	}

	h.out.event(EventPeerNegotiated(id, p.link, p.services, uint32(maxInt32(p.height, 0)), p.userAgent, p.version))
}

// checkTimeouts disconnects peers that have spent too long in a
// pre-Negotiated substate.
func (h *handshakeManager) checkTimeouts(now time.Time) {
	for id, p := range h.peers {
		if p.state == stateNegotiated || p.state == stateDisconnecting {
			continue
		}
		if now.Sub(p.substateSince) >= h.cfg.HandshakeTimeout {
			h.out.disconnect(id, Protocol(PeerTimeout("handshake")))
		}
	}
}

func (h *handshakeManager) rememberNonce(nonce uint64) {
	h.recentNonces = append(h.recentNonces, nonce)
	if len(h.recentNonces) > maxRecentNonces {
		h.recentNonces = h.recentNonces[len(h.recentNonces)-maxRecentNonces:]
	}
}

func (h *handshakeManager) isOurNonce(nonce uint64) bool {
	for _, n := range h.recentNonces {
		if n == nonce {
			return true
		}
	}
	return false
}

func (h *handshakeManager) encodeVersion(nonce uint64, now time.Time) []byte {
	me := wire.NewNetAddressIPPort(localPlaceholderIP(), 0, h.cfg.RequiredServices)
	you := wire.NewNetAddressIPPort(localPlaceholderIP(), 0, 0)

	msg := wire.NewMsgVersion(me, you, nonce, 0)
	msg.UserAgent = h.cfg.UserAgent
	msg.ProtocolVersion = int32(h.cfg.ProtocolVersion)
	msg.Services = h.cfg.RequiredServices
	msg.Timestamp = now
	msg.DisableRelayTx = false

	return encodeOrPanic(msg, h.cfg)
}

func encodeOrPanic(msg wire.Message, cfg *Config) []byte {
	b, err := encodeMessage(msg, cfg.ProtocolVersion, cfg.ChainParams.Net)
	if err != nil {
		panic(err) // programmer error: one of our own well-formed messages failed to encode
	}
	return b
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
