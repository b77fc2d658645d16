// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Liveness detection and response to peer pings, per spec §4.6.
// Ported from the reference implementation's pingmgr (BIP 0031).
package fsm

import (
	"time"

	"github.com/btcsuite/btcd/wire"
)

type pingState uint8

const (
	pingIdle pingState = iota
	pingAwaitingPong
)

type pingPeer struct {
	state     pingState
	nonce     uint64
	since     time.Time
	latencies []time.Duration // bounded ring, most recent first
}

// pingManager detects dead peer connections and answers peer pings.
type pingManager struct {
	cfg   *Config
	out   *outputSink
	peers map[PeerID]*pingPeer
}

func newPingManager(cfg *Config, out *outputSink) *pingManager {
	return &pingManager{cfg: cfg, out: out, peers: make(map[PeerID]*pingPeer)}
}

// peerNegotiated starts liveness tracking for a newly negotiated peer by
// sending an immediate ping.
func (m *pingManager) peerNegotiated(id PeerID, now time.Time) {
	nonce, err := wire.RandomUint64()
	if err != nil {
		nonce = uint64(now.UnixNano())
	}
	m.out.write(id, encodeOrPanic(wire.NewMsgPing(nonce), m.cfg))
	m.peers[id] = &pingPeer{state: pingAwaitingPong, nonce: nonce, since: now}
}

// peerDisconnected drops liveness tracking for id.
func (m *pingManager) peerDisconnected(id PeerID) {
	delete(m.peers, id)
}

// receivedWake re-evaluates every tracked peer's ping deadline, sending new
// pings or disconnecting ones that timed out.
func (m *pingManager) receivedWake(now time.Time) {
	for id, p := range m.peers {
		switch p.state {
		case pingAwaitingPong:
			if now.Sub(p.since) >= m.cfg.PingTimeout {
				m.out.disconnect(id, Protocol(PeerTimeout("ping")))
			}
		case pingIdle:
			if now.Sub(p.since) >= m.cfg.PingInterval {
				nonce, err := wire.RandomUint64()
				if err != nil {
					nonce = uint64(now.UnixNano())
				}
				m.out.write(id, encodeOrPanic(wire.NewMsgPing(nonce), m.cfg))
				m.out.wakeup(m.cfg.PingTimeout)
				m.out.wakeup(m.cfg.PingInterval)
				p.state = pingAwaitingPong
				p.nonce = nonce
				p.since = now
			}
		}
	}
}

// receivedPing answers an incoming ping from a known peer with a matching
// pong.
func (m *pingManager) receivedPing(id PeerID, nonce uint64) {
	if _, ok := m.peers[id]; !ok {
		return
	}
	m.out.write(id, encodeOrPanic(wire.NewMsgPong(nonce), m.cfg))
}

// receivedPong records a matching pong's RTT sample and returns to Idle.
// A pong with a mismatched or unsolicited nonce is a no-op.
func (m *pingManager) receivedPong(id PeerID, nonce uint64, now time.Time) {
	p, ok := m.peers[id]
	if !ok || p.state != pingAwaitingPong {
		return
	}
	if nonce != p.nonce {
		return
	}

	sample := now.Sub(p.since)
	p.latencies = append([]time.Duration{sample}, p.latencies...)
	if len(p.latencies) > m.cfg.MaxPingLatencySamples {
		p.latencies = p.latencies[:m.cfg.MaxPingLatencySamples]
	}
	p.state = pingIdle
	p.since = now
}

// averageLatency returns the mean of recorded RTT samples for id.
func (m *pingManager) averageLatency(id PeerID) (time.Duration, bool) {
	p, ok := m.peers[id]
	if !ok || len(p.latencies) == 0 {
		return 0, false
	}
	var sum time.Duration
	for _, d := range p.latencies {
		sum += d
	}
	return sum / time.Duration(len(p.latencies)), true
}
