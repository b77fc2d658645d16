// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"time"

	"github.com/btcsuite/btcd/wire"
)

// headerSyncManager drives single-peer header-chain synchronization, per
// spec §4.4: one sync peer at a time, locator-based getheaders requests, a
// stall timeout that switches peers, and header-chain re-org event emission.
type headerSyncManager struct {
	cfg   *Config
	out   *outputSink
	chain *HeaderChain

	heights map[PeerID]int32

	syncPeer      *PeerID
	lastRequestAt time.Time
}

func newHeaderSyncManager(cfg *Config, out *outputSink, chain *HeaderChain) *headerSyncManager {
	return &headerSyncManager{
		cfg: cfg, out: out, chain: chain,
		heights: make(map[PeerID]int32),
	}
}

// peerNegotiated records a newly negotiated peer's advertised height as a
// sync candidate, starting a sync if none is currently underway.
func (m *headerSyncManager) peerNegotiated(id PeerID, height int32, now time.Time) {
	m.heights[id] = height
	if m.syncPeer == nil {
		m.startSyncWith(id, now)
	}
}

// peerDisconnected drops a candidate, switching sync peers if it was ours.
func (m *headerSyncManager) peerDisconnected(id PeerID, now time.Time) {
	delete(m.heights, id)
	if m.syncPeer != nil && *m.syncPeer == id {
		m.syncPeer = nil
		m.trySelectSyncPeer(now)
	}
}

// trySelectSyncPeer picks the best remaining candidate (highest advertised
// height) and starts syncing from it, if any remain and none is active.
func (m *headerSyncManager) trySelectSyncPeer(now time.Time) {
	if m.syncPeer != nil || len(m.heights) == 0 {
		return
	}
	var best PeerID
	var bestHeight int32 = -1
	for id, h := range m.heights {
		if h > bestHeight {
			best, bestHeight = id, h
		}
	}
	m.startSyncWith(best, now)
}

func (m *headerSyncManager) startSyncWith(id PeerID, now time.Time) {
	id2 := id
	m.syncPeer = &id2
	m.requestMore(id, now)
}

func (m *headerSyncManager) requestMore(id PeerID, now time.Time) {
	locator := m.chain.Locator()
	msg := wire.NewMsgGetHeaders()
	for i := range locator {
		_ = msg.AddBlockLocatorHash(&locator[i])
	}
	m.out.write(id, encodeOrPanic(msg, m.cfg))
	m.lastRequestAt = now
	m.out.wakeup(m.cfg.HeaderSyncTimeout)
}

// checkTimeout disconnects the current sync peer if it has not answered our
// getheaders request within HeaderSyncTimeout, freeing the next candidate to
// take over on the resulting peerDisconnected callback.
func (m *headerSyncManager) checkTimeout(now time.Time) {
	if m.syncPeer == nil || m.lastRequestAt.IsZero() {
		return
	}
	if now.Sub(m.lastRequestAt) >= m.cfg.HeaderSyncTimeout {
		m.out.disconnect(*m.syncPeer, Protocol(PeerTimeout("header sync")))
	}
}

// onHeaders processes a headers message from id, inserting every header into
// the chain in order, emitting BlockDisconnected/BlockConnected events for
// any resulting re-org, and requesting the next batch if this one was full.
// A header that fails consensus validation is treated as peer misbehavior.
// Every ReorgInfo produced along the way is returned so the dispatcher can
// also notify the filter-sync and inventory managers.
func (m *headerSyncManager) onHeaders(id PeerID, msg *wire.MsgHeaders, now time.Time) []*ReorgInfo {
	if m.syncPeer == nil || *m.syncPeer != id {
		return nil
	}
	m.lastRequestAt = now

	var reorgs []*ReorgInfo
	for _, header := range msg.Headers {
		info, err := m.chain.Insert(*header, now)
		if err != nil {
			m.out.disconnect(id, Protocol(ConsensusErrorReason(err.Error())))
			return reorgs
		}
		if info == nil {
			continue
		}
		for _, n := range info.Disconnect {
			m.out.event(EventBlockDisconnected(n.header, n.hash, n.height))
		}
		for _, n := range info.Connect {
			m.out.event(EventBlockConnected(n.header, n.hash, n.height))
		}
		reorgs = append(reorgs, info)
	}

	if len(msg.Headers) >= m.cfg.MaxHeadersPerMsg {
		m.requestMore(id, now)
		return reorgs
	}

	// The sync peer answered and has nothing more; no request is outstanding.
	m.lastRequestAt = time.Time{}
	_, tip := m.chain.Tip()
	m.out.event(EventSynced(tip, tip))
	return reorgs
}
