// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// cfHeaderWindow is one outstanding getcfheaders request.
type cfHeaderWindow struct {
	peer        PeerID
	startHeight uint32
	stopHeight  uint32
	stopHash    chainhash.Hash
	sentAt      time.Time
}

// cfilterRequest is the single outstanding getcfilters request.
type cfilterRequest struct {
	peer      PeerID
	height    uint32
	blockHash chainhash.Hash
	sentAt    time.Time
}

// blockWait tracks a getdata(block) issued after a filter match, awaiting
// the full block to scan against the watchlist.
type blockWait struct {
	height uint32
	peer   PeerID
	sentAt time.Time
}

// filterSyncManager drives BIP-157/158 filter-header and filter
// synchronization once headers are caught up, per spec §4.5.
type filterSyncManager struct {
	cfg       *Config
	out       *outputSink
	chain     *HeaderChain
	filters   *FilterChain
	watchlist *Watchlist

	cfPeers map[PeerID]struct{}
	strikes map[PeerID]int

	inFlightHeaders map[chainhash.Hash]*cfHeaderWindow // keyed by stopHash
	nextHeaderStart uint32

	inFlightFilter   *cfilterRequest
	nextFilterHeight uint32

	pendingBlocks map[chainhash.Hash]blockWait
}

func newFilterSyncManager(cfg *Config, out *outputSink, chain *HeaderChain, filters *FilterChain, watchlist *Watchlist) *filterSyncManager {
	return &filterSyncManager{
		cfg: cfg, out: out, chain: chain, filters: filters, watchlist: watchlist,
		cfPeers:         make(map[PeerID]struct{}),
		strikes:         make(map[PeerID]int),
		inFlightHeaders: make(map[chainhash.Hash]*cfHeaderWindow),
		pendingBlocks:   make(map[chainhash.Hash]blockWait),
	}
}

// peerNegotiated registers a CF-capable peer as a sync candidate.
func (m *filterSyncManager) peerNegotiated(id PeerID, services wire.ServiceFlag, now time.Time) {
	if services&wire.SFNodeCF == 0 {
		return
	}
	m.cfPeers[id] = struct{}{}
	m.fillHeaderWindows(now)
	m.maybeRequestFilter(now)
}

// peerDisconnected drops a candidate and reissues any work it held.
func (m *filterSyncManager) peerDisconnected(id PeerID, now time.Time) {
	delete(m.cfPeers, id)
	delete(m.strikes, id)

	for stopHash, w := range m.inFlightHeaders {
		if w.peer == id {
			delete(m.inFlightHeaders, stopHash)
			m.requestHeaderWindow(w.startHeight, w.stopHeight, now)
		}
	}
	if m.inFlightFilter != nil && m.inFlightFilter.peer == id {
		height := m.inFlightFilter.height
		m.inFlightFilter = nil
		m.requestFilterAt(height, now)
	}
	for hash, w := range m.pendingBlocks {
		if w.peer == id {
			delete(m.pendingBlocks, hash)
			m.requestBlock(w.height, hash, now)
		}
	}
}

// chainTipAdvanced opens new header windows as the active chain grows.
func (m *filterSyncManager) chainTipAdvanced(now time.Time) {
	m.fillHeaderWindows(now)
}

// rescanFrom rewinds the filter-download cursor to height, so a Rescan
// command re-tests filters from there against the (now larger) watchlist.
// It does not rewind the filter-header cursor: filter headers are a
// consensus-chained structure independent of the watchlist and are only
// ever re-derived on an actual header re-org.
func (m *filterSyncManager) rescanFrom(height uint32, now time.Time) {
	if height < m.nextFilterHeight {
		m.nextFilterHeight = height
	}
	m.maybeRequestFilter(now)
}

func (m *filterSyncManager) availablePeer(busy func(PeerID) bool) (PeerID, bool) {
	for id := range m.cfPeers {
		if !busy(id) {
			return id, true
		}
	}
	return PeerID{}, false
}

func (m *filterSyncManager) fillHeaderWindows(now time.Time) {
	_, tipHeight := m.chain.Tip()
	for uint32(len(m.inFlightHeaders)) < uint32(m.cfg.MaxInFlightCFHeaders) {
		if m.nextHeaderStart > tipHeight {
			return
		}
		stop := m.nextHeaderStart + m.cfg.CFHeaderStride - 1
		if stop > tipHeight {
			stop = tipHeight
		}
		if !m.requestHeaderWindow(m.nextHeaderStart, stop, now) {
			return
		}
		m.nextHeaderStart = stop + 1
	}
}

func (m *filterSyncManager) requestHeaderWindow(start, stop uint32, now time.Time) bool {
	stopHash, ok := m.chain.HashAt(stop)
	if !ok {
		return false
	}
	id, ok := m.availablePeer(func(p PeerID) bool {
		for _, w := range m.inFlightHeaders {
			if w.peer == p {
				return true
			}
		}
		return false
	})
	if !ok {
		return false
	}

	msg := wire.NewMsgGetCFHeaders(wire.GCSFilterRegular, start, &stopHash)
	m.out.write(id, encodeOrPanic(msg, m.cfg))
	m.inFlightHeaders[stopHash] = &cfHeaderWindow{peer: id, startHeight: start, stopHeight: stop, stopHash: stopHash, sentAt: now}
	m.out.wakeup(m.cfg.FilterHeaderTimeout)
	return true
}

// onCFHeaders validates and chains a cfheaders response, storing derived
// filter headers and flagging divergence against any already-verified
// header at the same height.
func (m *filterSyncManager) onCFHeaders(id PeerID, msg *wire.MsgCFHeaders, now time.Time) {
	window, ok := m.inFlightHeaders[msg.StopHash]
	if !ok || window.peer != id {
		return
	}
	delete(m.inFlightHeaders, msg.StopHash)

	expected := int(window.stopHeight-window.startHeight) + 1
	if len(msg.FilterHashes) != expected {
		m.strike(id, now)
		m.requestHeaderWindow(window.startHeight, window.stopHeight, now)
		return
	}

	running := msg.PrevFilterHeader
	for i, fh := range msg.FilterHashes {
		height := window.startHeight + uint32(i)
		computed := ComputeFilterHeader(running, *fh)
		if existing, ok := m.filters.HeaderAt(height); ok && existing != computed {
			m.out.disconnect(id, Protocol(ConsensusErrorReason("conflicting filter header")))
			return
		}
		m.filters.recordHeader(height, computed)
		running = computed
	}

	m.out.event(EventFilterHeaderVerified(window.stopHeight, running))
	m.fillHeaderWindows(now)
	m.maybeRequestFilter(now)
}

func (m *filterSyncManager) maybeRequestFilter(now time.Time) {
	if m.inFlightFilter != nil {
		return
	}
	m.requestFilterAt(m.nextFilterHeight, now)
}

func (m *filterSyncManager) requestFilterAt(height uint32, now time.Time) bool {
	if height > m.filters.Tip() {
		return false
	}
	blockHash, ok := m.chain.HashAt(height)
	if !ok {
		return false
	}
	id, ok := m.availablePeer(func(p PeerID) bool {
		return m.inFlightFilter != nil && m.inFlightFilter.peer == p
	})
	if !ok {
		return false
	}

	msg := wire.NewMsgGetCFilters(wire.GCSFilterRegular, height, &blockHash)
	m.out.write(id, encodeOrPanic(msg, m.cfg))
	m.inFlightFilter = &cfilterRequest{peer: id, height: height, blockHash: blockHash, sentAt: now}
	m.out.wakeup(m.cfg.FilterTimeout)
	return true
}

// onCFilter decodes a received filter, tests it against the watchlist, and
// either advances past it or requests the matching block.
func (m *filterSyncManager) onCFilter(id PeerID, msg *wire.MsgCFilter, now time.Time) {
	f := m.inFlightFilter
	if f == nil || f.peer != id || msg.BlockHash != f.blockHash {
		return
	}
	m.inFlightFilter = nil
	m.nextFilterHeight = f.height + 1

	filter, err := m.filters.DecodeAndCache(f.height, f.blockHash, msg.Data)
	if err != nil {
		m.strike(id, now)
		m.maybeRequestFilter(now)
		return
	}

	matched, err := Match(filter, f.blockHash, m.watchlist)
	valid := err == nil
	m.out.event(EventFilterProcessed(f.blockHash, f.height, matched, valid))

	if matched {
		m.requestBlock(f.height, f.blockHash, now)
	}
	m.maybeRequestFilter(now)
}

func (m *filterSyncManager) requestBlock(height uint32, blockHash chainhash.Hash, now time.Time) {
	id, ok := m.availablePeer(func(p PeerID) bool {
		for _, w := range m.pendingBlocks {
			if w.peer == p {
				return true
			}
		}
		return false
	})
	if !ok {
		// Every candidate is already fetching a block for us; queue by
		// remembering the height and retrying on the next checkTimeouts or
		// peerNegotiated call.
		return
	}
	getData := wire.NewMsgGetData()
	_ = getData.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, &blockHash))
	m.out.write(id, encodeOrPanic(getData, m.cfg))
	m.pendingBlocks[blockHash] = blockWait{height: height, peer: id, sentAt: now}
	m.out.wakeup(m.cfg.BlockTimeout)
}

// blockMatch is a block that satisfied an outstanding filter-match
// block-wait, handed back to the dispatcher for event emission and
// cross-manager wiring (transaction confirmation, fee estimation).
type blockMatch struct {
	Hash   chainhash.Hash
	Header wire.BlockHeader
	Height uint32
	Txs    []*wire.MsgTx
}

// onBlock matches a received block against an outstanding block-wait.
func (m *filterSyncManager) onBlock(id PeerID, msg *wire.MsgBlock) (blockMatch, bool) {
	hash := msg.BlockHash()
	w, ok := m.pendingBlocks[hash]
	if !ok || w.peer != id {
		return blockMatch{}, false
	}
	delete(m.pendingBlocks, hash)
	return blockMatch{Hash: hash, Header: msg.Header, Height: w.height, Txs: msg.Transactions}, true
}

// checkTimeouts reissues any header/filter/block request that has exceeded
// its timeout, penalizing the original peer.
func (m *filterSyncManager) checkTimeouts(now time.Time) {
	for stopHash, w := range m.inFlightHeaders {
		if now.Sub(w.sentAt) >= m.cfg.FilterHeaderTimeout {
			delete(m.inFlightHeaders, stopHash)
			m.strike(w.peer, now)
			m.requestHeaderWindow(w.startHeight, w.stopHeight, now)
		}
	}
	if f := m.inFlightFilter; f != nil && now.Sub(f.sentAt) >= m.cfg.FilterTimeout {
		m.inFlightFilter = nil
		m.strike(f.peer, now)
		m.requestFilterAt(f.height, now)
	}
	for hash, w := range m.pendingBlocks {
		if now.Sub(w.sentAt) >= m.cfg.BlockTimeout {
			delete(m.pendingBlocks, hash)
			m.strike(w.peer, now)
			m.requestBlock(w.height, hash, now)
		}
	}
}

// strike accrues a misbehavior strike against id, disconnecting it once it
// reaches MaxPeerStrikes.
func (m *filterSyncManager) strike(id PeerID, now time.Time) {
	m.strikes[id]++
	if m.strikes[id] >= m.cfg.MaxPeerStrikes {
		m.out.disconnect(id, Protocol(PeerMisbehaving(0)))
	}
}

// handleReorg invalidates filter headers and decoded filters above the fork
// point, and rewinds sync cursors to resume from the first height above it.
func (m *filterSyncManager) handleReorg(info *ReorgInfo) {
	resumeFrom := info.ForkHeight + 1
	m.filters.InvalidateFrom(resumeFrom)

	if m.nextHeaderStart > resumeFrom {
		m.nextHeaderStart = resumeFrom
	}
	if m.nextFilterHeight > resumeFrom {
		m.nextFilterHeight = resumeFrom
	}
	for stopHash, w := range m.inFlightHeaders {
		if w.stopHeight >= resumeFrom {
			delete(m.inFlightHeaders, stopHash)
		}
	}
	if f := m.inFlightFilter; f != nil && f.height >= resumeFrom {
		m.inFlightFilter = nil
	}
	for hash, w := range m.pendingBlocks {
		if w.height >= resumeFrom {
			delete(m.pendingBlocks, hash)
		}
	}
}
