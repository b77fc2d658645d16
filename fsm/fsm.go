// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// FSM is the peer-to-peer finite-state machine at the heart of spvd: see the
// package doc for its I/O-free contract. Every exported method is synchronous
// and must be followed by a call to Drain to retrieve the Outputs it queued.
type FSM struct {
	cfg *Config
	out *outputSink

	addr        *addrManager
	handshake   *handshakeManager
	headerSync  *headerSyncManager
	filterSync  *filterSyncManager
	ping        *pingManager
	inventory   *inventoryManager
	feeEstimate *feeEstimatorManager
	watchlist   *Watchlist
	chain       *HeaderChain
	filters     *FilterChain

	decoders   map[PeerID]*decodeBuffer
	negotiated map[PeerID]struct{}

	started bool
}

// NewFSM constructs an FSM ready to Initialize. genesisFilterHeader is the
// network's height-0 filter header, required by BIP-157. bootstrap seeds the
// address manager with an initial set of candidate peers.
func NewFSM(cfg Config, watchlist *Watchlist, genesisFilterHeader chainhash.Hash, bootstrap []PeerID) *FSM {
	out := &outputSink{}
	chain := NewHeaderChain(cfg.ChainParams)
	filters := NewFilterChain(genesisFilterHeader)

	return &FSM{
		cfg:         &cfg,
		out:         out,
		addr:        newAddrManager(cfg.Clock, bootstrap),
		handshake:   newHandshakeManager(&cfg, out),
		headerSync:  newHeaderSyncManager(&cfg, out, chain),
		filterSync:  newFilterSyncManager(&cfg, out, chain, filters, watchlist),
		ping:        newPingManager(&cfg, out),
		inventory:   newInventoryManager(&cfg, out),
		feeEstimate: newFeeEstimatorManager(out, watchlist),
		watchlist:   watchlist,
		chain:       chain,
		filters:     filters,
		decoders:    make(map[PeerID]*decodeBuffer),
		negotiated:  make(map[PeerID]struct{}),
	}
}

// Initialize must be called once, before any other inbound method, and
// emits the initial Ready event.
func (f *FSM) Initialize() {
	f.started = true
	_, tip := f.chain.Tip()
	f.out.event(EventReady(tip, f.filters.Tip()))
}

// Attempted records a dial attempt against addr, for address-book freshness
// bookkeeping.
func (f *FSM) Attempted(addr PeerID) {
	f.addr.recordAttempt(addr, f.cfg.Clock.Now())
}

// Connected notifies the FSM that a connection to/from addr was established.
func (f *FSM) Connected(addr PeerID, link ConnDirection) {
	now := f.cfg.Clock.Now()
	f.decoders[addr] = &decodeBuffer{}
	f.addr.markConnected(addr)
	f.addr.recordSuccess(addr, now)
	f.handshake.connected(addr, link, now)
}

// Disconnected notifies the FSM that addr's connection ended, for the given
// reason, tearing down every sub-manager's state for it.
func (f *FSM) Disconnected(addr PeerID, reason DisconnectReason) {
	now := f.cfg.Clock.Now()
	delete(f.decoders, addr)
	delete(f.negotiated, addr)
	f.addr.markDisconnected(addr)
	f.handshake.disconnected(addr)
	f.ping.peerDisconnected(addr)
	f.headerSync.peerDisconnected(addr, now)
	f.filterSync.peerDisconnected(addr, now)
	f.out.event(EventPeerDisconnected(addr, reason))
}

// ReceivedBytes feeds newly read socket bytes from addr into its decode
// buffer, dispatching every complete message found. A framing or checksum
// error disconnects the peer; a message-body decode error is skipped (the
// frame is still consumed) rather than tearing down the connection, since a
// single unsupported/malformed message is not necessarily fatal to the
// session.
func (f *FSM) ReceivedBytes(addr PeerID, b []byte) {
	dec, ok := f.decoders[addr]
	if !ok {
		return
	}
	dec.append(b)

	for {
		frame, err := dec.nextFrame(f.cfg.ChainParams.Net, f.cfg.MaxMessagePayload)
		if err == errIncomplete {
			return
		}
		if err != nil {
			f.out.disconnect(addr, Protocol(DecodeError()))
			return
		}

		msg, decodeErr := dec.decode(frame, f.cfg.ProtocolVersion, f.cfg.ChainParams.Net)
		dec.advance(frame)
		if decodeErr != nil {
			continue
		}
		f.dispatch(addr, msg)
	}
}

func (f *FSM) dispatch(addr PeerID, msg wire.Message) {
	now := f.cfg.Clock.Now()

	switch m := msg.(type) {
	case *wire.MsgVersion:
		f.handshake.onVersion(addr, m, now)

	case *wire.MsgVerAck:
		wasNegotiated := f.handshake.isNegotiated(addr)
		f.handshake.onVerack(addr, now)
		if !wasNegotiated && f.handshake.isNegotiated(addr) {
			f.onPeerNegotiated(addr, now)
		}

	case *wire.MsgPing:
		f.ping.receivedPing(addr, m.Nonce)

	case *wire.MsgPong:
		f.ping.receivedPong(addr, m.Nonce, now)

	case *wire.MsgHeaders:
		reorgs := f.headerSync.onHeaders(addr, m, now)
		for _, info := range reorgs {
			f.filterSync.handleReorg(info)
			for _, n := range info.Disconnect {
				for _, txid := range f.inventory.revertedInBlock(n.hash) {
					f.out.event(EventTxStatusChanged(txid, TxReverted()))
				}
			}
		}

	case *wire.MsgCFHeaders:
		f.filterSync.onCFHeaders(addr, m, now)

	case *wire.MsgCFilter:
		f.filterSync.onCFilter(addr, m, now)

	case *wire.MsgBlock:
		if match, ok := f.filterSync.onBlock(addr, m); ok {
			f.out.event(EventBlockMatched(match.Hash, match.Header, match.Height, match.Txs))
			for _, tx := range match.Txs {
				txid := tx.TxHash()
				if status, ok := f.inventory.confirmed(txid, match.Hash, match.Height); ok {
					f.out.event(EventTxStatusChanged(txid, status))
				}
			}
			f.feeEstimate.onBlockMatched(match.Hash, match.Height, match.Txs)
		}

	case *wire.MsgGetData:
		f.inventory.receivedGetData(addr, m)

	case *wire.MsgTx, *wire.MsgAddr, *wire.MsgAddrV2, *wire.MsgGetAddr, *wire.MsgInv,
		*wire.MsgGetHeaders, *wire.MsgGetCFHeaders, *wire.MsgGetCFilters, *wire.MsgReject,
		*wire.MsgSendHeaders:
		// Accepted per the wire message set but not otherwise acted on by a
		// watch-only light client.
	}
}

// onPeerNegotiated wires a freshly negotiated peer into every sub-manager
// that tracks Negotiated peers, and emits PeerNegotiated.
func (f *FSM) onPeerNegotiated(addr PeerID, now time.Time) {
	f.negotiated[addr] = struct{}{}

	p, ok := f.handshake.peerInfo(addr)
	if !ok {
		return
	}

	f.addr.recordSuccess(addr, now)
	f.ping.peerNegotiated(addr, now)
	f.headerSync.peerNegotiated(addr, p.height, now)
	f.filterSync.peerNegotiated(addr, p.services, now)
	f.inventory.peerNegotiated(addr, now)
}

// ReplayHeader re-inserts a header that was already validated and persisted
// in an earlier run, restoring in-memory chain state at startup. It goes
// through the normal validation path (Insert is cheap and idempotent), so a
// store tampered with outside the process is still caught rather than
// trusted blindly.
func (f *FSM) ReplayHeader(header wire.BlockHeader) error {
	_, err := f.chain.Insert(header, f.cfg.Clock.Now())
	return err
}

// ReplayFilterHeader restores a filter header that was already verified and
// persisted in an earlier run, without re-deriving it from a filter hash.
func (f *FSM) ReplayFilterHeader(height uint32, header chainhash.Hash) {
	f.filters.recordHeader(height, header)
}

// Command forwards a user-level request synchronously to the relevant
// sub-manager.
func (f *FSM) Command(cmd Command) {
	now := f.cfg.Clock.Now()

	switch cmd.Kind() {
	case "connect":
		f.out.connect(NewPeerID(cmd.Addr))

	case "disconnect":
		f.out.disconnect(NewPeerID(cmd.Addr), Protocol(Shutdown()))

	case "submit-transaction":
		f.inventory.submitTransaction(cmd.Tx, f.negotiatedPeers(), now)

	case "rescan":
		f.watchlist.Add(cmd.Scripts)
		f.filterSync.rescanFrom(cmd.From, now)

	case "watch":
		f.watchlist.Add(cmd.Scripts)

	case "query":
		_, tip := f.chain.Tip()
		if cmd.Reply != nil {
			cmd.Reply <- QueryResult{Tip: tip, FilterTip: f.filters.Tip(), Peers: len(f.negotiated)}
		}

	case "shutdown":
		for addr := range f.negotiated {
			f.out.disconnect(addr, Protocol(Shutdown()))
		}
	}
}

func (f *FSM) negotiatedPeers() []PeerID {
	peers := make([]PeerID, 0, len(f.negotiated))
	for addr := range f.negotiated {
		peers = append(peers, addr)
	}
	return peers
}

// Tick is the periodic clock-driven entry point: it re-evaluates every
// timeout-bearing sub-manager and performs due rebroadcasts.
func (f *FSM) Tick() {
	now := f.cfg.Clock.Now()

	f.handshake.checkTimeouts(now)
	f.headerSync.checkTimeout(now)
	f.filterSync.checkTimeouts(now)
	f.ping.receivedWake(now)
	f.inventory.rebroadcast(f.negotiatedPeers(), now)
}

// Wake is an alias for Tick, named for the Wakeup output it answers: the
// reactor calls it when a previously requested timer fires.
func (f *FSM) Wake() {
	f.Tick()
}

// Drain removes and returns every Output queued since the last Drain call,
// in generation order.
func (f *FSM) Drain() []Output {
	return f.out.drain()
}
