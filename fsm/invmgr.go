// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// inventoryRecord is the spec's "Inventory broadcast record": a
// user-submitted transaction plus broadcast and confirmation bookkeeping.
type inventoryRecord struct {
	tx            *wire.MsgTx
	firstSeen     time.Time
	attempts      uint32
	asked         map[PeerID]struct{}
	lastBroadcast time.Time
	status        TxStatus
}

// inventoryManager broadcasts user-submitted transactions, answers getdata
// requests for them, and tracks their confirmation status, per spec §4.7.
type inventoryManager struct {
	cfg     *Config
	out     *outputSink
	pending map[chainhash.Hash]*inventoryRecord
}

func newInventoryManager(cfg *Config, out *outputSink) *inventoryManager {
	return &inventoryManager{cfg: cfg, out: out, pending: make(map[chainhash.Hash]*inventoryRecord)}
}

// submitTransaction registers tx for broadcast and immediately announces it
// to every given negotiated peer.
func (m *inventoryManager) submitTransaction(tx *wire.MsgTx, negotiated []PeerID, now time.Time) {
	txid := tx.TxHash()
	if _, exists := m.pending[txid]; exists {
		return
	}
	rec := &inventoryRecord{
		tx: tx, firstSeen: now, asked: make(map[PeerID]struct{}), status: TxUnconfirmed(),
	}
	m.pending[txid] = rec
	m.announce(txid, rec, negotiated, now)
}

// peerNegotiated announces every still-pending transaction to a newly
// negotiated peer.
func (m *inventoryManager) peerNegotiated(id PeerID, now time.Time) {
	for txid, rec := range m.pending {
		if rec.status.Kind != "unconfirmed" && rec.status.Kind != "reverted" {
			continue
		}
		m.announceTo(txid, rec, id, now)
	}
}

// rebroadcast re-announces every unconfirmed/reverted transaction whose
// rebroadcast interval has elapsed, to peers not yet asked.
func (m *inventoryManager) rebroadcast(negotiated []PeerID, now time.Time) {
	for txid, rec := range m.pending {
		if rec.status.Kind != "unconfirmed" && rec.status.Kind != "reverted" {
			continue
		}
		if now.Sub(rec.lastBroadcast) < m.cfg.RebroadcastInterval {
			continue
		}
		m.announce(txid, rec, negotiated, now)
	}
}

func (m *inventoryManager) announce(txid chainhash.Hash, rec *inventoryRecord, negotiated []PeerID, now time.Time) {
	for _, id := range negotiated {
		if _, asked := rec.asked[id]; asked {
			continue
		}
		m.announceTo(txid, rec, id, now)
	}
}

func (m *inventoryManager) announceTo(txid chainhash.Hash, rec *inventoryRecord, id PeerID, now time.Time) {
	inv := wire.NewMsgInv()
	inv.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &txid))
	m.out.write(id, encodeOrPanic(inv, m.cfg))
	rec.asked[id] = struct{}{}
	rec.attempts++
	rec.lastBroadcast = now
}

// receivedGetData answers a getdata request with any requested transaction
// we have pending.
func (m *inventoryManager) receivedGetData(id PeerID, msg *wire.MsgGetData) {
	for _, inv := range msg.InvList {
		if inv.Type != wire.InvTypeTx {
			continue
		}
		rec, ok := m.pending[inv.Hash]
		if !ok {
			continue
		}
		m.out.write(id, encodeOrPanic(rec.tx, m.cfg))
	}
}

// confirmed marks txid confirmed in block/height, returning true if it was
// a transaction we were tracking.
func (m *inventoryManager) confirmed(txid chainhash.Hash, block chainhash.Hash, height uint32) (TxStatus, bool) {
	rec, ok := m.pending[txid]
	if !ok {
		return TxStatus{}, false
	}
	rec.status = TxConfirmed(block, int32(height))
	return rec.status, true
}

// reverted marks a previously confirmed txid as reverted, so rebroadcast
// resumes, per spec: a re-org past a confirming block un-confirms it.
func (m *inventoryManager) reverted(txid chainhash.Hash) (TxStatus, bool) {
	rec, ok := m.pending[txid]
	if !ok || rec.status.Kind != "confirmed" {
		return TxStatus{}, false
	}
	rec.status = TxReverted()
	rec.asked = make(map[PeerID]struct{})
	return rec.status, true
}

// revertedInBlock reverts every tracked transaction that was confirmed in
// the now-disconnected block hash, returning their txids for event emission.
func (m *inventoryManager) revertedInBlock(hash chainhash.Hash) []chainhash.Hash {
	var txids []chainhash.Hash
	for txid, rec := range m.pending {
		if rec.status.Kind == "confirmed" && rec.status.Block == hash {
			rec.status = TxReverted()
			rec.asked = make(map[PeerID]struct{})
			txids = append(txids, txid)
		}
	}
	return txids
}

// cancel removes a transaction from tracking on user request.
func (m *inventoryManager) cancel(txid chainhash.Hash) {
	delete(m.pending, txid)
}

// isTracked reports whether txid is a transaction we submitted/are tracking.
func (m *inventoryManager) isTracked(txid chainhash.Hash) bool {
	_, ok := m.pending[txid]
	return ok
}
