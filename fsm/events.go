// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lanternwallet/spvd/fsm/fees"
)

// TxStatus is the lifecycle status surfaced to the client for a watched
// transaction.
type TxStatus struct {
	Kind   string // "unconfirmed", "confirmed", "reverted", "stale"
	Block  chainhash.Hash
	Height int32
}

func (s TxStatus) String() string {
	if s.Kind == "confirmed" {
		return fmt.Sprintf("confirmed in block %s at height %d", s.Block, s.Height)
	}
	return s.Kind
}

// TxUnconfirmed, TxConfirmed, TxReverted and TxStale build TxStatus values.
func TxUnconfirmed() TxStatus { return TxStatus{Kind: "unconfirmed"} }
func TxConfirmed(block chainhash.Hash, height int32) TxStatus {
	return TxStatus{Kind: "confirmed", Block: block, Height: height}
}
func TxReverted() TxStatus { return TxStatus{Kind: "reverted"} }
func TxStale() TxStatus    { return TxStatus{Kind: "stale"} }

// Event is the sum type of everything the FSM can report to subscribers,
// mirroring the nakamoto_client::Event enum this was ported from; kind
// names which variant a given Event holds.
type Event struct {
	kind string

	// Ready
	Tip, FilterTip uint32

	// Peer* events
	Addr      PeerID
	Link      ConnDirection
	Services  wire.ServiceFlag
	Height    uint32
	UserAgent string
	Version   uint32
	Reason    DisconnectReason

	// Block* / FilterProcessed / FeeEstimated
	Header       wire.BlockHeader
	Hash         chainhash.Hash
	BlockHeight  uint32
	Transactions []*wire.MsgTx
	Matched      bool
	Valid        bool
	Fees         fees.Estimate

	// FilterHeaderVerified
	FilterHeader chainhash.Hash

	// TxStatusChanged
	Txid   chainhash.Hash
	Status TxStatus

	// Synced
	SyncedHeight uint32
}

func (e Event) Kind() string { return e.kind }

func (e Event) String() string {
	switch e.kind {
	case "ready":
		return fmt.Sprintf("ready to process events and commands (tip=%d, filter_tip=%d)", e.Tip, e.FilterTip)
	case "peer-connected":
		return fmt.Sprintf("peer %s connected (%s)", e.Addr, e.Link)
	case "peer-connection-failed":
		return fmt.Sprintf("peer connection attempt to %s failed", e.Addr)
	case "peer-negotiated":
		return fmt.Sprintf("peer %s negotiated with services %s and height %d", e.Addr, e.Services, e.Height)
	case "peer-height-updated":
		return fmt.Sprintf("peer height updated to %d", e.Height)
	case "peer-disconnected":
		return fmt.Sprintf("disconnected from %s (%s)", e.Addr, e.Reason)
	case "block-connected":
		return fmt.Sprintf("block %s connected at height %d", e.Hash, e.BlockHeight)
	case "block-disconnected":
		return fmt.Sprintf("block %s disconnected at height %d", e.Hash, e.BlockHeight)
	case "block-matched":
		return fmt.Sprintf("block %s ready to be processed at height %d", e.Hash, e.BlockHeight)
	case "fee-estimated":
		return fmt.Sprintf("median fee rate for block #%d is %d sat/vB", e.BlockHeight, e.Fees.Median)
	case "filter-processed":
		return fmt.Sprintf("filter processed at height %d (match = %v)", e.BlockHeight, e.Matched)
	case "filter-header-verified":
		return fmt.Sprintf("filter header #%d verified", e.BlockHeight)
	case "tx-status-changed":
		return fmt.Sprintf("transaction %s status changed: %s", e.Txid, e.Status)
	case "synced":
		return fmt.Sprintf("filters synced up to height %d", e.SyncedHeight)
	default:
		return e.kind
	}
}

func EventReady(tip, filterTip uint32) Event {
	return Event{kind: "ready", Tip: tip, FilterTip: filterTip}
}
func EventPeerConnected(addr PeerID, link ConnDirection) Event {
	return Event{kind: "peer-connected", Addr: addr, Link: link}
}
func EventPeerConnectionFailed(addr PeerID) Event {
	return Event{kind: "peer-connection-failed", Addr: addr}
}
func EventPeerNegotiated(addr PeerID, link ConnDirection, services wire.ServiceFlag, height uint32, userAgent string, version uint32) Event {
	return Event{
		kind: "peer-negotiated", Addr: addr, Link: link, Services: services,
		Height: height, UserAgent: userAgent, Version: version,
	}
}
func EventPeerHeightUpdated(height uint32) Event {
	return Event{kind: "peer-height-updated", Height: height}
}
func EventPeerDisconnected(addr PeerID, reason DisconnectReason) Event {
	return Event{kind: "peer-disconnected", Addr: addr, Reason: reason}
}
func EventBlockConnected(header wire.BlockHeader, hash chainhash.Hash, height uint32) Event {
	return Event{kind: "block-connected", Header: header, Hash: hash, BlockHeight: height}
}
func EventBlockDisconnected(header wire.BlockHeader, hash chainhash.Hash, height uint32) Event {
	return Event{kind: "block-disconnected", Header: header, Hash: hash, BlockHeight: height}
}
func EventBlockMatched(hash chainhash.Hash, header wire.BlockHeader, height uint32, txs []*wire.MsgTx) Event {
	return Event{kind: "block-matched", Hash: hash, Header: header, BlockHeight: height, Transactions: txs}
}
func EventFeeEstimated(block chainhash.Hash, height uint32, estimate fees.Estimate) Event {
	return Event{kind: "fee-estimated", Hash: block, BlockHeight: height, Fees: estimate}
}
func EventFilterProcessed(block chainhash.Hash, height uint32, matched, valid bool) Event {
	return Event{kind: "filter-processed", Hash: block, BlockHeight: height, Matched: matched, Valid: valid}
}
func EventFilterHeaderVerified(height uint32, header chainhash.Hash) Event {
	return Event{kind: "filter-header-verified", BlockHeight: height, FilterHeader: header}
}
func EventTxStatusChanged(txid chainhash.Hash, status TxStatus) Event {
	return Event{kind: "tx-status-changed", Txid: txid, Status: status}
}
func EventSynced(height, tip uint32) Event {
	return Event{kind: "synced", SyncedHeight: height, Tip: tip}
}
