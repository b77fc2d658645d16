// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txmgr persists the broadcast/confirmation bookkeeping for
// transactions the client cares about: everything the spec's "Inventory
// broadcast record" and TxStatusChanged event history need to survive a
// restart. It is adapted from the teacher's wtxmgr, narrowed from a full
// wallet transaction manager (UTXO tracking, balances) down to watch-only
// status tracking, since UTXO bookkeeping beyond watchlist matching is a
// non-goal of the client this package serves.
package txmgr

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Status describes where a watched transaction currently stands relative to
// the active chain.
type Status uint8

const (
	// StatusUnconfirmed means the transaction has been broadcast (or
	// received) but is not yet part of the active chain.
	StatusUnconfirmed Status = iota
	// StatusConfirmed means the transaction is part of the active chain.
	StatusConfirmed
	// StatusReverted means a re-org moved the transaction's block off
	// the active chain; rebroadcast should resume.
	StatusReverted
	// StatusStale means the transaction was broadcast long enough ago,
	// without confirming, that it is considered dead.
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusUnconfirmed:
		return "unconfirmed"
	case StatusConfirmed:
		return "confirmed"
	case StatusReverted:
		return "reverted"
	case StatusStale:
		return "stale"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Confirmation identifies the block a transaction confirmed in.
type Confirmation struct {
	Block  chainhash.Hash
	Height int32
}
