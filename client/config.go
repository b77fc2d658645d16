// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lanternwallet/spvd/fsm"
	"github.com/lanternwallet/spvd/reactor"
	"github.com/lanternwallet/spvd/store"
	"github.com/lanternwallet/spvd/txmgr"
)

// Config bundles everything a Client needs to wire the state machine, the
// reactor and the durable stores together. The caller is responsible for
// constructing the stores (so it controls on-disk layout and lifetime) and
// the watchlist (so addresses can be added before the first connection).
type Config struct {
	FSM     fsm.Config
	Reactor reactor.Config

	// GenesisFilterHeader is the network's height-0 BIP-157 filter
	// header; it must match whatever HeaderStore/FilterStore were built
	// against.
	GenesisFilterHeader chainhash.Hash

	// Bootstrap seeds the address manager with initial peer candidates,
	// in addition to whatever Reactor.Bootstrap the reactor dials first.
	Bootstrap []fsm.PeerID

	Watchlist *fsm.Watchlist

	Headers store.HeaderStore
	Filters store.FilterStore

	// Transactions is optional; a nil Store disables transaction-status
	// persistence (events are still forwarded to the caller).
	Transactions *txmgr.Store
}
