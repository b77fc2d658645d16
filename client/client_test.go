// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lanternwallet/spvd/fsm"
	"github.com/lanternwallet/spvd/reactor"
	"github.com/lanternwallet/spvd/store"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

// chainedHeader builds a header on top of prev that satisfies regtest's
// trivial proof-of-work requirement, for a deterministic local test chain.
func chainedHeader(t *testing.T, prev wire.BlockHeader, params *chaincfg.Params, when time.Time) wire.BlockHeader {
	t.Helper()
	h := wire.BlockHeader{
		Version:    1,
		PrevBlock:  prev.BlockHash(),
		MerkleRoot: chainhash.Hash{0xAA},
		Timestamp:  when,
		Bits:       params.PowLimitBits,
	}
	target := blockchain.CompactToBig(params.PowLimitBits)
	for nonce := uint32(0); ; nonce++ {
		h.Nonce = nonce
		hash := h.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
			return h
		}
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	params := &chaincfg.RegressionNetParams

	fsmCfg := fsm.DefaultConfig()
	fsmCfg.ChainParams = params
	fsmCfg.Clock = clock.NewTestClock(time.Unix(1700000000, 0))

	reactorCfg := reactor.DefaultConfig()
	reactorCfg.Bootstrap = nil

	filters, err := store.NewMemFilterStore(chainhash.Hash{}, 16)
	require.NoError(t, err)

	return Config{
		FSM:                 fsmCfg,
		Reactor:             reactorCfg,
		GenesisFilterHeader: chainhash.Hash{},
		Watchlist:           fsm.NewWatchlist(),
		Headers:             store.NewMemHeaderStore(),
		Filters:             filters,
	}
}

func TestClientReplaysPersistedHeaders(t *testing.T) {
	cfg := testConfig(t)
	params := cfg.FSM.ChainParams

	genesis := params.GenesisBlock.Header
	h1 := chainedHeader(t, genesis, params, time.Unix(1700000100, 0))
	h2 := chainedHeader(t, h1, params, time.Unix(1700000200, 0))

	require.NoError(t, cfg.Headers.Append(0, genesis))
	require.NoError(t, cfg.Headers.Append(1, h1))
	require.NoError(t, cfg.Headers.Append(2, h2))

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Query(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(2), res.Tip)
}

func TestClientRejectsMissingStores(t *testing.T) {
	cfg := testConfig(t)
	cfg.Headers = nil
	_, err := New(cfg)
	require.Error(t, err)
}

func TestClientPersistsBlockAndFilterEvents(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg)
	require.NoError(t, err)

	params := cfg.FSM.ChainParams
	genesis := params.GenesisBlock.Header
	h1 := chainedHeader(t, genesis, params, time.Unix(1700000100, 0))
	hash1 := h1.BlockHash()

	c.persist(fsm.EventBlockConnected(h1, hash1, 1))
	stored, err := cfg.Headers.Header(1)
	require.NoError(t, err)
	require.Equal(t, h1, stored)

	filterHeader := chainhash.Hash{0x01}
	c.persist(fsm.EventFilterHeaderVerified(1, filterHeader))
	got, ok := cfg.Filters.HeaderAt(1)
	require.True(t, ok)
	require.Equal(t, filterHeader, got)

	c.persist(fsm.EventBlockDisconnected(h1, hash1, 1))
	_, ok = cfg.Headers.Tip()
	require.True(t, ok)
	tip, _ := cfg.Headers.Tip()
	require.Equal(t, uint32(0), tip)
}
