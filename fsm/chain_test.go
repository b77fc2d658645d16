// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// mineHeader builds a successor header and grinds its nonce until the hash
// meets the target encoded in bits. Regtest's limit is so permissive that
// this takes only a couple of tries.
func mineHeader(parent wire.BlockHeader, bits uint32, timestamp time.Time) wire.BlockHeader {
	h := wire.BlockHeader{
		Version:    1,
		PrevBlock:  parent.BlockHash(),
		MerkleRoot: chainhash.Hash{},
		Timestamp:  timestamp,
		Bits:       bits,
	}
	target := blockchain.CompactToBig(bits)
	for nonce := uint32(0); ; nonce++ {
		h.Nonce = nonce
		hash := h.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
			return h
		}
	}
}

func TestHeaderChainInsertIsIdempotent(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	chain := NewHeaderChain(params)
	genesis := params.GenesisBlock.Header

	h1 := mineHeader(genesis, params.PowLimitBits, genesis.Timestamp.Add(10*time.Minute))
	now := h1.Timestamp.Add(time.Hour)

	info, err := chain.Insert(h1, now)
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Len(t, info.Connect, 1)
	require.Equal(t, uint32(1), info.Connect[0].height)

	// Replaying the same header is a no-op, not an error.
	info, err = chain.Insert(h1, now)
	require.NoError(t, err)
	require.Nil(t, info)

	_, tip := chain.Tip()
	require.Equal(t, uint32(1), tip)
}

func TestHeaderChainRejectsOrphan(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	chain := NewHeaderChain(params)
	genesis := params.GenesisBlock.Header

	// h1 is never inserted, so h2 (built on it) has an unknown parent.
	h1 := mineHeader(genesis, params.PowLimitBits, genesis.Timestamp.Add(10*time.Minute))
	h2 := mineHeader(h1, params.PowLimitBits, h1.Timestamp.Add(10*time.Minute))

	_, err := chain.Insert(h2, h2.Timestamp.Add(time.Hour))
	require.Error(t, err)
}

func TestHeaderChainReorgOrdersDisconnectBeforeConnect(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	chain := NewHeaderChain(params)
	genesis := params.GenesisBlock.Header

	// Build the initial 2-block tip: genesis -> a1 -> a2.
	a1 := mineHeader(genesis, params.PowLimitBits, genesis.Timestamp.Add(10*time.Minute))
	now := a1.Timestamp.Add(time.Hour)
	_, err := chain.Insert(a1, now)
	require.NoError(t, err)

	a2 := mineHeader(a1, params.PowLimitBits, a1.Timestamp.Add(10*time.Minute))
	_, err = chain.Insert(a2, now)
	require.NoError(t, err)

	oldTipHash, oldTipHeight := chain.Tip()
	require.Equal(t, a2.BlockHash(), oldTipHash)
	require.Equal(t, uint32(2), oldTipHeight)

	// Build a competing branch off genesis that is one block longer:
	// genesis -> b1 -> b2 -> b3. More cumulative work must win.
	b1 := mineHeader(genesis, params.PowLimitBits, genesis.Timestamp.Add(5*time.Minute))
	_, err = chain.Insert(b1, now)
	require.NoError(t, err)
	b2 := mineHeader(b1, params.PowLimitBits, b1.Timestamp.Add(10*time.Minute))
	_, err = chain.Insert(b2, now)
	require.NoError(t, err)
	b3 := mineHeader(b2, params.PowLimitBits, b2.Timestamp.Add(10*time.Minute))

	info, err := chain.Insert(b3, now)
	require.NoError(t, err)
	require.NotNil(t, info)

	require.Equal(t, uint32(0), info.ForkHeight)
	require.Len(t, info.Disconnect, 2)
	require.Equal(t, a2.BlockHash(), info.Disconnect[0].hash) // highest first
	require.Equal(t, a1.BlockHash(), info.Disconnect[1].hash)

	require.Len(t, info.Connect, 3)
	require.Equal(t, b1.BlockHash(), info.Connect[0].hash) // ascending height
	require.Equal(t, b2.BlockHash(), info.Connect[1].hash)
	require.Equal(t, b3.BlockHash(), info.Connect[2].hash)

	newTipHash, newTipHeight := chain.Tip()
	require.Equal(t, b3.BlockHash(), newTipHash)
	require.Equal(t, uint32(3), newTipHeight)
}
