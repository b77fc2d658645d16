// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcutil/gcs"
	"github.com/stretchr/testify/require"
)

func TestWatchlist(t *testing.T) {
	w := NewWatchlist()
	require.Equal(t, 0, w.Len())
	require.False(t, w.Contains([]byte{0x01}))

	w.Add([][]byte{{0x01}, {0x02}})
	require.Equal(t, 2, w.Len())
	require.True(t, w.Contains([]byte{0x01}))

	// Re-adding an existing script is a no-op.
	w.Add([][]byte{{0x01}})
	require.Equal(t, 2, w.Len())
}

func TestGenesisFilterHeaderDeterministicPerNetwork(t *testing.T) {
	a, err := GenesisFilterHeader(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	b, err := GenesisFilterHeader(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.Equal(t, a, b)

	main, err := GenesisFilterHeader(&chaincfg.MainNetParams)
	require.NoError(t, err)
	require.NotEqual(t, a, main, "distinct genesis blocks must not share a filter header")
}

func TestFilterChainHeaderChainAndInvalidate(t *testing.T) {
	genesisHeader, err := GenesisFilterHeader(&chaincfg.RegressionNetParams)
	require.NoError(t, err)

	c := NewFilterChain(genesisHeader)
	h, ok := c.HeaderAt(0)
	require.True(t, ok)
	require.Equal(t, genesisHeader, h)
	require.Equal(t, uint32(0), c.Tip())

	filterHash1 := chainhash.DoubleHashH([]byte("block-1-filter"))
	header1 := ComputeFilterHeader(genesisHeader, filterHash1)
	require.NoError(t, c.VerifyHeader(1, filterHash1, header1))
	require.Equal(t, uint32(1), c.Tip())

	// A mismatched claimed header at the next height is rejected.
	filterHash2 := chainhash.DoubleHashH([]byte("block-2-filter"))
	require.Error(t, c.VerifyHeader(2, filterHash2, chainhash.Hash{0xFF}))

	c.InvalidateFrom(1)
	_, ok = c.HeaderAt(1)
	require.False(t, ok)
	require.Equal(t, uint32(0), c.Tip())
	_, ok = c.Cached(1)
	require.False(t, ok)
}

func TestMatchAgainstWatchlist(t *testing.T) {
	blockHash := chainhash.Hash{0x03}
	watched := []byte{0x76, 0xa9, 0x14, 0x01}
	key := gcs.DeriveKey(&blockHash)
	filter, err := gcs.BuildGCSFilter(bip158P, bip158M, key, [][]byte{watched})
	require.NoError(t, err)

	w := NewWatchlist()
	matched, err := Match(filter, blockHash, w)
	require.NoError(t, err)
	require.False(t, matched, "an empty watchlist never matches")

	w.Add([][]byte{watched})
	matched, err = Match(filter, blockHash, w)
	require.NoError(t, err)
	require.True(t, matched)
}
