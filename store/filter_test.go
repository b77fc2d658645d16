// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcutil/gcs"
	"github.com/stretchr/testify/require"
)

func buildTestFilter(t *testing.T, blockHash chainhash.Hash, items [][]byte) []byte {
	t.Helper()
	key := gcs.DeriveKey(&blockHash)
	filter, err := gcs.BuildGCSFilter(bip158P, bip158M, key, items)
	require.NoError(t, err)
	raw, err := filter.NBytes()
	require.NoError(t, err)
	return raw
}

func TestMemFilterStorePutAndDecode(t *testing.T) {
	genesis := chainhash.Hash{0xaa}
	s, err := NewMemFilterStore(genesis, 8)
	require.NoError(t, err)
	require.Equal(t, uint32(0), s.Tip())

	h, ok := s.HeaderAt(0)
	require.True(t, ok)
	require.Equal(t, genesis, h)

	blockHash := chainhash.Hash{0x01}
	watched := []byte{0x76, 0xa9, 0x14}
	raw := buildTestFilter(t, blockHash, [][]byte{watched})

	fh := ComputeTestFilterHeader(genesis, chainhash.DoubleHashH(raw))
	require.NoError(t, s.PutHeader(1, fh))
	require.NoError(t, s.PutFilter(1, blockHash, raw))
	require.Equal(t, uint32(1), s.Tip())

	filter, err := s.Filter(1)
	require.NoError(t, err)
	key := gcs.DeriveKey(&blockHash)
	match, err := filter.Match(key, watched)
	require.NoError(t, err)
	require.True(t, match)

	// Decoding again is served from the LRU cache, not re-parsed.
	filter2, err := s.Filter(1)
	require.NoError(t, err)
	require.Same(t, filter, filter2)
}

func TestMemFilterStoreInvalidate(t *testing.T) {
	genesis := chainhash.Hash{}
	s, err := NewMemFilterStore(genesis, 8)
	require.NoError(t, err)

	require.NoError(t, s.PutHeader(1, chainhash.Hash{0x01}))
	require.NoError(t, s.PutHeader(2, chainhash.Hash{0x02}))
	require.NoError(t, s.PutFilter(1, chainhash.Hash{}, []byte{0x00}))
	require.Equal(t, uint32(2), s.Tip())

	s.Invalidate(1)
	require.Equal(t, uint32(0), s.Tip())
	_, ok := s.HeaderAt(1)
	require.False(t, ok)
	_, err = s.Filter(1)
	require.Error(t, err)
}

func TestFileFilterStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.dat")
	genesis := chainhash.Hash{0xaa}

	s, err := OpenFileFilterStore(path, genesis, 8)
	require.NoError(t, err)
	require.Equal(t, uint32(0), s.Tip())
	h, ok := s.HeaderAt(0)
	require.True(t, ok)
	require.Equal(t, genesis, h)

	fh1 := chainhash.Hash{0x01}
	require.NoError(t, s.PutHeader(1, fh1))
	require.Equal(t, uint32(1), s.Tip())
	require.NoError(t, s.Close())

	reopened, err := OpenFileFilterStore(path, genesis, 8)
	require.NoError(t, err)
	require.Equal(t, uint32(1), reopened.Tip())
	got, ok := reopened.HeaderAt(1)
	require.True(t, ok)
	require.Equal(t, fh1, got)

	reopened.Invalidate(1)
	require.Equal(t, uint32(0), reopened.Tip())
	_, ok = reopened.HeaderAt(1)
	require.False(t, ok)
	require.NoError(t, reopened.Close())
}

// ComputeTestFilterHeader mirrors fsm.ComputeFilterHeader for store-package
// tests, which must not import fsm (store is a lower-level dependency of
// fsm's collaborators, not the reverse).
func ComputeTestFilterHeader(prev, filterHash chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, 64)
	buf = append(buf, filterHash[:]...)
	buf = append(buf, prev[:]...)
	return chainhash.DoubleHashH(buf)
}
