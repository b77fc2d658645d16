// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func testHeader(nonce uint32) wire.BlockHeader {
	return wire.BlockHeader{
		Version:   1,
		Timestamp: time.Unix(1700000000, 0),
		Bits:      0x207fffff,
		Nonce:     nonce,
	}
}

func TestMemHeaderStoreAppendAndTruncate(t *testing.T) {
	s := NewMemHeaderStore()

	_, ok := s.Tip()
	require.False(t, ok)

	require.NoError(t, s.Append(0, testHeader(0)))
	require.NoError(t, s.Append(1, testHeader(1)))
	require.NoError(t, s.Append(2, testHeader(2)))

	tip, ok := s.Tip()
	require.True(t, ok)
	require.Equal(t, uint32(2), tip)

	// Appending out of order is rejected.
	require.Error(t, s.Append(5, testHeader(5)))

	require.NoError(t, s.Truncate(0))
	tip, ok = s.Tip()
	require.True(t, ok)
	require.Equal(t, uint32(0), tip)

	_, err := s.Header(1)
	require.Error(t, err)
}

func TestFileHeaderStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headers.dat")

	s, err := OpenFileHeaderStore(path)
	require.NoError(t, err)
	_, ok := s.Tip()
	require.False(t, ok)

	for i := uint32(0); i < 5; i++ {
		require.NoError(t, s.Append(i, testHeader(i)))
	}
	tip, ok := s.Tip()
	require.True(t, ok)
	require.Equal(t, uint32(4), tip)

	h3, err := s.Header(3)
	require.NoError(t, err)
	require.Equal(t, uint32(3), h3.Nonce)

	require.NoError(t, s.Truncate(2))
	tip, ok = s.Tip()
	require.True(t, ok)
	require.Equal(t, uint32(2), tip)
	_, err = s.Header(3)
	require.Error(t, err)
	require.NoError(t, s.Close())

	// Reopening picks the tip back up from file size.
	reopened, err := OpenFileHeaderStore(path)
	require.NoError(t, err)
	tip, ok = reopened.Tip()
	require.True(t, ok)
	require.Equal(t, uint32(2), tip)
	require.NoError(t, reopened.Close())
}
