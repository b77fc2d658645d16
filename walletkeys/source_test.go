// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletkeys

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/stretchr/testify/require"
)

func testAccountXPub(t *testing.T) string {
	t.Helper()
	seed := []byte("walletkeys test deterministic seed 000000000")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	pub, err := master.Neuter()
	require.NoError(t, err)
	return pub.String()
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath("m/84'/0'/0'/0")
	require.NoError(t, err)
	require.Equal(t, Path{
		84 + hdkeychain.HardenedKeyStart,
		0 + hdkeychain.HardenedKeyStart,
		0 + hdkeychain.HardenedKeyStart,
		0,
	}, p)
	require.Equal(t, "m/84'/0'/0'/0", p.String())

	_, err = ParsePath("84'/0'/0'/0")
	require.Error(t, err)
}

func TestSourceRejectsHardenedTail(t *testing.T) {
	xpub := testAccountXPub(t)
	path, err := ParsePath("m/0'/0")
	require.NoError(t, err)

	_, err = NewSource(xpub, path, &chaincfg.MainNetParams)
	require.Error(t, err)
}

func TestSourceDerivesDistinctScripts(t *testing.T) {
	xpub := testAccountXPub(t)
	path, err := ParsePath("m/0/0")
	require.NoError(t, err)

	src, err := NewSource(xpub, path, &chaincfg.MainNetParams)
	require.NoError(t, err)

	a, err := src.ScriptAt(0, 0)
	require.NoError(t, err)
	b, err := src.ScriptAt(0, 1)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	// Deriving the same (branch, index) twice is deterministic.
	a2, err := src.ScriptAt(0, 0)
	require.NoError(t, err)
	require.Equal(t, a, a2)

	scripts, err := src.DeriveGap()
	require.NoError(t, err)
	require.Len(t, scripts, 40) // 2 branches * defaultGapLimit
}
