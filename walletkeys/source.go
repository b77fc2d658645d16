// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletkeys

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/hdkeychain"
)

// defaultGapLimit is how many addresses per branch DeriveGap derives,
// starting at index 0, matching the standard BIP-44-family gap limit. The
// watch set is not extended as matched transactions are seen.
const defaultGapLimit = 20

// Source derives watch-only P2WPKH scripts from an account-level extended
// public key. The supplied key's own depth corresponds to the hardened
// prefix of path (e.g. the account xpub for m/84'/0'/0'); only path's
// remaining segments, which must be non-hardened since a public key cannot
// derive hardened children, are derived here, followed by the branch
// (change) and address-index levels that deriveKey appends.
type Source struct {
	accountKey *hdkeychain.ExtendedKey
	tail       Path
	params     *chaincfg.Params
}

// NewSource parses xpubStr as an extended public key and validates that
// path's trailing segments (beyond the key's own depth) are all
// non-hardened.
func NewSource(xpubStr string, path Path, params *chaincfg.Params) (*Source, error) {
	key, err := hdkeychain.NewKeyFromString(xpubStr)
	if err != nil {
		return nil, fmt.Errorf("walletkeys: parsing extended key: %w", err)
	}
	if key.IsPrivate() {
		return nil, fmt.Errorf("walletkeys: refusing a private extended key for a watch-only source")
	}

	depth := int(key.Depth())
	if depth > len(path) {
		return nil, fmt.Errorf("walletkeys: key depth %d exceeds path %s", depth, path)
	}
	tail := path[depth:]
	for _, idx := range tail {
		if idx >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("walletkeys: path %s has a hardened segment beyond the supplied public key's depth", path)
		}
	}

	return &Source{accountKey: key, tail: tail, params: params}, nil
}

// deriveKey walks the non-hardened tail plus a branch (0=external,
// 1=internal/change) and address index.
func (s *Source) deriveKey(branch, index uint32) (*hdkeychain.ExtendedKey, error) {
	key := s.accountKey
	for _, idx := range s.tail {
		var err error
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("walletkeys: deriving path segment %d: %w", idx, err)
		}
	}
	branchKey, err := key.Derive(branch)
	if err != nil {
		return nil, fmt.Errorf("walletkeys: deriving branch %d: %w", branch, err)
	}
	return branchKey.Derive(index)
}

// ScriptAt returns the P2WPKH output script for (branch, index).
func (s *Source) ScriptAt(branch, index uint32) ([]byte, error) {
	key, err := s.deriveKey(branch, index)
	if err != nil {
		return nil, err
	}
	pubKey, err := key.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("walletkeys: extracting public key: %w", err)
	}
	pkHash := btcutil.Hash160(pubKey.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, s.params)
	if err != nil {
		return nil, fmt.Errorf("walletkeys: building address: %w", err)
	}
	return txscript.PayToAddrScript(addr)
}

// DeriveGap returns the external (branch 0) and internal/change (branch 1)
// scripts for indices [0, defaultGapLimit) on both branches, the initial
// watch set for a freshly loaded wallet.
func (s *Source) DeriveGap() ([][]byte, error) {
	return s.DeriveRange(0, defaultGapLimit)
}

// DeriveRange returns external and internal scripts for indices
// [start, start+count) on both branches.
func (s *Source) DeriveRange(start, count uint32) ([][]byte, error) {
	scripts := make([][]byte, 0, 2*count)
	for branch := uint32(0); branch < 2; branch++ {
		for i := uint32(0); i < count; i++ {
			script, err := s.ScriptAt(branch, start+i)
			if err != nil {
				return nil, err
			}
			scripts = append(scripts, script)
		}
	}
	return scripts, nil
}
