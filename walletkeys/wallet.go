// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletkeys

import (
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcutil"
)

// LoadXPub reads the single extended public key stored in the wallet file
// at path (--wallet), trimming surrounding whitespace.
func LoadXPub(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("walletkeys: reading wallet file: %w", err)
	}
	xpub := strings.TrimSpace(string(data))
	if xpub == "" {
		return "", fmt.Errorf("walletkeys: wallet file %s is empty", path)
	}
	return xpub, nil
}

// AddressToScript decodes a base58 or bech32 address (--addresses) into its
// P2PKH/P2SH/P2WPKH/P2WSH output script.
func AddressToScript(encoded string, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(encoded, params)
	if err != nil {
		return nil, fmt.Errorf("walletkeys: decoding address %q: %w", encoded, err)
	}
	if !addr.IsForNet(params) {
		return nil, fmt.Errorf("walletkeys: address %q is not valid for %s", encoded, params.Name)
	}
	return txscript.PayToAddrScript(addr)
}
