// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletkeys derives watch-only output scripts from an extended
// public key and a BIP-32 derivation path, for feeding fsm.Watchlist. It
// never handles a private key: spvd is a watch-only client, consistent with
// the Non-goal on transaction signing.
package walletkeys
