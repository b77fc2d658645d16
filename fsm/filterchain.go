// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcutil/gcs"
	lru "github.com/hashicorp/golang-lru"
)

// bip158P and bip158M are the BIP-158 default Golomb-Rice coding parameters.
const (
	bip158P = 19
	bip158M = 784931
)

// filterCacheSize bounds the number of decoded filters kept in memory.
const filterCacheSize = 4096

// Watchlist is the set of scripts every synced filter is tested against.
type Watchlist struct {
	scripts map[string][]byte
}

// NewWatchlist returns an empty watchlist.
func NewWatchlist() *Watchlist {
	return &Watchlist{scripts: make(map[string][]byte)}
}

// Add inserts scripts into the watchlist, ignoring ones already present.
func (w *Watchlist) Add(scripts [][]byte) {
	for _, s := range scripts {
		w.scripts[string(s)] = s
	}
}

// Scripts returns every watched script, for filter matching.
func (w *Watchlist) Scripts() [][]byte {
	out := make([][]byte, 0, len(w.scripts))
	for _, s := range w.scripts {
		out = append(out, s)
	}
	return out
}

// Contains reports whether script is on the watchlist.
func (w *Watchlist) Contains(script []byte) bool {
	_, ok := w.scripts[string(script)]
	return ok
}

// Len reports the number of distinct watched scripts.
func (w *Watchlist) Len() int { return len(w.scripts) }

// FilterChain is the parallel BIP-157 filter-header chain, plus a bounded
// cache of decoded BIP-158 filters, per spec §3/§4.9.
type FilterChain struct {
	headers map[uint32]chainhash.Hash // height -> filter header
	cache   *lru.Cache                // height -> *gcs.Filter
}

// NewFilterChain creates a filter chain with the genesis (height 0) filter
// header already present, as required by BIP-157.
func NewFilterChain(genesisFilterHeader chainhash.Hash) *FilterChain {
	cache, err := lru.New(filterCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size, which filterCacheSize never is
	}
	return &FilterChain{
		headers: map[uint32]chainhash.Hash{0: genesisFilterHeader},
		cache:   cache,
	}
}

// Tip returns the highest height with a verified filter header.
func (c *FilterChain) Tip() uint32 {
	var tip uint32
	for h := range c.headers {
		if h > tip {
			tip = h
		}
	}
	return tip
}

// HeaderAt returns the filter header at height, if known.
func (c *FilterChain) HeaderAt(height uint32) (chainhash.Hash, bool) {
	h, ok := c.headers[height]
	return h, ok
}

// ComputeFilterHeader derives the filter header at a height from the prior
// filter header and this height's filter hash, per BIP-157:
// filterHeader = SHA256d(filterHash || prevFilterHeader).
func ComputeFilterHeader(prevFilterHeader, filterHash chainhash.Hash) chainhash.Hash {
	var buf bytes.Buffer
	buf.Write(filterHash[:])
	buf.Write(prevFilterHeader[:])
	return chainhash.DoubleHashH(buf.Bytes())
}

// GenesisFilterHeader derives the height-0 BIP-157 filter header for params
// directly from its genesis block, rather than keeping a hardcoded value
// per network that could drift out of sync with chaincfg.
func GenesisFilterHeader(params *chaincfg.Params) (chainhash.Hash, error) {
	block := params.GenesisBlock
	hash := block.BlockHash()

	var items [][]byte
	for _, tx := range block.Transactions {
		for _, out := range tx.TxOut {
			items = append(items, out.PkScript)
		}
	}

	key := gcs.DeriveKey(&hash)
	filter, err := gcs.BuildGCSFilter(bip158P, bip158M, key, items)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("fsm: building genesis filter: %w", err)
	}
	raw, err := filter.NBytes()
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("fsm: encoding genesis filter: %w", err)
	}
	filterHash := chainhash.DoubleHashH(raw)
	return ComputeFilterHeader(chainhash.Hash{}, filterHash), nil
}

// VerifyHeader checks that a claimed filter header at height is consistent
// with the chain (its predecessor must already be known and the hash chain
// must recompute correctly), storing it on success.
func (c *FilterChain) VerifyHeader(height uint32, filterHash, claimedHeader chainhash.Hash) error {
	prev, ok := c.headers[height-1]
	if !ok {
		return fmt.Errorf("fsm: filter header at height %d has no stored predecessor", height)
	}
	computed := ComputeFilterHeader(prev, filterHash)
	if computed != claimedHeader {
		return fmt.Errorf("fsm: filter header mismatch at height %d", height)
	}
	c.headers[height] = claimedHeader
	return nil
}

// InvalidateFrom drops every filter header and cached filter at or above
// height, used when a header-chain re-org moves the fork point below
// already-processed filter heights.
func (c *FilterChain) InvalidateFrom(height uint32) {
	for h := range c.headers {
		if h >= height {
			delete(c.headers, h)
		}
	}
	c.cache.Purge()
}

// DecodeAndCache parses a raw BIP-158 GCS-encoded filter, verifies its hash
// matches what the filter-header chain expects at height, caches the
// decoded filter, and returns it.
func (c *FilterChain) DecodeAndCache(height uint32, blockHash chainhash.Hash, raw []byte) (*gcs.Filter, error) {
	filterHash := chainhash.DoubleHashH(raw)
	expectedHeader, ok := c.headers[height]
	if !ok {
		return nil, fmt.Errorf("fsm: no filter header at height %d to verify against", height)
	}
	prev, ok := c.headers[height-1]
	if ok {
		if ComputeFilterHeader(prev, filterHash) != expectedHeader {
			return nil, fmt.Errorf("fsm: filter at height %d does not match its filter header", height)
		}
	}

	filter, err := gcs.FromNBytes(bip158P, bip158M, raw)
	if err != nil {
		return nil, fmt.Errorf("fsm: decoding filter at height %d: %w", height, err)
	}
	c.cache.Add(height, filter)
	return filter, nil
}

// recordHeader stores a filter header derived by the caller (already
// chained against a known predecessor), without re-verification.
func (c *FilterChain) recordHeader(height uint32, header chainhash.Hash) {
	c.headers[height] = header
}

// Cached returns a previously decoded filter for height, if still cached.
func (c *FilterChain) Cached(height uint32) (*gcs.Filter, bool) {
	v, ok := c.cache.Get(height)
	if !ok {
		return nil, false
	}
	return v.(*gcs.Filter), true
}

// Match tests every watched script against filter, keyed by blockHash per
// BIP-158.
func Match(filter *gcs.Filter, blockHash chainhash.Hash, watchlist *Watchlist) (bool, error) {
	if watchlist.Len() == 0 {
		return false, nil
	}
	key := gcs.DeriveKey(&blockHash)
	return filter.MatchAny(key, watchlist.Scripts())
}
