// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcutil/gcs"
	lru "github.com/hashicorp/golang-lru"
)

// bip158P and bip158M are the BIP-158 default Golomb-Rice coding parameters,
// matching fsm.FilterChain.
const (
	bip158P = 19
	bip158M = 784931
)

// FilterStore persists the filter-header chain and raw compact filters by
// height, decoding on demand through a bounded cache.
type FilterStore interface {
	// PutHeader records the verified filter header at height.
	PutHeader(height uint32, header chainhash.Hash) error

	// HeaderAt returns the filter header at height, if known.
	HeaderAt(height uint32) (chainhash.Hash, bool)

	// PutFilter records the raw BIP-158 filter bytes for height.
	PutFilter(height uint32, blockHash chainhash.Hash, raw []byte) error

	// Filter returns the decoded filter at height, decoding and caching it
	// on first access.
	Filter(height uint32) (*gcs.Filter, error)

	// Tip returns the highest height with a stored filter header.
	Tip() uint32

	// Invalidate drops every filter header and filter at or above height,
	// used when a header-chain re-org moves the fork point below
	// already-processed heights.
	Invalidate(height uint32)
}

type rawFilter struct {
	blockHash chainhash.Hash
	data      []byte
}

// MemFilterStore is a FilterStore backed by in-memory maps, with an
// LRU-bounded cache of decoded filters so repeated rescans don't re-decode
// GCS filters that are still resident.
type MemFilterStore struct {
	mu      sync.Mutex
	headers map[uint32]chainhash.Hash
	raw     map[uint32]rawFilter
	decoded *lru.Cache
}

// NewMemFilterStore returns a MemFilterStore seeded with the network's
// genesis filter header, caching up to cacheSize decoded filters.
func NewMemFilterStore(genesisFilterHeader chainhash.Hash, cacheSize int) (*MemFilterStore, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("store: creating filter cache: %w", err)
	}
	return &MemFilterStore{
		headers: map[uint32]chainhash.Hash{0: genesisFilterHeader},
		raw:     make(map[uint32]rawFilter),
		decoded: cache,
	}, nil
}

func (s *MemFilterStore) PutHeader(height uint32, header chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers[height] = header
	return nil
}

func (s *MemFilterStore) HeaderAt(height uint32) (chainhash.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[height]
	return h, ok
}

func (s *MemFilterStore) PutFilter(height uint32, blockHash chainhash.Hash, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[height] = rawFilter{blockHash: blockHash, data: raw}
	s.decoded.Remove(height)
	return nil
}

func (s *MemFilterStore) Filter(height uint32) (*gcs.Filter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.decoded.Get(height); ok {
		return v.(*gcs.Filter), nil
	}
	rf, ok := s.raw[height]
	if !ok {
		return nil, fmt.Errorf("store: no filter stored at height %d", height)
	}
	filter, err := gcs.FromNBytes(bip158P, bip158M, rf.data)
	if err != nil {
		return nil, fmt.Errorf("store: decoding filter at height %d: %w", height, err)
	}
	s.decoded.Add(height, filter)
	return filter, nil
}

func (s *MemFilterStore) Tip() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tip uint32
	for h := range s.headers {
		if h > tip {
			tip = h
		}
	}
	return tip
}

func (s *MemFilterStore) Invalidate(height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h := range s.headers {
		if h >= height {
			delete(s.headers, h)
		}
	}
	for h := range s.raw {
		if h >= height {
			delete(s.raw, h)
		}
	}
	s.decoded.Purge()
}

// filterHeaderRecordSize is the fixed on-disk size of one filter-header
// record: a chainhash.Hash.
const filterHeaderRecordSize = chainhash.HashSize

// FileFilterStore is a FilterStore persisting only the verified
// filter-header chain to a flat file, one fixed-size record per height,
// mirroring FileHeaderStore. Raw filter bytes are kept in a bounded
// in-memory/LRU layer rather than on disk: a restarted client re-fetches
// filters it needs for a rescan instead of archiving the full history (see
// the client package's persistence policy).
type FileFilterStore struct {
	mu      sync.Mutex
	file    *os.File
	tip     int64 // highest stored height (record count - 1); -1 when empty
	raw     map[uint32]rawFilter
	decoded *lru.Cache
}

// OpenFileFilterStore opens (creating if necessary) a flat filter-header
// file at path. If the file is empty it is seeded with genesisFilterHeader
// at height 0; otherwise the on-disk contents take precedence.
func OpenFileFilterStore(path string, genesisFilterHeader chainhash.Hash, cacheSize int) (*FileFilterStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: opening filter header file: %v", ErrStorage, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat filter header file: %v", ErrStorage, err)
	}
	if info.Size()%filterHeaderRecordSize != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: filter header file size %d is not a multiple of %d", ErrStorage, info.Size(), filterHeaderRecordSize)
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("store: creating filter cache: %w", err)
	}

	s := &FileFilterStore{
		file:    f,
		tip:     info.Size()/filterHeaderRecordSize - 1,
		raw:     make(map[uint32]rawFilter),
		decoded: cache,
	}
	if s.tip < 0 {
		if err := s.putHeaderLocked(0, genesisFilterHeader); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *FileFilterStore) PutHeader(height uint32, header chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putHeaderLocked(height, header)
}

// putHeaderLocked appends or overwrites the record at height; callers hold s.mu.
func (s *FileFilterStore) putHeaderLocked(height uint32, header chainhash.Hash) error {
	if _, err := s.file.WriteAt(header[:], int64(height)*filterHeaderRecordSize); err != nil {
		return fmt.Errorf("%w: writing filter header at height %d: %v", ErrStorage, height, err)
	}
	if int64(height) > s.tip {
		s.tip = int64(height)
	}
	return nil
}

func (s *FileFilterStore) HeaderAt(height uint32) (chainhash.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int64(height) > s.tip {
		return chainhash.Hash{}, false
	}
	var header chainhash.Hash
	if _, err := s.file.ReadAt(header[:], int64(height)*filterHeaderRecordSize); err != nil {
		return chainhash.Hash{}, false
	}
	return header, true
}

func (s *FileFilterStore) PutFilter(height uint32, blockHash chainhash.Hash, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[height] = rawFilter{blockHash: blockHash, data: raw}
	s.decoded.Remove(height)
	return nil
}

func (s *FileFilterStore) Filter(height uint32) (*gcs.Filter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.decoded.Get(height); ok {
		return v.(*gcs.Filter), nil
	}
	rf, ok := s.raw[height]
	if !ok {
		return nil, fmt.Errorf("store: no filter stored at height %d", height)
	}
	filter, err := gcs.FromNBytes(bip158P, bip158M, rf.data)
	if err != nil {
		return nil, fmt.Errorf("store: decoding filter at height %d: %w", height, err)
	}
	s.decoded.Add(height, filter)
	return filter, nil
}

func (s *FileFilterStore) Tip() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tip < 0 {
		return 0
	}
	return uint32(s.tip)
}

func (s *FileFilterStore) Invalidate(height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int64(height) <= s.tip {
		if err := s.file.Truncate(int64(height) * filterHeaderRecordSize); err == nil {
			s.tip = int64(height) - 1
		}
	}
	for h := range s.raw {
		if h >= height {
			delete(s.raw, h)
		}
	}
	s.decoded.Purge()
}

// Close releases the underlying file handle.
func (s *FileFilterStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
