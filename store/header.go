// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// headerRecordSize is the fixed on-disk size of one serialized
// wire.BlockHeader: 4 (version) + 32 (prev block) + 32 (merkle root) +
// 4 (timestamp) + 4 (bits) + 4 (nonce).
const headerRecordSize = 80

// HeaderStore persists the active header chain by height, so a restarted
// client can resume sync without re-downloading from genesis.
type HeaderStore interface {
	// Append writes header at height, which must be exactly one past the
	// current tip height (or 0 for an empty store).
	Append(height uint32, header wire.BlockHeader) error

	// Header returns the header stored at height.
	Header(height uint32) (wire.BlockHeader, error)

	// Tip returns the highest stored height. ok is false for an empty
	// store.
	Tip() (height uint32, ok bool)

	// Truncate discards every header above height, used when a re-org's
	// fork point is below the stored tip.
	Truncate(height uint32) error

	// Close releases any underlying resources.
	Close() error
}

// MemHeaderStore is a HeaderStore backed by an in-memory slice, for tests
// and for running without persistence.
type MemHeaderStore struct {
	mu      sync.RWMutex
	headers []wire.BlockHeader
}

// NewMemHeaderStore returns an empty MemHeaderStore.
func NewMemHeaderStore() *MemHeaderStore {
	return &MemHeaderStore{}
}

func (s *MemHeaderStore) Append(height uint32, header wire.BlockHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(height) != len(s.headers) {
		return fmt.Errorf("store: append at height %d, expected %d", height, len(s.headers))
	}
	s.headers = append(s.headers, header)
	return nil
}

func (s *MemHeaderStore) Header(height uint32) (wire.BlockHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(height) >= len(s.headers) {
		return wire.BlockHeader{}, fmt.Errorf("store: no header at height %d", height)
	}
	return s.headers[height], nil
}

func (s *MemHeaderStore) Tip() (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.headers) == 0 {
		return 0, false
	}
	return uint32(len(s.headers) - 1), true
}

func (s *MemHeaderStore) Truncate(height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(height)+1 >= len(s.headers) {
		return nil
	}
	s.headers = s.headers[:height+1]
	return nil
}

func (s *MemHeaderStore) Close() error { return nil }

// FileHeaderStore is a HeaderStore backed by a flat file of fixed-size
// 80-byte header records, one per height, as named in spec §6. Truncation
// on re-org is a single os.File.Truncate call rather than a rewrite.
type FileHeaderStore struct {
	mu   sync.Mutex
	file *os.File
	tip  int64 // highest stored height (record count - 1); -1 when empty
}

// OpenFileHeaderStore opens (creating if necessary) a flat header file at
// path and determines the current tip from its size.
func OpenFileHeaderStore(path string) (*FileHeaderStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: opening header file: %v", ErrStorage, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat header file: %v", ErrStorage, err)
	}
	if info.Size()%headerRecordSize != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: header file size %d is not a multiple of %d", ErrStorage, info.Size(), headerRecordSize)
	}
	return &FileHeaderStore{
		file: f,
		tip:  info.Size()/headerRecordSize - 1,
	}, nil
}

func (s *FileHeaderStore) Append(height uint32, header wire.BlockHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int64(height) != s.tip+1 {
		return fmt.Errorf("store: append at height %d, expected %d", height, s.tip+1)
	}
	if _, err := s.file.Seek(int64(height)*headerRecordSize, 0); err != nil {
		return fmt.Errorf("%w: seeking header file: %v", ErrStorage, err)
	}
	if err := header.Serialize(s.file); err != nil {
		return fmt.Errorf("%w: writing header at height %d: %v", ErrStorage, height, err)
	}
	s.tip = int64(height)
	return nil
}

func (s *FileHeaderStore) Header(height uint32) (wire.BlockHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int64(height) > s.tip {
		return wire.BlockHeader{}, fmt.Errorf("store: no header at height %d", height)
	}
	if _, err := s.file.Seek(int64(height)*headerRecordSize, 0); err != nil {
		return wire.BlockHeader{}, fmt.Errorf("%w: seeking header file: %v", ErrStorage, err)
	}
	var header wire.BlockHeader
	if err := header.Deserialize(s.file); err != nil {
		return wire.BlockHeader{}, fmt.Errorf("%w: reading header at height %d: %v", ErrStorage, height, err)
	}
	return header, nil
}

func (s *FileHeaderStore) Tip() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tip < 0 {
		return 0, false
	}
	return uint32(s.tip), true
}

func (s *FileHeaderStore) Truncate(height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int64(height) >= s.tip {
		return nil
	}
	if err := s.file.Truncate((int64(height) + 1) * headerRecordSize); err != nil {
		return fmt.Errorf("%w: truncating header file: %v", ErrStorage, err)
	}
	s.tip = int64(height)
	return nil
}

func (s *FileHeaderStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
