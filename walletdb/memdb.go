// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletdb

import "sync"

// memDB is a trivial in-memory DB implementation used by unit tests so they
// don't have to spin up a bbolt file on disk. Writes take effect at once:
// Update does not roll back the changes f made when f returns an error.
type memDB struct {
	mu      sync.Mutex
	buckets map[string]*memBucket
}

// OpenMem returns a fresh in-memory database.
func OpenMem() DB {
	return &memDB{buckets: make(map[string]*memBucket)}
}

func (m *memDB) BeginReadTx() (ReadTx, error) {
	return &memTx{db: m}, nil
}

func (m *memDB) BeginReadWriteTx() (ReadWriteTx, error) {
	return &memTx{db: m, writable: true}, nil
}

func (m *memDB) View(f func(tx ReadTx) error) error {
	return f(&memTx{db: m})
}

func (m *memDB) Update(f func(tx ReadWriteTx) error) error {
	return f(&memTx{db: m, writable: true})
}

func (m *memDB) Close() error { return nil }

type memTx struct {
	db       *memDB
	writable bool
}

func (t *memTx) ReadBucket(key []byte) ReadBucket {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	b, ok := t.db.buckets[string(key)]
	if !ok {
		return nil
	}
	return b
}

func (t *memTx) ReadWriteBucket(key []byte) ReadWriteBucket {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	b, ok := t.db.buckets[string(key)]
	if !ok {
		return nil
	}
	return b
}

func (t *memTx) CreateTopLevelBucket(key []byte) (ReadWriteBucket, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	b, ok := t.db.buckets[string(key)]
	if !ok {
		b = newMemBucket()
		t.db.buckets[string(key)] = b
	}
	return b, nil
}

func (t *memTx) DeleteTopLevelBucket(key []byte) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if _, ok := t.db.buckets[string(key)]; !ok {
		return ErrBucketNotFound
	}
	delete(t.db.buckets, string(key))
	return nil
}

func (t *memTx) Commit() error   { return nil }
func (t *memTx) Rollback() error { return nil }

type memBucket struct {
	mu      sync.Mutex
	values  map[string][]byte
	buckets map[string]*memBucket
}

func newMemBucket() *memBucket {
	return &memBucket{
		values:  make(map[string][]byte),
		buckets: make(map[string]*memBucket),
	}
}

func (b *memBucket) NestedReadBucket(key []byte) ReadBucket {
	b.mu.Lock()
	defer b.mu.Unlock()
	nested, ok := b.buckets[string(key)]
	if !ok {
		return nil
	}
	return nested
}

func (b *memBucket) NestedReadWriteBucket(key []byte) ReadWriteBucket {
	b.mu.Lock()
	defer b.mu.Unlock()
	nested, ok := b.buckets[string(key)]
	if !ok {
		return nil
	}
	return nested
}

func (b *memBucket) CreateBucket(key []byte) (ReadWriteBucket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buckets[string(key)]; ok {
		return nil, ErrBucketExists
	}
	nested := newMemBucket()
	b.buckets[string(key)] = nested
	return nested, nil
}

func (b *memBucket) CreateBucketIfNotExists(key []byte) (ReadWriteBucket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	nested, ok := b.buckets[string(key)]
	if !ok {
		nested = newMemBucket()
		b.buckets[string(key)] = nested
	}
	return nested, nil
}

func (b *memBucket) DeleteNestedBucket(key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buckets[string(key)]; !ok {
		return ErrBucketNotFound
	}
	delete(b.buckets, string(key))
	return nil
}

func (b *memBucket) ForEach(f func(k, v []byte) error) error {
	b.mu.Lock()
	type kv struct {
		k []byte
		v []byte
	}
	entries := make([]kv, 0, len(b.values)+len(b.buckets))
	for k, v := range b.values {
		entries = append(entries, kv{k: []byte(k), v: v})
	}
	for k := range b.buckets {
		entries = append(entries, kv{k: []byte(k), v: nil})
	}
	b.mu.Unlock()

	for _, e := range entries {
		if err := f(e.k, e.v); err != nil {
			return err
		}
	}
	return nil
}

func (b *memBucket) Get(key []byte) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[string(key)]
	if !ok {
		return nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp
}

func (b *memBucket) Put(key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	b.values[string(key)] = cp
	return nil
}

func (b *memBucket) Delete(key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, string(key))
	return nil
}
