// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletdb

import (
	"github.com/btcsuite/btclog"
	"go.etcd.io/bbolt"
)

// log is the subsystem logger for walletdb; it is a no-op until UseLogger is
// called by the importing application.
var log = btclog.Disabled

// UseLogger sets the logger used by the package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// boltDB implements DB on top of go.etcd.io/bbolt.
type boltDB struct {
	db *bbolt.DB
}

// Open creates or opens a bbolt-backed wallet database at path.
func Open(path string) (DB, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	log.Infof("Opened wallet database %s", path)
	return &boltDB{db: db}, nil
}

func (b *boltDB) BeginReadTx() (ReadTx, error) {
	tx, err := b.db.Begin(false)
	if err != nil {
		return nil, err
	}
	return &boltTx{tx: tx}, nil
}

func (b *boltDB) BeginReadWriteTx() (ReadWriteTx, error) {
	tx, err := b.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &boltTx{tx: tx, writable: true}, nil
}

func (b *boltDB) View(f func(tx ReadTx) error) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		return f(&boltTx{tx: tx})
	})
}

func (b *boltDB) Update(f func(tx ReadWriteTx) error) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return f(&boltTx{tx: tx, writable: true})
	})
}

func (b *boltDB) Close() error {
	return b.db.Close()
}

type boltTx struct {
	tx       *bbolt.Tx
	writable bool
}

func (t *boltTx) ReadBucket(key []byte) ReadBucket {
	bucket := t.tx.Bucket(key)
	if bucket == nil {
		return nil
	}
	return &boltBucket{bucket: bucket}
}

func (t *boltTx) ReadWriteBucket(key []byte) ReadWriteBucket {
	bucket := t.tx.Bucket(key)
	if bucket == nil {
		return nil
	}
	return &boltBucket{bucket: bucket}
}

func (t *boltTx) CreateTopLevelBucket(key []byte) (ReadWriteBucket, error) {
	bucket, err := t.tx.CreateBucketIfNotExists(key)
	if err != nil {
		return nil, err
	}
	return &boltBucket{bucket: bucket}, nil
}

func (t *boltTx) DeleteTopLevelBucket(key []byte) error {
	err := t.tx.DeleteBucket(key)
	if err == bbolt.ErrBucketNotFound {
		return ErrBucketNotFound
	}
	return err
}

func (t *boltTx) Commit() error {
	return t.tx.Commit()
}

func (t *boltTx) Rollback() error {
	return t.tx.Rollback()
}

type boltBucket struct {
	bucket *bbolt.Bucket
}

func (b *boltBucket) NestedReadBucket(key []byte) ReadBucket {
	nested := b.bucket.Bucket(key)
	if nested == nil {
		return nil
	}
	return &boltBucket{bucket: nested}
}

func (b *boltBucket) NestedReadWriteBucket(key []byte) ReadWriteBucket {
	nested := b.bucket.Bucket(key)
	if nested == nil {
		return nil
	}
	return &boltBucket{bucket: nested}
}

func (b *boltBucket) CreateBucket(key []byte) (ReadWriteBucket, error) {
	nested, err := b.bucket.CreateBucket(key)
	if err == bbolt.ErrBucketExists {
		return nil, ErrBucketExists
	}
	if err != nil {
		return nil, err
	}
	return &boltBucket{bucket: nested}, nil
}

func (b *boltBucket) CreateBucketIfNotExists(key []byte) (ReadWriteBucket, error) {
	nested, err := b.bucket.CreateBucketIfNotExists(key)
	if err != nil {
		return nil, err
	}
	return &boltBucket{bucket: nested}, nil
}

func (b *boltBucket) DeleteNestedBucket(key []byte) error {
	err := b.bucket.DeleteBucket(key)
	if err == bbolt.ErrBucketNotFound {
		return ErrBucketNotFound
	}
	return err
}

func (b *boltBucket) ForEach(f func(k, v []byte) error) error {
	return b.bucket.ForEach(f)
}

func (b *boltBucket) Get(key []byte) []byte {
	return b.bucket.Get(key)
}

func (b *boltBucket) Put(key, value []byte) error {
	return b.bucket.Put(key, value)
}

func (b *boltBucket) Delete(key []byte) error {
	return b.bucket.Delete(key)
}
