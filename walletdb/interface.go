// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletdb provides a namespaced, bucketed key/value database
// abstraction used by spvd to persist anything that must survive a restart:
// the watch-only transaction/inventory history kept by the txmgr package.
// The store package keeps its headers in flat files and memory and does not
// use walletdb. Callers
// never talk to the backing engine directly, so the engine (bbolt here) can
// be swapped without touching call sites.
package walletdb

import "fmt"

// ReadBucket is the read-only subset of bucket operations.
type ReadBucket interface {
	// NestedReadBucket retrieves a nested bucket by key, returning nil if
	// the key does not exist or does not represent a bucket.
	NestedReadBucket(key []byte) ReadBucket

	// ForEach invokes f for every key/value pair in the bucket, and for
	// every nested bucket with a nil value.
	ForEach(f func(k, v []byte) error) error

	// Get returns the value for key, or nil if it does not exist.
	Get(key []byte) []byte
}

// ReadWriteBucket extends ReadBucket with mutation.
type ReadWriteBucket interface {
	ReadBucket

	// NestedReadWriteBucket retrieves a nested read-write bucket by key.
	NestedReadWriteBucket(key []byte) ReadWriteBucket

	// CreateBucket creates and returns a new nested bucket, failing if it
	// already exists.
	CreateBucket(key []byte) (ReadWriteBucket, error)

	// CreateBucketIfNotExists creates the bucket if it is missing and
	// returns it either way.
	CreateBucketIfNotExists(key []byte) (ReadWriteBucket, error)

	// DeleteNestedBucket removes a nested bucket and everything in it.
	DeleteNestedBucket(key []byte) error

	// Put sets key to value, overwriting any existing value.
	Put(key, value []byte) error

	// Delete removes key, a no-op if it does not exist.
	Delete(key []byte) error
}

// ReadTx is a read-only database transaction.
type ReadTx interface {
	// ReadBucket retrieves a top-level bucket, or nil if it doesn't exist.
	ReadBucket(key []byte) ReadBucket

	// Rollback releases all resources held by the transaction.
	Rollback() error
}

// ReadWriteTx is a read-write database transaction.
type ReadWriteTx interface {
	ReadTx

	// ReadWriteBucket retrieves a top-level bucket for read-write use.
	ReadWriteBucket(key []byte) ReadWriteBucket

	// CreateTopLevelBucket creates a top-level bucket if it does not
	// already exist and returns it.
	CreateTopLevelBucket(key []byte) (ReadWriteBucket, error)

	// DeleteTopLevelBucket deletes a top-level bucket and everything
	// nested within it.
	DeleteTopLevelBucket(key []byte) error

	// Commit persists all changes made within the transaction.
	Commit() error
}

// DB is the handle applications hold on an opened wallet database.
type DB interface {
	// BeginReadTx starts a read-only transaction.
	BeginReadTx() (ReadTx, error)

	// BeginReadWriteTx starts a read-write transaction.
	BeginReadWriteTx() (ReadWriteTx, error)

	// View runs f within a read-only transaction, always rolling back.
	View(f func(tx ReadTx) error) error

	// Update runs f within a read-write transaction, committing on a nil
	// return and rolling back otherwise.
	Update(f func(tx ReadWriteTx) error) error

	// Close releases the database file and any in-memory resources.
	Close() error
}

// ErrBucketNotFound is returned when a named bucket does not exist and the
// operation does not implicitly create it.
var ErrBucketNotFound = fmt.Errorf("walletdb: bucket not found")

// ErrBucketExists is returned by CreateBucket when the bucket already exists.
var ErrBucketExists = fmt.Errorf("walletdb: bucket already exists")
