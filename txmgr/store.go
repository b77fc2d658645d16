// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txmgr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"
	"github.com/lanternwallet/spvd/walletdb"
	"github.com/lightningnetwork/lnd/clock"
)

// log is the package subsystem logger; silent until UseLogger is called.
var log = btclog.Disabled

// UseLogger sets the logger used by the package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

var (
	bucketRecords = []byte("txmgr-records")
)

// Record is the persisted state of a single watched transaction.
type Record struct {
	Tx           *wire.MsgTx
	FirstSeen    time.Time
	Attempts     uint32
	Status       Status
	Confirmation Confirmation // valid only when Status == StatusConfirmed
}

// Txid returns the transaction's hash.
func (r *Record) Txid() chainhash.Hash {
	return r.Tx.TxHash()
}

// Store is a walletdb-backed persistence layer for watched transactions.
type Store struct {
	db    walletdb.DB
	clock clock.Clock
}

// Open opens (creating if necessary) the txmgr bucket inside db.
func Open(db walletdb.DB, clk clock.Clock) (*Store, error) {
	err := db.Update(func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(bucketRecords)
		return err
	})
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Store{db: db, clock: clk}, nil
}

// InsertBroadcast records a newly broadcast (or received) transaction as
// unconfirmed, with zero attempts. It is idempotent: re-inserting a known
// txid does not reset FirstSeen or Attempts.
func (s *Store) InsertBroadcast(tx *wire.MsgTx) error {
	txid := tx.TxHash()

	return s.db.Update(func(dbtx walletdb.ReadWriteTx) error {
		bucket := dbtx.ReadWriteBucket(bucketRecords)
		if bucket.Get(txid[:]) != nil {
			return nil
		}

		rec := &Record{
			Tx:        tx,
			FirstSeen: s.clock.Now(),
			Status:    StatusUnconfirmed,
		}
		buf, err := serializeRecord(rec)
		if err != nil {
			return err
		}
		return bucket.Put(txid[:], buf)
	})
}

// MarkAttempt increments the broadcast attempt counter for txid.
func (s *Store) MarkAttempt(txid chainhash.Hash) error {
	return s.mutate(txid, func(rec *Record) {
		rec.Attempts++
	})
}

// MarkConfirmed transitions txid to StatusConfirmed at the given block/height.
func (s *Store) MarkConfirmed(txid chainhash.Hash, block chainhash.Hash, height int32) error {
	return s.mutate(txid, func(rec *Record) {
		rec.Status = StatusConfirmed
		rec.Confirmation = Confirmation{Block: block, Height: height}
	})
}

// MarkReverted transitions txid back to StatusReverted after a re-org moved
// its confirming block off the active chain.
func (s *Store) MarkReverted(txid chainhash.Hash) error {
	return s.mutate(txid, func(rec *Record) {
		rec.Status = StatusReverted
		rec.Confirmation = Confirmation{}
	})
}

// MarkStale transitions txid to StatusStale.
func (s *Store) MarkStale(txid chainhash.Hash) error {
	return s.mutate(txid, func(rec *Record) {
		rec.Status = StatusStale
	})
}

// Remove deletes the record for txid, e.g. on user cancellation.
func (s *Store) Remove(txid chainhash.Hash) error {
	return s.db.Update(func(dbtx walletdb.ReadWriteTx) error {
		bucket := dbtx.ReadWriteBucket(bucketRecords)
		return bucket.Delete(txid[:])
	})
}

// Get returns the record for txid, or nil if unknown.
func (s *Store) Get(txid chainhash.Hash) (*Record, error) {
	var rec *Record
	err := s.db.View(func(dbtx walletdb.ReadTx) error {
		bucket := dbtx.ReadBucket(bucketRecords)
		raw := bucket.Get(txid[:])
		if raw == nil {
			return nil
		}
		var err error
		rec, err = deserializeRecord(raw)
		return err
	})
	return rec, err
}

// Pending returns every record whose status is Unconfirmed or Reverted,
// i.e. every transaction the inventory manager should keep rebroadcasting.
func (s *Store) Pending() ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(dbtx walletdb.ReadTx) error {
		bucket := dbtx.ReadBucket(bucketRecords)
		return bucket.ForEach(func(k, v []byte) error {
			if v == nil {
				return nil
			}
			rec, err := deserializeRecord(v)
			if err != nil {
				return err
			}
			if rec.Status == StatusUnconfirmed || rec.Status == StatusReverted {
				out = append(out, rec)
			}
			return nil
		})
	})
	return out, err
}

func (s *Store) mutate(txid chainhash.Hash, f func(rec *Record)) error {
	return s.db.Update(func(dbtx walletdb.ReadWriteTx) error {
		bucket := dbtx.ReadWriteBucket(bucketRecords)
		raw := bucket.Get(txid[:])
		if raw == nil {
			return fmt.Errorf("txmgr: unknown transaction %v", txid)
		}
		rec, err := deserializeRecord(raw)
		if err != nil {
			return err
		}
		f(rec)
		buf, err := serializeRecord(rec)
		if err != nil {
			return err
		}
		return bucket.Put(txid[:], buf)
	})
}

// serializeRecord encodes a Record as: raw tx bytes prefixed by their 4-byte
// little-endian length, 8-byte
// unix-nano FirstSeen, 4-byte Attempts, 1-byte Status, 32-byte block hash and
// 4-byte height (zero when not confirmed).
func serializeRecord(rec *Record) ([]byte, error) {
	var txBuf bytes.Buffer
	if err := rec.Tx.Serialize(&txBuf); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(txBuf.Len())); err != nil {
		return nil, err
	}
	buf.Write(txBuf.Bytes())
	binary.Write(&buf, binary.LittleEndian, rec.FirstSeen.UnixNano())
	binary.Write(&buf, binary.LittleEndian, rec.Attempts)
	buf.WriteByte(byte(rec.Status))
	buf.Write(rec.Confirmation.Block[:])
	binary.Write(&buf, binary.LittleEndian, rec.Confirmation.Height)

	return buf.Bytes(), nil
}

func deserializeRecord(raw []byte) (*Record, error) {
	r := bytes.NewReader(raw)

	var txLen uint32
	if err := binary.Read(r, binary.LittleEndian, &txLen); err != nil {
		return nil, err
	}
	txBytes := make([]byte, txLen)
	if _, err := r.Read(txBytes); err != nil {
		return nil, err
	}
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return nil, err
	}

	var firstSeenNano int64
	if err := binary.Read(r, binary.LittleEndian, &firstSeenNano); err != nil {
		return nil, err
	}

	var attempts uint32
	if err := binary.Read(r, binary.LittleEndian, &attempts); err != nil {
		return nil, err
	}

	status, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var block chainhash.Hash
	if _, err := r.Read(block[:]); err != nil {
		return nil, err
	}

	var height int32
	if err := binary.Read(r, binary.LittleEndian, &height); err != nil {
		return nil, err
	}

	return &Record{
		Tx:           tx,
		FirstSeen:    time.Unix(0, firstSeenNano).UTC(),
		Attempts:     attempts,
		Status:       Status(status),
		Confirmation: Confirmation{Block: block, Height: height},
	}, nil
}
