// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txmgr

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lanternwallet/spvd/walletdb"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

func dummyTx() *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0},
	})
	tx.AddTxOut(&wire.TxOut{Value: 5000, PkScript: []byte{0x51}})
	return tx
}

func TestInsertBroadcastIsIdempotent(t *testing.T) {
	db := walletdb.OpenMem()
	store, err := Open(db, clock.NewTestClock(clock.NewDefaultClock().Now()))
	require.NoError(t, err)

	tx := dummyTx()
	require.NoError(t, store.InsertBroadcast(tx))
	require.NoError(t, store.InsertBroadcast(tx))

	rec, err := store.Get(tx.TxHash())
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, StatusUnconfirmed, rec.Status)
	require.Equal(t, uint32(0), rec.Attempts)
}

func TestConfirmAndRevert(t *testing.T) {
	db := walletdb.OpenMem()
	store, err := Open(db, nil)
	require.NoError(t, err)

	tx := dummyTx()
	require.NoError(t, store.InsertBroadcast(tx))
	require.NoError(t, store.MarkAttempt(tx.TxHash()))

	block := chainhash.Hash{0x01}
	require.NoError(t, store.MarkConfirmed(tx.TxHash(), block, 210))

	rec, err := store.Get(tx.TxHash())
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, rec.Status)
	require.Equal(t, int32(210), rec.Confirmation.Height)
	require.Equal(t, uint32(1), rec.Attempts)

	pending, err := store.Pending()
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, store.MarkReverted(tx.TxHash()))
	rec, err = store.Get(tx.TxHash())
	require.NoError(t, err)
	require.Equal(t, StatusReverted, rec.Status)

	pending, err = store.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, tx.TxHash(), pending[0].Txid())
}

func TestRemove(t *testing.T) {
	db := walletdb.OpenMem()
	store, err := Open(db, nil)
	require.NoError(t, err)

	tx := dummyTx()
	require.NoError(t, store.InsertBroadcast(tx))
	require.NoError(t, store.Remove(tx.TxHash()))

	rec, err := store.Get(tx.TxHash())
	require.NoError(t, err)
	require.Nil(t, rec)
}
