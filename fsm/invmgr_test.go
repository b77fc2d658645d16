// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func dummyTx(value int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0}})
	tx.AddTxOut(&wire.TxOut{Value: value, PkScript: []byte{0x51}})
	return tx
}

func TestInventoryAnnouncesToNegotiatedPeers(t *testing.T) {
	cfg := testHandshakeConfig()
	out := &outputSink{}
	m := newInventoryManager(cfg, out)

	peerA := NewPeerID(mustTCPAddr("192.168.1.1:8333"))
	peerB := NewPeerID(mustTCPAddr("192.168.1.2:8333"))
	tx := dummyTx(50000)
	now := cfg.Clock.Now()

	m.submitTransaction(tx, []PeerID{peerA, peerB}, now)
	outs := out.drain()
	require.Len(t, outs, 2)
	for _, o := range outs {
		require.True(t, o.IsWrite())
		inv := decodeWritten(t, cfg, o).(*wire.MsgInv)
		require.Len(t, inv.InvList, 1)
		require.Equal(t, wire.InvTypeTx, inv.InvList[0].Type)
	}

	// Submitting the same transaction again is a no-op.
	m.submitTransaction(tx, []PeerID{peerA, peerB}, now)
	require.Empty(t, out.drain())
}

func TestInventoryRebroadcastOnlyAsksUnaskedPeers(t *testing.T) {
	cfg := testHandshakeConfig()
	out := &outputSink{}
	m := newInventoryManager(cfg, out)

	peerA := NewPeerID(mustTCPAddr("192.168.1.1:8333"))
	tx := dummyTx(50000)
	now := cfg.Clock.Now()

	m.submitTransaction(tx, []PeerID{peerA}, now)
	out.drain()

	// Before the rebroadcast interval elapses, nothing happens.
	m.rebroadcast([]PeerID{peerA}, now.Add(30*time.Second))
	require.Empty(t, out.drain())

	peerB := NewPeerID(mustTCPAddr("192.168.1.2:8333"))
	later := now.Add(cfg.RebroadcastInterval + time.Second)
	m.rebroadcast([]PeerID{peerA, peerB}, later)
	outs := out.drain()
	require.Len(t, outs, 1) // only the newly-seen peerB is asked
	require.Equal(t, peerB, outs[0].Peer)
}

func TestInventoryConfirmThenRevertResumesRebroadcast(t *testing.T) {
	cfg := testHandshakeConfig()
	out := &outputSink{}
	m := newInventoryManager(cfg, out)

	peerA := NewPeerID(mustTCPAddr("192.168.1.1:8333"))
	tx := dummyTx(50000)
	now := cfg.Clock.Now()

	m.submitTransaction(tx, []PeerID{peerA}, now)
	out.drain()

	txid := tx.TxHash()
	block := chainhash.Hash{0x01}
	status, ok := m.confirmed(txid, block, 100)
	require.True(t, ok)
	require.Equal(t, "confirmed", status.Kind)

	// Confirmed transactions are not rebroadcast.
	m.rebroadcast([]PeerID{peerA}, now.Add(time.Hour))
	require.Empty(t, out.drain())

	reverted := m.revertedInBlock(block)
	require.Equal(t, []chainhash.Hash{txid}, reverted)

	// Reverted transactions resume rebroadcast.
	later := now.Add(cfg.RebroadcastInterval + time.Hour)
	m.rebroadcast([]PeerID{peerA}, later)
	outs := out.drain()
	require.Len(t, outs, 1)
	require.True(t, outs[0].IsWrite())
}
