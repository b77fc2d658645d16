// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func newTestFSM(t *testing.T) (*FSM, *Config) {
	t.Helper()
	cfg := testHandshakeConfig()
	f := NewFSM(*cfg, NewWatchlist(), chainhash.Hash{}, nil)
	f.Initialize()
	outs := f.Drain()
	require.Len(t, outs, 1)
	require.Equal(t, "ready", outs[0].Event.Kind())
	return f, cfg
}

// encodeForPeer builds the raw wire bytes a remote peer would send us.
func encodeForPeer(t *testing.T, cfg *Config, msg wire.Message) []byte {
	t.Helper()
	b, err := encodeMessage(msg, cfg.ProtocolVersion, cfg.ChainParams.Net)
	require.NoError(t, err)
	return b
}

func TestFSMHandshakeOverTheWire(t *testing.T) {
	f, cfg := newTestFSM(t)
	id := NewPeerID(mustTCPAddr("192.168.1.5:8333"))

	f.Connected(id, Outbound)
	outs := f.Drain()
	require.Len(t, outs, 2) // PeerConnected event + our version write

	v := wire.NewMsgVersion(
		wire.NewNetAddressIPPort(localPlaceholderIP(), 0, cfg.RequiredServices),
		wire.NewNetAddressIPPort(localPlaceholderIP(), 0, 0),
		123456, 0,
	)
	v.Services = cfg.RequiredServices
	v.ProtocolVersion = int32(cfg.ProtocolVersion)
	v.Timestamp = cfg.Clock.Now()

	f.ReceivedBytes(id, encodeForPeer(t, cfg, v))
	outs = f.Drain()
	require.Len(t, outs, 1) // our verack

	f.ReceivedBytes(id, encodeForPeer(t, cfg, wire.NewMsgVerAck()))
	outs = f.Drain()
	require.NotEmpty(t, outs)
	// Negotiation fires first, before any sub-manager's follow-up traffic
	// (ping, getheaders, getcfheaders/getcfilters) queued behind it.
	require.Equal(t, "peer-negotiated", outs[0].Event.Kind())
	require.True(t, f.handshake.isNegotiated(id))
}

func TestFSMQueryCommand(t *testing.T) {
	f, _ := newTestFSM(t)

	reply := make(chan QueryResult, 1)
	f.Command(CommandQuery(reply))
	require.Empty(t, f.Drain())

	result := <-reply
	require.Equal(t, uint32(0), result.Tip)
	require.Equal(t, 0, result.Peers)
}

func TestFSMWatchCommandExtendsWatchlist(t *testing.T) {
	f, _ := newTestFSM(t)

	script := []byte{0x76, 0xa9, 0x14}
	f.Command(CommandWatch([][]byte{script}))
	require.True(t, f.watchlist.Contains(script))
}

func TestFSMSubmitTransactionWithNoPeersIsANoOp(t *testing.T) {
	f, _ := newTestFSM(t)

	tx := dummyTx(1000)
	f.Command(CommandSubmitTransaction(tx))
	require.Empty(t, f.Drain())
	require.True(t, f.inventory.isTracked(tx.TxHash()))
}
