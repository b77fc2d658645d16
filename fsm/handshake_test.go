// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

func testHandshakeConfig() *Config {
	cfg := DefaultConfig()
	cfg.Clock = clock.NewTestClock(time.Unix(1700000000, 0))
	return &cfg
}

func mustTCPAddr(hostport string) *net.TCPAddr {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		panic(err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		panic(err)
	}
	return &net.TCPAddr{IP: net.ParseIP(host), Port: p}
}

func bytesReaderFrom(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func TestHandshakeFullNegotiation(t *testing.T) {
	cfg := testHandshakeConfig()
	out := &outputSink{}
	h := newHandshakeManager(cfg, out)

	id := NewPeerID(mustTCPAddr("192.168.1.5:8333"))
	now := cfg.Clock.Now()

	h.connected(id, Outbound, now)
	outs := out.drain()
	require.Len(t, outs, 2) // PeerConnected event, version write
	require.True(t, outs[0].IsEvent())
	require.True(t, outs[1].IsWrite())

	v := wire.NewMsgVersion(
		wire.NewNetAddressIPPort(localPlaceholderIP(), 0, cfg.RequiredServices),
		wire.NewNetAddressIPPort(localPlaceholderIP(), 0, 0),
		999, 0,
	)
	v.Services = cfg.RequiredServices
	v.ProtocolVersion = int32(cfg.ProtocolVersion)
	v.Timestamp = now

	h.onVersion(id, v, now)
	outs = out.drain()
	require.Len(t, outs, 1) // verack write (outbound peer: no reflected version)
	require.True(t, outs[0].IsWrite())

	h.onVerack(id, now)
	outs = out.drain()
	require.Len(t, outs, 1)
	require.True(t, outs[0].IsEvent())
	require.Equal(t, "peer-negotiated", outs[0].Event.Kind())
	require.True(t, h.isNegotiated(id))
}

func TestHandshakeDetectsSelfConnection(t *testing.T) {
	cfg := testHandshakeConfig()
	out := &outputSink{}
	h := newHandshakeManager(cfg, out)

	id := NewPeerID(mustTCPAddr("192.168.1.5:8333"))
	now := cfg.Clock.Now()

	h.connected(id, Outbound, now)
	connectOuts := out.drain()
	var ourNonce uint64
	for _, o := range connectOuts {
		if o.IsWrite() {
			_, msg, _, err := wire.ReadMessageWithEncodingN(
				bytesReaderFrom(o.Bytes), cfg.ProtocolVersion, cfg.ChainParams.Net, wire.WitnessEncoding,
			)
			require.NoError(t, err)
			ourNonce = msg.(*wire.MsgVersion).Nonce
		}
	}

	v := wire.NewMsgVersion(
		wire.NewNetAddressIPPort(localPlaceholderIP(), 0, cfg.RequiredServices),
		wire.NewNetAddressIPPort(localPlaceholderIP(), 0, 0),
		ourNonce, 0,
	)
	v.Timestamp = now

	h.onVersion(id, v, now)
	outs := out.drain()
	require.Len(t, outs, 1)
	require.True(t, outs[0].IsDisconnect())
	reason, ok := outs[0].Reason.IsProtocol()
	require.True(t, ok)
	require.Equal(t, SelfConnection(), reason)
}

func TestHandshakeRejectsEarlyVerack(t *testing.T) {
	cfg := testHandshakeConfig()
	out := &outputSink{}
	h := newHandshakeManager(cfg, out)

	id := NewPeerID(mustTCPAddr("192.168.1.5:8333"))
	now := cfg.Clock.Now()

	h.connected(id, Outbound, now)
	out.drain()

	h.onVerack(id, now)
	outs := out.drain()
	require.Len(t, outs, 1)
	require.True(t, outs[0].IsDisconnect())
}
