// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func decodeWritten(t *testing.T, cfg *Config, o Output) wire.Message {
	t.Helper()
	_, msg, _, err := wire.ReadMessageWithEncodingN(
		bytesReaderFrom(o.Bytes), cfg.ProtocolVersion, cfg.ChainParams.Net, wire.WitnessEncoding,
	)
	require.NoError(t, err)
	return msg
}

func TestPingTimeoutAfter31Seconds(t *testing.T) {
	cfg := testHandshakeConfig()
	out := &outputSink{}
	m := newPingManager(cfg, out)

	id := NewPeerID(mustTCPAddr("192.168.1.5:8333"))
	start := cfg.Clock.Now()

	m.peerNegotiated(id, start)
	outs := out.drain()
	require.Len(t, outs, 1)
	ping := decodeWritten(t, cfg, outs[0]).(*wire.MsgPing)

	// 29s is not yet a timeout (spec: >= ping_timeout).
	m.receivedWake(start.Add(29 * time.Second))
	require.Empty(t, out.drain())

	// 31s after the ping with no pong: timeout and disconnect.
	m.receivedWake(start.Add(31 * time.Second))
	outs = out.drain()
	require.Len(t, outs, 1)
	require.True(t, outs[0].IsDisconnect())
	reason, ok := outs[0].Reason.IsProtocol()
	require.True(t, ok)
	require.Equal(t, PeerTimeout("ping"), reason)
	_ = ping
}

func TestPingPongRecordsLatencyAndResetsIdle(t *testing.T) {
	cfg := testHandshakeConfig()
	out := &outputSink{}
	m := newPingManager(cfg, out)

	id := NewPeerID(mustTCPAddr("192.168.1.5:8333"))
	start := cfg.Clock.Now()

	m.peerNegotiated(id, start)
	outs := out.drain()
	ping := decodeWritten(t, cfg, outs[0]).(*wire.MsgPing)

	rtt := 150 * time.Millisecond
	m.receivedPong(id, ping.Nonce, start.Add(rtt))

	avg, ok := m.averageLatency(id)
	require.True(t, ok)
	require.Equal(t, rtt, avg)

	// A mismatched nonce pong is ignored and does not reset state.
	m.receivedPong(id, ping.Nonce+1, start.Add(time.Second))
	avg2, ok := m.averageLatency(id)
	require.True(t, ok)
	require.Equal(t, avg, avg2)
}

func TestPingAnswersIncomingPing(t *testing.T) {
	cfg := testHandshakeConfig()
	out := &outputSink{}
	m := newPingManager(cfg, out)

	id := NewPeerID(mustTCPAddr("192.168.1.5:8333"))
	m.peerNegotiated(id, cfg.Clock.Now())
	out.drain()

	m.receivedPing(id, 42)
	outs := out.drain()
	require.Len(t, outs, 1)
	pong := decodeWritten(t, cfg, outs[0]).(*wire.MsgPong)
	require.Equal(t, uint64(42), pong.Nonce)
}
