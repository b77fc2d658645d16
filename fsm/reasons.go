// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import "fmt"

// ProtocolReason enumerates the peer-attributable reasons a connection can be
// torn down, mirroring the fsm::DisconnectReason kinds named in the spec.
type ProtocolReason struct {
	kind string
	// which names the timeout or score that triggered a PeerTimeout or
	// PeerMisbehaving reason.
	which string
	score int
}

func (r ProtocolReason) String() string {
	switch r.kind {
	case "peer-timeout":
		return fmt.Sprintf("timed out waiting for %s", r.which)
	case "peer-misbehaving":
		return fmt.Sprintf("misbehaving (score %d)", r.score)
	case "decode-error":
		return "malformed wire message"
	case "magic-mismatch":
		return "network magic mismatch"
	case "self-connection":
		return "self connection detected"
	case "duplicate-connection":
		return "duplicate connection"
	case "shutdown":
		return "shutdown"
	case "consensus-error":
		return fmt.Sprintf("consensus error: %s", r.which)
	case "protocol-error":
		return fmt.Sprintf("protocol error: %s", r.which)
	default:
		return r.kind
	}
}

// PeerTimeout builds a ProtocolReason for a handshake, ping or header-sync
// timeout; which identifies what we were waiting for ("handshake", "ping",
// "header sync"). Filter and block timeouts accrue strikes instead.
func PeerTimeout(which string) ProtocolReason {
	return ProtocolReason{kind: "peer-timeout", which: which}
}

// PeerMisbehaving builds a ProtocolReason for a peer that violated the
// protocol seriously enough to be penalized/disconnected, with a
// misbehavior score for logging/ban-scoring purposes.
func PeerMisbehaving(score int) ProtocolReason {
	return ProtocolReason{kind: "peer-misbehaving", score: score}
}

// DecodeError is returned when a wire message fails to parse.
func DecodeError() ProtocolReason { return ProtocolReason{kind: "decode-error"} }

// PeerMagicMismatch is returned when a peer's network magic doesn't match ours.
func PeerMagicMismatch() ProtocolReason { return ProtocolReason{kind: "magic-mismatch"} }

// SelfConnection is returned when our own outgoing nonce comes back to us.
func SelfConnection() ProtocolReason { return ProtocolReason{kind: "self-connection"} }

// DuplicateConnection is returned when we're already connected to this peer.
func DuplicateConnection() ProtocolReason { return ProtocolReason{kind: "duplicate-connection"} }

// Shutdown is emitted for every peer when the FSM is asked to shut down.
func Shutdown() ProtocolReason { return ProtocolReason{kind: "shutdown"} }

// ConsensusErrorReason is returned for invalid headers/filters from a peer.
func ConsensusErrorReason(detail string) ProtocolReason {
	return ProtocolReason{kind: "consensus-error", which: detail}
}

// ProtocolErrorReason is returned for well-formed but unexpected messages
// given the peer's current state (e.g. early verack).
func ProtocolErrorReason(detail string) ProtocolReason {
	return ProtocolReason{kind: "protocol-error", which: detail}
}

// DisconnectReason is the reason given to a Disconnect output and to the
// disconnected() callback. It mirrors nakamoto_net::DisconnectReason<T>: a
// peer-attributable protocol reason, or a dial/connection-level I/O error.
type DisconnectReason struct {
	kind     string
	protocol ProtocolReason
	err      error
}

func (d DisconnectReason) String() string {
	switch d.kind {
	case "dial-error":
		return fmt.Sprintf("dial error: %v", d.err)
	case "connection-error":
		return fmt.Sprintf("connection error: %v", d.err)
	default:
		return d.protocol.String()
	}
}

// DialError wraps an error that occurred before a connection was established.
func DialError(err error) DisconnectReason {
	return DisconnectReason{kind: "dial-error", err: err}
}

// ConnectionError wraps an error on an established connection.
func ConnectionError(err error) DisconnectReason {
	return DisconnectReason{kind: "connection-error", err: err}
}

// Protocol wraps a peer-attributable ProtocolReason.
func Protocol(reason ProtocolReason) DisconnectReason {
	return DisconnectReason{kind: "protocol", protocol: reason}
}

// IsDialError reports whether this is a DialError reason.
func (d DisconnectReason) IsDialError() bool { return d.kind == "dial-error" }

// IsConnectionError reports whether this is a ConnectionError reason.
func (d DisconnectReason) IsConnectionError() bool { return d.kind == "connection-error" }

// IsProtocol reports whether this is a Protocol reason, returning it.
func (d DisconnectReason) IsProtocol() (ProtocolReason, bool) {
	return d.protocol, d.kind == "protocol"
}
