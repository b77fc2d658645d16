// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import "time"

// Output is one action the reactor must carry out: write bytes to a peer,
// dial a peer, drop a peer, schedule a wakeup, or deliver an event to
// subscribers. Outputs generated by a single inbound call are queued in
// generation order and must be drained/applied in that order.
type Output struct {
	kind string

	Peer     PeerID
	Bytes    []byte
	Reason   DisconnectReason
	Duration time.Duration
	Event    Event
}

func (o Output) Kind() string { return o.kind }

// outputWrite builds a Write output.
func outputWrite(peer PeerID, payload []byte) Output {
	return Output{kind: "write", Peer: peer, Bytes: payload}
}

// outputConnect builds a Connect output.
func outputConnect(peer PeerID) Output {
	return Output{kind: "connect", Peer: peer}
}

// outputDisconnect builds a Disconnect output.
func outputDisconnect(peer PeerID, reason DisconnectReason) Output {
	return Output{kind: "disconnect", Peer: peer, Reason: reason}
}

// outputWakeup builds a Wakeup output.
func outputWakeup(after time.Duration) Output {
	return Output{kind: "wakeup", Duration: after}
}

// outputEvent builds an Event output.
func outputEvent(event Event) Output {
	return Output{kind: "event", Event: event}
}

// IsWrite, IsConnect, IsDisconnect, IsWakeup and IsEvent classify an Output.
func (o Output) IsWrite() bool      { return o.kind == "write" }
func (o Output) IsConnect() bool    { return o.kind == "connect" }
func (o Output) IsDisconnect() bool { return o.kind == "disconnect" }
func (o Output) IsWakeup() bool     { return o.kind == "wakeup" }
func (o Output) IsEvent() bool      { return o.kind == "event" }

// outputSink is the shared, append-only FIFO every sub-manager writes
// Outputs into. It is a thin queue, not a channel: no sub-manager blocks on
// it, and the FSM dispatcher alone drains it after an inbound call returns.
type outputSink struct {
	queue []Output
}

func (s *outputSink) write(peer PeerID, payload []byte) {
	s.queue = append(s.queue, outputWrite(peer, payload))
}

func (s *outputSink) connect(peer PeerID) {
	s.queue = append(s.queue, outputConnect(peer))
}

func (s *outputSink) disconnect(peer PeerID, reason DisconnectReason) {
	s.queue = append(s.queue, outputDisconnect(peer, reason))
}

func (s *outputSink) wakeup(after time.Duration) {
	s.queue = append(s.queue, outputWakeup(after))
}

func (s *outputSink) event(event Event) {
	s.queue = append(s.queue, outputEvent(event))
}

// drain removes and returns all currently queued outputs, in generation
// order.
func (s *outputSink) drain() []Output {
	out := s.queue
	s.queue = nil
	return out
}
