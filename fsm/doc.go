// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fsm implements the peer-to-peer finite-state machine at the heart
// of spvd: a deterministic, I/O-free core that ingests peer bytes, connection
// lifecycle callbacks, user commands and clock ticks, and emits outbound
// bytes, connect/disconnect requests, timer-wakeup requests and domain
// events.
//
// The FSM never performs I/O itself. It is driven by a reactor (see the
// top-level reactor package for a reference implementation) which owns all
// sockets, dialing, and timers, and which drains the FSM's output queue after
// every inbound call. This package intentionally imports neither "net" for
// dialing nor any concurrency primitive: every exported method on FSM is
// synchronous and runs to completion on the calling goroutine.
package fsm
