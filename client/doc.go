// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package client is the top-level facade wiring the fsm state machine, the
// reactor that drives its socket I/O, and the on-disk header/filter/
// transaction stores into a single handle a caller starts and stops. It owns
// the boundary between the I/O-free fsm.FSM and durable storage: every event
// that needs persisting crosses that boundary here, never inside fsm itself.
package client
