// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package reactor is a reference implementation of the socket I/O event
// loop the fsm package leaves as an external collaborator (see fsm's
// package doc). It owns every net.Conn, is the sole caller into the fsm.FSM
// it drives, and translates Wakeup outputs into real timers. Nothing about
// its internals is part of the state machine's contract; a caller may swap
// in an entirely different reactor (e.g. for a simulated network in tests)
// as long as it drives fsm.FSM the same way.
package reactor
