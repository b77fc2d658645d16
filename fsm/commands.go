// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"net"

	"github.com/btcsuite/btcd/wire"
)

// Command is a user-level request forwarded synchronously to the relevant
// sub-manager; handling a Command always completes before FSM.Command
// returns, producing any resulting Outputs in the same drain.
type Command struct {
	kind string

	Addr        *net.TCPAddr
	Tx          *wire.MsgTx
	From, To    uint32
	Scripts     [][]byte
	QueryHeight uint32
	Reply       chan<- QueryResult
}

func (c Command) Kind() string { return c.kind }

// QueryResult is returned on the Reply channel of a Query command.
type QueryResult struct {
	Tip       uint32
	FilterTip uint32
	Peers     int
}

// CommandConnect asks the FSM to dial a new peer.
func CommandConnect(addr *net.TCPAddr) Command {
	return Command{kind: "connect", Addr: addr}
}

// CommandDisconnect asks the FSM to drop a peer.
func CommandDisconnect(addr *net.TCPAddr) Command {
	return Command{kind: "disconnect", Addr: addr}
}

// CommandSubmitTransaction asks the FSM to broadcast tx.
func CommandSubmitTransaction(tx *wire.MsgTx) Command {
	return Command{kind: "submit-transaction", Tx: tx}
}

// CommandRescan asks the FSM to re-test filters in [from, to] against the
// given scripts, in addition to whatever is already on the watchlist.
func CommandRescan(from, to uint32, scripts [][]byte) Command {
	return Command{kind: "rescan", From: from, To: to, Scripts: scripts}
}

// CommandWatch adds scripts to the watchlist.
func CommandWatch(scripts [][]byte) Command {
	return Command{kind: "watch", Scripts: scripts}
}

// CommandQuery asks for a snapshot of FSM state, delivered on reply.
func CommandQuery(reply chan<- QueryResult) Command {
	return Command{kind: "query", Reply: reply}
}

// CommandShutdown asks the FSM to disconnect every peer and stop.
func CommandShutdown() Command {
	return Command{kind: "shutdown"}
}
