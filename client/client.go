// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"
	"github.com/lanternwallet/spvd/fsm"
	"github.com/lanternwallet/spvd/reactor"
	"github.com/lanternwallet/spvd/store"
	"github.com/lanternwallet/spvd/txmgr"
)

// log is the package subsystem logger; silent until UseLogger is called.
var log = btclog.Disabled

// UseLogger sets the logger used by the package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Client is the top-level handle a caller starts, feeds commands to and
// receives events from. It owns the fsm.FSM, the reactor driving it, and the
// glue that persists the parts of fsm state that must survive a restart.
type Client struct {
	cfg     Config
	machine *fsm.FSM
	reactor *reactor.Reactor

	events chan fsm.Event
	quit   chan struct{}
	wg     sync.WaitGroup
}

// New builds a Client from cfg, replaying any headers and filter headers
// already present in cfg.Headers/cfg.Filters into the fresh fsm.FSM so a
// restarted process resumes near its previous tip instead of genesis.
func New(cfg Config) (*Client, error) {
	if cfg.Headers == nil {
		return nil, fmt.Errorf("client: Config.Headers must not be nil")
	}
	if cfg.Filters == nil {
		return nil, fmt.Errorf("client: Config.Filters must not be nil")
	}
	if cfg.Watchlist == nil {
		cfg.Watchlist = fsm.NewWatchlist()
	}

	machine := fsm.NewFSM(cfg.FSM, cfg.Watchlist, cfg.GenesisFilterHeader, cfg.Bootstrap)

	if _, ok := cfg.Headers.Tip(); !ok {
		genesis := cfg.FSM.ChainParams.GenesisBlock.Header
		if err := cfg.Headers.Append(0, genesis); err != nil {
			return nil, fmt.Errorf("client: seeding genesis header: %w", err)
		}
	}

	if err := replayHeaders(machine, cfg.Headers); err != nil {
		return nil, fmt.Errorf("client: replaying headers: %w", err)
	}
	replayFilterHeaders(machine, cfg.Filters)

	return &Client{
		cfg:     cfg,
		machine: machine,
		reactor: reactor.New(cfg.Reactor, machine),
		events:  make(chan fsm.Event, 256),
		quit:    make(chan struct{}),
	}, nil
}

// replayHeaders feeds every header from height 1 up to the store's tip
// (height 0, genesis, is already seeded inside fsm.NewFSM) back into the
// chain, in order, so re-org/difficulty validation runs exactly as it did
// the first time these headers were accepted.
func replayHeaders(machine *fsm.FSM, headers store.HeaderStore) error {
	tip, ok := headers.Tip()
	if !ok {
		return nil
	}
	for height := uint32(1); height <= tip; height++ {
		header, err := headers.Header(height)
		if err != nil {
			return fmt.Errorf("reading header at height %d: %w", height, err)
		}
		if err := machine.ReplayHeader(header); err != nil {
			return fmt.Errorf("replaying header at height %d: %w", height, err)
		}
	}
	return nil
}

// replayFilterHeaders restores every verified filter header from the store
// (height 0 is already seeded inside fsm.NewFSM via GenesisFilterHeader).
func replayFilterHeaders(machine *fsm.FSM, filters store.FilterStore) {
	tip := filters.Tip()
	for height := uint32(1); height <= tip; height++ {
		header, ok := filters.HeaderAt(height)
		if !ok {
			continue
		}
		machine.ReplayFilterHeader(height, header)
	}
}

// Start brings the reactor up and begins persisting events as they arrive.
func (c *Client) Start() error {
	log.Infof("Starting client")
	c.wg.Add(1)
	go c.eventLoop()

	if err := c.reactor.Start(); err != nil {
		close(c.quit)
		c.wg.Wait()
		return err
	}
	return nil
}

// Stop shuts the reactor down and waits for the event loop to drain.
func (c *Client) Stop() {
	log.Infof("Stopping client")
	c.reactor.Stop()
	close(c.quit)
	c.wg.Wait()
}

// Events returns the channel every fsm.Event is forwarded on. Callers must
// keep draining it.
func (c *Client) Events() <-chan fsm.Event { return c.events }

// Watch adds scripts to the watchlist so future filters are matched against
// them; it does not rescan already-synced filters for past matches.
func (c *Client) Watch(scripts [][]byte) {
	c.submit(fsm.CommandWatch(scripts))
}

// Rescan adds scripts to the watchlist and re-requests filters/blocks from
// height from through to, to catch matches in already-synced history.
func (c *Client) Rescan(from, to uint32, scripts [][]byte) {
	c.submit(fsm.CommandRescan(from, to, scripts))
}

// SubmitTransaction broadcasts tx to every negotiated peer and records it in
// the transaction store (if configured) as unconfirmed.
func (c *Client) SubmitTransaction(tx *wire.MsgTx) error {
	if c.cfg.Transactions != nil {
		if err := c.cfg.Transactions.InsertBroadcast(tx); err != nil {
			return fmt.Errorf("client: recording broadcast: %w", err)
		}
	}
	c.submit(fsm.CommandSubmitTransaction(tx))
	return nil
}

// Connect asks the reactor to dial addr.
func (c *Client) Connect(addr *net.TCPAddr) {
	c.submit(fsm.CommandConnect(addr))
}

// Disconnect asks the reactor to tear down the connection to addr, if any.
func (c *Client) Disconnect(addr *net.TCPAddr) {
	c.submit(fsm.CommandDisconnect(addr))
}

// Query returns a snapshot of the FSM's current tip/filter-tip/peer count.
func (c *Client) Query(ctx context.Context) (fsm.QueryResult, error) {
	reply := make(chan fsm.QueryResult, 1)
	c.submit(fsm.CommandQuery(reply))

	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return fsm.QueryResult{}, ctx.Err()
	case <-c.quit:
		return fsm.QueryResult{}, fmt.Errorf("client: stopped")
	}
}

// Shutdown asks every negotiated peer to be disconnected cleanly, ahead of a
// call to Stop.
func (c *Client) Shutdown() {
	c.submit(fsm.CommandShutdown())
}

func (c *Client) submit(cmd fsm.Command) {
	select {
	case c.reactor.Commands() <- cmd:
	case <-c.quit:
	}
}

// eventLoop persists the subset of fsm.Event that represents durable state
// (headers, filter headers, transaction status) and forwards every event on
// to Events(), in order.
func (c *Client) eventLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.quit:
			return

		case ev, ok := <-c.reactor.Events():
			if !ok {
				return
			}
			c.persist(ev)

			select {
			case c.events <- ev:
			case <-c.quit:
				return
			}
		}
	}
}

func (c *Client) persist(ev fsm.Event) {
	switch ev.Kind() {
	case "block-connected":
		if err := c.cfg.Headers.Append(ev.BlockHeight, ev.Header); err != nil {
			log.Errorf("Persisting header at height %d: %v", ev.BlockHeight, err)
		}

	case "block-disconnected":
		if ev.BlockHeight == 0 {
			return
		}
		if err := c.cfg.Headers.Truncate(ev.BlockHeight - 1); err != nil {
			log.Errorf("Truncating headers to height %d: %v", ev.BlockHeight-1, err)
		}
		c.cfg.Filters.Invalidate(ev.BlockHeight)

	case "filter-header-verified":
		if err := c.cfg.Filters.PutHeader(ev.BlockHeight, ev.FilterHeader); err != nil {
			log.Errorf("Persisting filter header at height %d: %v", ev.BlockHeight, err)
		}

	case "tx-status-changed":
		if c.cfg.Transactions == nil {
			return
		}
		if err := applyTxStatus(c.cfg.Transactions, ev.Txid, ev.Status); err != nil {
			log.Errorf("Updating transaction %s: %v", ev.Txid, err)
		}
	}
}

func applyTxStatus(txs *txmgr.Store, txid chainhash.Hash, status fsm.TxStatus) error {
	switch status.Kind {
	case "confirmed":
		return txs.MarkConfirmed(txid, status.Block, status.Height)
	case "reverted":
		return txs.MarkReverted(txid)
	case "stale":
		return txs.MarkStale(txid)
	}
	return nil
}
