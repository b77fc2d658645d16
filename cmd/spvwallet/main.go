// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command spvwallet is a minimal SPV wallet built on the fsm/reactor/client
// stack: it watches a set of addresses (literal or HD-derived from an
// extended public key), syncs headers and BIP-157 compact filters against
// one or more peers, and reports matching transactions.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/lanternwallet/spvd/client"
	"github.com/lanternwallet/spvd/fsm"
	"github.com/lanternwallet/spvd/reactor"
	"github.com/lanternwallet/spvd/store"
	"github.com/lanternwallet/spvd/txmgr"
	"github.com/lanternwallet/spvd/walletdb"
	"github.com/lightningnetwork/lnd/clock"
)

func main() {
	if err := run(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		return err
	}

	if err := initLogRotator(opts.logFilePath()); err != nil {
		return err
	}
	level := "info"
	if opts.Debug {
		level = "debug"
	}
	setLogLevels(level)

	params, err := opts.chainParams()
	if err != nil {
		return err
	}

	bootstrap, err := opts.bootstrapAddrs()
	if err != nil {
		return err
	}
	bootstrapPeers := make([]fsm.PeerID, len(bootstrap))
	for i, addr := range bootstrap {
		bootstrapPeers[i] = fsm.NewPeerID(addr)
	}

	watchlist := fsm.NewWatchlist()
	scripts, err := opts.watchScripts(params)
	if err != nil {
		return err
	}
	watchlist.Add(scripts)

	genesisFilterHeader, err := fsm.GenesisFilterHeader(params)
	if err != nil {
		return fmt.Errorf("deriving genesis filter header: %w", err)
	}

	headers, err := store.OpenFileHeaderStore(opts.headerStorePath())
	if err != nil {
		return fmt.Errorf("opening header store: %w", err)
	}
	defer headers.Close()

	filters, err := store.OpenFileFilterStore(opts.filterStorePath(), genesisFilterHeader, 4096)
	if err != nil {
		return fmt.Errorf("opening filter store: %w", err)
	}
	defer filters.Close()

	db, err := walletdb.Open(opts.walletDBPath())
	if err != nil {
		return fmt.Errorf("opening wallet database: %w", err)
	}
	defer db.Close()
	txStore, err := txmgr.Open(db, clock.NewDefaultClock())
	if err != nil {
		return fmt.Errorf("opening transaction store: %w", err)
	}

	fsmCfg := fsm.DefaultConfig()
	fsmCfg.ChainParams = params

	reactorCfg := reactor.DefaultConfig().WithPlainDialer()
	reactorCfg.Bootstrap = bootstrap
	reactorCfg.ListenAddr = opts.Listen

	cfg := client.Config{
		FSM:                 fsmCfg,
		Reactor:             reactorCfg,
		GenesisFilterHeader: genesisFilterHeader,
		Bootstrap:           bootstrapPeers,
		Watchlist:           watchlist,
		Headers:             headers,
		Filters:             filters,
		Transactions:        txStore,
	}

	c, err := client.New(cfg)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	if err := c.Start(); err != nil {
		return fmt.Errorf("starting client: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	stopEvents := make(chan struct{})
	done := make(chan struct{})
	go logEvents(c, stopEvents, done)

	<-sigCh
	log.Infof("Shutdown requested")
	c.Shutdown()
	c.Stop()
	close(stopEvents)
	<-done

	return nil
}

// logEvents logs every event from c.Events() until stop is closed, then
// signals done. Client.Events() is never closed by Client.Stop, so this
// loop owns its own exit signal rather than ranging over the channel.
func logEvents(c *client.Client, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev := <-c.Events():
			switch ev.Kind() {
			case "block-connected":
				log.Infof("Connected block %d: %s", ev.BlockHeight, ev.Hash)
			case "block-disconnected":
				log.Infof("Disconnected block %d: %s", ev.BlockHeight, ev.Hash)
			case "tx-status-changed":
				log.Infof("Transaction %s status: %s", ev.Txid, ev.Status.Kind)
			}
		case <-stop:
			return
		}
	}
}
