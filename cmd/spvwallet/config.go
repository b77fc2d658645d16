// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jessevdk/go-flags"
	"github.com/lanternwallet/spvd/walletkeys"
)

const (
	defaultDataDirname = "spvwallet"
	defaultLogFilename = "spvwallet.log"
)

// options is the full set of flags spvwallet accepts, named after the
// wallet this was ported from: watch a set of addresses (literal or
// HD-derived) from a given birth height, talking to one or more peers.
type options struct {
	Addresses   []string `long:"addresses" description:"watch the given address (may be repeated)"`
	BirthHeight uint32   `long:"birth-height" description:"wallet birth height (parsed but not used; scanning starts at height 0)"`
	Connect     []string `long:"connect" description:"connect only to the given peer(s) (host:port, may be repeated)"`
	Wallet      string   `long:"wallet" description:"path to the file holding the account extended public key"`
	HDPath      string   `long:"hd-path" description:"wallet derivation path, e.g. m/84'/0'/0'" default:"m/84'/0'/0'"`

	DataDir string `long:"datadir" description:"directory to store headers, filters and transaction history"`
	Network string `long:"network" description:"mainnet, testnet3, regtest or signet" default:"mainnet"`
	Listen  string `long:"listen" description:"accept inbound connections on this address, in addition to dialing out"`

	Debug bool `long:"debug" description:"enable debug logging"`
}

// parseOptions parses argv, applies defaults that depend on other flags, and
// creates the data directory.
func parseOptions(argv []string) (*options, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(argv); err != nil {
		return nil, err
	}

	if opts.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		opts.DataDir = filepath.Join(home, "."+defaultDataDirname)
	}
	if err := os.MkdirAll(opts.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", opts.DataDir, err)
	}

	return &opts, nil
}

// chainParams resolves the --network flag into the matching chaincfg.Params.
func (o *options) chainParams() (*chaincfg.Params, error) {
	switch o.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown --network %q", o.Network)
	}
}

// bootstrapAddrs resolves every --connect value into a *net.TCPAddr.
func (o *options) bootstrapAddrs() ([]*net.TCPAddr, error) {
	addrs := make([]*net.TCPAddr, 0, len(o.Connect))
	for _, hostport := range o.Connect {
		host, port, err := net.SplitHostPort(hostport)
		if err != nil {
			return nil, fmt.Errorf("parsing --connect %q: %w", hostport, err)
		}
		ips, err := net.LookupIP(host)
		if err != nil {
			return nil, fmt.Errorf("resolving --connect host %q: %w", host, err)
		}
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
			return nil, fmt.Errorf("parsing --connect port %q: %w", hostport, err)
		}
		addrs = append(addrs, &net.TCPAddr{IP: ips[0], Port: p})
	}
	return addrs, nil
}

// watchScripts resolves --wallet/--hd-path into a gap-limited set of
// derived output scripts, and --addresses into their literal scripts.
func (o *options) watchScripts(params *chaincfg.Params) ([][]byte, error) {
	var scripts [][]byte

	if o.Wallet != "" {
		xpub, err := walletkeys.LoadXPub(o.Wallet)
		if err != nil {
			return nil, fmt.Errorf("loading wallet %s: %w", o.Wallet, err)
		}
		path, err := walletkeys.ParsePath(o.HDPath)
		if err != nil {
			return nil, fmt.Errorf("parsing --hd-path %q: %w", o.HDPath, err)
		}
		source, err := walletkeys.NewSource(xpub, path, params)
		if err != nil {
			return nil, fmt.Errorf("deriving from wallet %s: %w", o.Wallet, err)
		}
		derived, err := source.DeriveGap()
		if err != nil {
			return nil, fmt.Errorf("deriving watch scripts: %w", err)
		}
		scripts = append(scripts, derived...)
	}

	for _, addr := range o.Addresses {
		script, err := walletkeys.AddressToScript(addr, params)
		if err != nil {
			return nil, fmt.Errorf("parsing --addresses %q: %w", addr, err)
		}
		scripts = append(scripts, script)
	}

	return scripts, nil
}

func (o *options) headerStorePath() string {
	return filepath.Join(o.DataDir, "headers.dat")
}

func (o *options) filterStorePath() string {
	return filepath.Join(o.DataDir, "filters.dat")
}

func (o *options) walletDBPath() string {
	return filepath.Join(o.DataDir, "wallet.db")
}

func (o *options) logFilePath() string {
	return filepath.Join(o.DataDir, "logs", defaultLogFilename)
}
