// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/lanternwallet/spvd/client"
	"github.com/lanternwallet/spvd/fsm"
	"github.com/lanternwallet/spvd/reactor"
	"github.com/lanternwallet/spvd/txmgr"
	"github.com/lanternwallet/spvd/walletdb"
)

// logRotator writes logs to stdout and a rotated file simultaneously; it is
// assigned by initLogRotator and used by the backend's write hook.
var logRotator *rotator.Rotator

// backendLog is the root of every subsystem logger spvwallet creates.
var backendLog = btclog.NewBackend(logWriter{})

// log is spvwallet's own subsystem logger, for lifecycle/shutdown messages.
var log = backendLog.Logger("SPVW")

// subsystemLoggers maps each subsystem tag to the package UseLogger hook it
// feeds, so setLogLevels can toggle all of them together.
var subsystemLoggers = map[string]func(btclog.Logger){
	"FSMG": fsm.UseLogger,
	"RCTR": reactor.UseLogger,
	"CLNT": client.UseLogger,
	"TXMG": txmgr.UseLogger,
	"WDB":  walletdb.UseLogger,
}

type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// initLogRotator opens (creating any missing directories) the rotated log
// file at logFile.
func initLogRotator(logFile string) error {
	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("creating log rotator: %w", err)
	}
	logRotator = r
	return nil
}

// setLogLevels assigns level (e.g. "debug" or "info") to every subsystem.
func setLogLevels(level string) {
	lvl, _ := btclog.LevelFromString(level)
	log.SetLevel(lvl)
	for tag, use := range subsystemLoggers {
		logger := backendLog.Logger(tag)
		logger.SetLevel(lvl)
		use(logger)
	}
}
