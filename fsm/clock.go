// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"github.com/btcsuite/btclog"
	"github.com/lightningnetwork/lnd/clock"
)

// log is the subsystem logger for fsm; it is a no-op until UseLogger is
// called by the importing application.
var log = btclog.Disabled

// UseLogger sets the logger used by the package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// fsmClock is the clock abstraction every sub-manager times out against.
// Production code uses clock.NewDefaultClock(); tests inject
// clock.NewTestClock(t) and advance it with SetTime, making every timeout in
// this package deterministic to simulate, per spec §9's "Clock injection"
// design note.
type fsmClock = clock.Clock
