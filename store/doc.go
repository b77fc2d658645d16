// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store provides the on-disk collaborators the fsm package leaves
// external: a flat-file header store and a filter header/filter cache, each
// with an in-memory implementation for tests or ephemeral use.
package store

import "errors"

// ErrStorage wraps a fatal storage error, distinguishing it from a plain
// not-found result so the reactor can decide to terminate the process
// rather than retry.
var ErrStorage = errors.New("store: fatal storage error")
