// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	"github.com/lanternwallet/spvd/fsm/fees"
)

// feeEstimatorManager computes a per-block fee-rate summary from the
// transactions surfaced by a BlockMatched event, per spec §4.8. It only
// knows the value of outputs that pay to a watched script, so any
// transaction spending an unknown input is skipped.
type feeEstimatorManager struct {
	out       *outputSink
	watchlist *Watchlist

	// knownOutputs remembers the value of every output we've seen pay to a
	// watched script, keyed by outpoint, so a later spend's fee rate is
	// computable.
	knownOutputs map[wire.OutPoint]int64
}

func newFeeEstimatorManager(out *outputSink, watchlist *Watchlist) *feeEstimatorManager {
	return &feeEstimatorManager{out: out, watchlist: watchlist, knownOutputs: make(map[wire.OutPoint]int64)}
}

// onBlockMatched records any watched outputs created in the block, then
// computes and emits a fee-rate summary over every transaction whose full
// input set is known.
func (m *feeEstimatorManager) onBlockMatched(blockHash chainhash.Hash, height uint32, txs []*wire.MsgTx) {
	for _, tx := range txs {
		txid := tx.TxHash()
		for i, out := range tx.TxOut {
			if m.watchlist.Contains(out.PkScript) {
				m.knownOutputs[wire.OutPoint{Hash: txid, Index: uint32(i)}] = out.Value
			}
		}
	}

	estimator := fees.NewEstimator()
	for _, tx := range txs {
		feeSat, vsize, ok := m.txFeeRate(tx)
		if !ok {
			continue
		}
		estimator.AddTx(feeSat, vsize)
	}

	if estimate, ok := estimator.Estimate(); ok {
		m.out.event(EventFeeEstimated(blockHash, height, estimate))
	}
}

// txFeeRate returns a transaction's total fee in satoshis and its virtual
// size, or false if any spent input's value is unknown.
func (m *feeEstimatorManager) txFeeRate(tx *wire.MsgTx) (feeSat int64, vsize int64, ok bool) {
	var totalIn, totalOut int64
	for _, in := range tx.TxIn {
		v, known := m.knownOutputs[in.PreviousOutPoint]
		if !known {
			return 0, 0, false
		}
		totalIn += v
	}
	for _, out := range tx.TxOut {
		totalOut += out.Value
	}

	feeSat = totalIn - totalOut
	if feeSat < 0 {
		return 0, 0, false
	}

	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
	vsize = (weight + 3) / 4
	return feeSat, vsize, true
}
