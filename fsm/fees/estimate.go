// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fees computes per-block fee-rate summaries from the transactions a
// BlockMatched event surfaces, mirroring nakamoto_p2p::fsm::fees.
package fees

import "sort"

// Estimate is the low/median/high sat/vB summary for a block's watched,
// fee-computable transactions.
type Estimate struct {
	Low    uint64
	Median uint64
	High   uint64
}

// Estimator accumulates per-transaction fee rates for a single block and
// reduces them to an Estimate.
type Estimator struct {
	rates []uint64
}

// NewEstimator returns an empty Estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// AddTx records a fee-rate sample (in satoshis per vByte) for one
// transaction. Callers skip transactions whose input values are unknown,
// per the spec: fee computation requires input values, and the watchlist
// match only supplies those for watched spends.
func (e *Estimator) AddTx(feeSat int64, vsize int64) {
	if vsize <= 0 || feeSat < 0 {
		return
	}
	e.rates = append(e.rates, uint64(feeSat)/uint64(vsize))
}

// Len reports how many fee-rate samples have been recorded.
func (e *Estimator) Len() int { return len(e.rates) }

// Estimate reduces the recorded samples to their 25th/50th/75th percentiles,
// rounded to the nearest integer sat/vB. The second return value is false
// when there were no fee-computable transactions in the block.
func (e *Estimator) Estimate() (Estimate, bool) {
	if len(e.rates) == 0 {
		return Estimate{}, false
	}

	sorted := make([]uint64, len(e.rates))
	copy(sorted, e.rates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return Estimate{
		Low:    percentile(sorted, 25),
		Median: percentile(sorted, 50),
		High:   percentile(sorted, 75),
	}, true
}

// percentile returns the p-th percentile (0-100) of a sorted slice using
// linear interpolation between closest ranks, rounded to the nearest
// integer.
func percentile(sorted []uint64, p int) uint64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := float64(p) / 100 * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	interp := float64(sorted[lo]) + frac*float64(sorted[hi]-sorted[lo])
	return uint64(interp + 0.5)
}
