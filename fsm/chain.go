// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// medianTimeBlocks is how many of the most recent ancestors are used to
// compute a block's median-time-past, per Bitcoin consensus rules.
const medianTimeBlocks = 11

// maxFutureBlockTime bounds how far into the future (relative to the caller
// supplied "now") a header's timestamp may be.
const maxFutureBlockTime = 2 * time.Hour

// headerNode is one entry in the header tree.
type headerNode struct {
	header  wire.BlockHeader
	hash    chainhash.Hash
	height  uint32
	parent  *headerNode
	workSum *big.Int
	seq     uint64 // insertion order, for first-seen tie-breaks
}

// ReorgInfo describes an active-tip move, in event-emission order: the
// blocks to disconnect (highest height first, down to but excluding the
// fork point) followed by the blocks to connect (fork point + 1 up to the
// new tip).
type ReorgInfo struct {
	ForkHeight  uint32
	Disconnect  []*headerNode
	Connect     []*headerNode
	OldTipHash   chainhash.Hash
	OldTipHeight uint32
}

// HeaderChain is the in-memory, I/O-free validated header tree plus active
// tip, per spec §3 and §4.9. Every consensus check (PoW, timestamp,
// retarget, version) happens in Insert; a rejected header never mutates the
// chain.
type HeaderChain struct {
	params  *chaincfg.Params
	nodes   map[chainhash.Hash]*headerNode
	active  map[uint32]chainhash.Hash // height -> hash, active chain only
	tip     *headerNode
	nextSeq uint64
}

// NewHeaderChain creates a chain seeded with the network's genesis block.
func NewHeaderChain(params *chaincfg.Params) *HeaderChain {
	genesisHeader := params.GenesisBlock.Header
	hash := params.GenesisBlock.BlockHash()

	genesis := &headerNode{
		header:  genesisHeader,
		hash:    hash,
		height:  0,
		workSum: calcWork(genesisHeader.Bits),
	}

	c := &HeaderChain{
		params: params,
		nodes:  map[chainhash.Hash]*headerNode{hash: genesis},
		active: map[uint32]chainhash.Hash{0: hash},
		tip:    genesis,
	}
	return c
}

// Tip returns the active chain's tip hash and height.
func (c *HeaderChain) Tip() (chainhash.Hash, uint32) {
	return c.tip.hash, c.tip.height
}

// Header returns the stored header for hash, if any.
func (c *HeaderChain) Header(hash chainhash.Hash) (wire.BlockHeader, bool) {
	n, ok := c.nodes[hash]
	if !ok {
		return wire.BlockHeader{}, false
	}
	return n.header, true
}

// HeightOf returns the active-chain height of hash, if it is on the active
// chain.
func (c *HeaderChain) HeightOf(hash chainhash.Hash) (uint32, bool) {
	n, ok := c.nodes[hash]
	if !ok || !c.onActiveChain(n) {
		return 0, false
	}
	return n.height, true
}

// HashAt returns the active-chain hash at height.
func (c *HeaderChain) HashAt(height uint32) (chainhash.Hash, bool) {
	h, ok := c.active[height]
	return h, ok
}

func (c *HeaderChain) onActiveChain(n *headerNode) bool {
	h, ok := c.active[n.height]
	return ok && h == n.hash
}

// Locator builds a reverse-exponential sample of active-chain hashes,
// starting at the tip, suitable for a getheaders request.
func (c *HeaderChain) Locator() []chainhash.Hash {
	var hashes []chainhash.Hash
	step := uint32(1)
	height := c.tip.height

	for {
		hashes = append(hashes, c.active[height])
		if height == 0 {
			break
		}
		if len(hashes) >= 10 {
			step *= 2
		}
		if height < step {
			height = 0
		} else {
			height -= step
		}
	}
	return hashes
}

// Insert validates and connects header into the tree. now is the caller's
// current local time (network-adjusted median time is the caller's
// responsibility to compute and pass via the clock package; this method
// only enforces the +2h future bound against it, per spec §3/§4.9). A
// non-nil ReorgInfo is returned only when the active tip actually moved.
func (c *HeaderChain) Insert(header wire.BlockHeader, now time.Time) (*ReorgInfo, error) {
	hash := header.BlockHash()
	if _, exists := c.nodes[hash]; exists {
		return nil, nil // idempotent replay, per spec's header-idempotence property
	}

	parent, ok := c.nodes[header.PrevBlock]
	if !ok {
		return nil, fmt.Errorf("fsm: header %s has unknown parent %s", hash, header.PrevBlock)
	}

	if err := c.checkProofOfWork(header, hash); err != nil {
		return nil, err
	}
	if err := c.checkTimestamp(header, parent, now); err != nil {
		return nil, err
	}
	if err := c.checkDifficultyRetarget(header, parent); err != nil {
		return nil, err
	}
	if header.Version < 1 {
		return nil, fmt.Errorf("fsm: header %s has invalid version %d", hash, header.Version)
	}

	c.nextSeq++
	node := &headerNode{
		header:  header,
		hash:    hash,
		height:  parent.height + 1,
		parent:  parent,
		workSum: new(big.Int).Add(parent.workSum, calcWork(header.Bits)),
		seq:     c.nextSeq,
	}
	c.nodes[hash] = node

	if !c.isBetterChain(node) {
		return nil, nil
	}
	return c.reorganize(node), nil
}

// isBetterChain reports whether candidate should become the new tip: more
// cumulative work, or equal work and first-seen earlier.
func (c *HeaderChain) isBetterChain(candidate *headerNode) bool {
	cmp := candidate.workSum.Cmp(c.tip.workSum)
	if cmp != 0 {
		return cmp > 0
	}
	return candidate.seq < c.tip.seq
}

// reorganize moves the active tip to newTip, returning the disconnect/
// connect event ordering, and rebuilds the active-chain height index.
func (c *HeaderChain) reorganize(newTip *headerNode) *ReorgInfo {
	oldTip := c.tip

	// Walk both chains back to their common ancestor.
	a, b := oldTip, newTip
	for a.height > b.height {
		a = a.parent
	}
	for b.height > a.height {
		b = b.parent
	}
	for a.hash != b.hash {
		a = a.parent
		b = b.parent
	}
	fork := a

	var disconnect []*headerNode
	for n := oldTip; n.height > fork.height; n = n.parent {
		disconnect = append(disconnect, n)
	}

	var connect []*headerNode
	for n := newTip; n.height > fork.height; n = n.parent {
		connect = append(connect, n)
	}
	sort.Slice(connect, func(i, j int) bool { return connect[i].height < connect[j].height })

	for height := range c.active {
		if height > fork.height {
			delete(c.active, height)
		}
	}
	for _, n := range connect {
		c.active[n.height] = n.hash
	}

	c.tip = newTip

	return &ReorgInfo{
		ForkHeight:   fork.height,
		Disconnect:   disconnect,
		Connect:      connect,
		OldTipHash:   oldTip.hash,
		OldTipHeight: oldTip.height,
	}
}

func (c *HeaderChain) checkProofOfWork(header wire.BlockHeader, hash chainhash.Hash) error {
	target := blockchain.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return fmt.Errorf("fsm: header %s has non-positive target", hash)
	}
	if target.Cmp(blockchain.CompactToBig(c.params.PowLimitBits)) > 0 {
		return fmt.Errorf("fsm: header %s target exceeds pow limit", hash)
	}

	hashNum := blockchain.HashToBig(&hash)
	if hashNum.Cmp(target) > 0 {
		return fmt.Errorf("fsm: header %s does not meet its target difficulty", hash)
	}
	return nil
}

func (c *HeaderChain) checkTimestamp(header wire.BlockHeader, parent *headerNode, now time.Time) error {
	if header.Timestamp.After(now.Add(maxFutureBlockTime)) {
		return fmt.Errorf("fsm: header timestamp too far in the future")
	}
	mtp := c.medianTimePast(parent)
	if !header.Timestamp.After(mtp) {
		return fmt.Errorf("fsm: header timestamp is not after median-time-past")
	}
	return nil
}

// medianTimePast computes the median timestamp of the most recent
// medianTimeBlocks ancestors, inclusive of n.
func (c *HeaderChain) medianTimePast(n *headerNode) time.Time {
	var timestamps []time.Time
	cur := n
	for i := 0; i < medianTimeBlocks && cur != nil; i++ {
		timestamps = append(timestamps, cur.header.Timestamp)
		cur = cur.parent
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })
	return timestamps[len(timestamps)/2]
}

// checkDifficultyRetarget enforces the standard Bitcoin retarget rule:
// every TargetTimespan/TargetTimePerBlock blocks (2016 on mainnet), the
// target is recomputed from the timespan of the prior
// interval; every other height must match the parent's bits exactly, save
// for chains that disable retargeting altogether (regtest).
func (c *HeaderChain) checkDifficultyRetarget(header wire.BlockHeader, parent *headerNode) error {
	if c.params.NoDifficultyAdjustment {
		return nil
	}

	height := parent.height + 1
	interval := uint32(c.params.TargetTimespan / c.params.TargetTimePerBlock)

	if height%interval != 0 {
		if header.Bits != parent.header.Bits {
			return fmt.Errorf("fsm: header at height %d changed difficulty outside a retarget boundary", height)
		}
		return nil
	}

	// Walk back interval-1 blocks from parent to find the start of the
	// just-completed interval.
	first := parent
	for i := uint32(0); i < interval-1 && first.parent != nil; i++ {
		first = first.parent
	}

	actualTimespan := parent.header.Timestamp.Sub(first.header.Timestamp)
	expected := adjustTimespan(actualTimespan, c.params.TargetTimespan)

	oldTarget := blockchain.CompactToBig(parent.header.Bits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(int64(expected/time.Second)))
	newTarget.Div(newTarget, big.NewInt(int64(c.params.TargetTimespan/time.Second)))

	powLimit := blockchain.CompactToBig(c.params.PowLimitBits)
	if newTarget.Cmp(powLimit) > 0 {
		newTarget = powLimit
	}

	if blockchain.BigToCompact(newTarget) != header.Bits {
		return fmt.Errorf("fsm: header at height %d has incorrect retarget difficulty", height)
	}
	return nil
}

// adjustTimespan clamps the actual timespan to [target/4, target*4], the
// standard Bitcoin retarget dampening rule.
func adjustTimespan(actual, target time.Duration) time.Duration {
	min := target / 4
	max := target * 4
	switch {
	case actual < min:
		return min
	case actual > max:
		return max
	default:
		return actual
	}
}

// calcWork converts a compact difficulty target into the amount of work
// represented by a block with that target: 2**256 / (target+1), the
// standard proof-of-work-as-work formula.
func calcWork(bits uint32) *big.Int {
	target := blockchain.CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	numerator := new(big.Int).Lsh(big.NewInt(1), 256)
	return numerator.Div(numerator, denom)
}
