// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"net"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// AddrSource identifies where a known address was learned from.
type AddrSource uint8

const (
	SourceDNS AddrSource = iota
	SourcePeer
	SourceUser
	SourceImported
)

// KnownAddress is an address-book entry: an endpoint plus provenance and
// freshness bookkeeping used for peer sampling.
type KnownAddress struct {
	Addr        PeerID
	Services    wire.ServiceFlag
	Source      AddrSource
	LearnedFrom PeerID // valid when Source == SourcePeer
	LastSuccess time.Time
	LastAttempt time.Time
}

// addrManager maintains the set of known peer endpoints, rejecting
// unroutable ones and sampling candidates for new outbound connections.
type addrManager struct {
	clock     fsmClock
	addrs     map[PeerID]*KnownAddress
	connected map[PeerID]struct{}
	bootstrap []PeerID
}

func newAddrManager(clk fsmClock, bootstrap []PeerID) *addrManager {
	return &addrManager{
		clock:     clk,
		addrs:     make(map[PeerID]*KnownAddress),
		connected: make(map[PeerID]struct{}),
		bootstrap: bootstrap,
	}
}

// insert adds or refreshes a known address. It is idempotent and rejects
// addresses that aren't routable unicast endpoints.
func (m *addrManager) insert(addr PeerID, source AddrSource, services wire.ServiceFlag, from PeerID) {
	if !isRoutable(addr) {
		return
	}
	existing, ok := m.addrs[addr]
	if !ok {
		m.addrs[addr] = &KnownAddress{
			Addr: addr, Services: services, Source: source, LearnedFrom: from,
		}
		return
	}
	existing.Services |= services
}

// markConnected/markDisconnected track which known addresses we currently
// hold a live connection to, so sample() can skip them.
func (m *addrManager) markConnected(addr PeerID)    { m.connected[addr] = struct{}{} }
func (m *addrManager) markDisconnected(addr PeerID) { delete(m.connected, addr) }

// recordAttempt timestamps a dial attempt against addr.
func (m *addrManager) recordAttempt(addr PeerID, now time.Time) {
	if ka, ok := m.addrs[addr]; ok {
		ka.LastAttempt = now
	}
}

// recordSuccess timestamps a successful negotiation against addr.
func (m *addrManager) recordSuccess(addr PeerID, now time.Time) {
	if ka, ok := m.addrs[addr]; ok {
		ka.LastSuccess = now
	}
}

// sample selects a peer we are not connected to, preferring ones that
// advertise every bit in required, tie-broken by oldest last-attempt. It
// returns false if the pool holds no eligible candidate.
func (m *addrManager) sample(required wire.ServiceFlag) (PeerID, bool) {
	var best *KnownAddress
	var bestEligible bool

	for _, ka := range m.addrs {
		if _, connected := m.connected[ka.Addr]; connected {
			continue
		}
		eligible := ka.Services&required == required

		switch {
		case best == nil:
			best, bestEligible = ka, eligible
		case eligible && !bestEligible:
			best, bestEligible = ka, eligible
		case eligible == bestEligible && ka.LastAttempt.Before(best.LastAttempt):
			best = ka
		}
	}

	if best == nil {
		return PeerID{}, false
	}
	return best.Addr, true
}

// depleted reports whether the manager holds no un-connected candidates at
// all, regardless of service bits.
func (m *addrManager) depleted() bool {
	for addr := range m.addrs {
		if _, connected := m.connected[addr]; !connected {
			return false
		}
	}
	return true
}

// isRoutable rejects non-routable, multicast, unspecified, documentation,
// and explicitly reserved ranges, per spec §3's Known-address invariant.
func isRoutable(id PeerID) bool {
	ip := id.ToTCPAddr().IP
	if ip == nil {
		return false
	}
	if ip.IsUnspecified() || ip.IsLoopback() || ip.IsMulticast() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() {
		return false
	}
	for _, reserved := range reservedRanges {
		if reserved.Contains(ip) {
			return false
		}
	}
	return true
}

// reservedRanges are allowlisted-out per spec: documentation ranges plus a
// handful of special-use blocks that never carry real Bitcoin peers.
var reservedRanges = mustParseCIDRs(
	"192.0.2.0/24",    // TEST-NET-1
	"198.51.100.0/24", // TEST-NET-2
	"203.0.113.0/24",  // TEST-NET-3
	"100.64.0.0/10",   // carrier-grade NAT
	"198.18.0.0/15",   // benchmarking
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}
