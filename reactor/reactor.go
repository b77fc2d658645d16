// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package reactor

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/lanternwallet/spvd/fsm"
)

// log is the package subsystem logger; silent until UseLogger is called.
var log = btclog.Disabled

// UseLogger sets the logger used by the package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

type readEvent struct {
	peer fsm.PeerID
	data []byte
	err  error
}

type dialResult struct {
	peer      fsm.PeerID
	conn      net.Conn
	err       error
	direction fsm.ConnDirection
}

// Reactor is the single goroutine that owns an fsm.FSM and every net.Conn
// feeding it: it is the sole caller of the FSM's inbound methods, so the
// FSM itself never needs a lock.
type Reactor struct {
	cfg     Config
	machine *fsm.FSM

	commands chan fsm.Command
	events   chan fsm.Event

	reads   chan readEvent
	dials   chan dialResult
	wakeups chan struct{}

	nextCandidate int

	quit chan struct{}
	wg   sync.WaitGroup
}

// New builds a Reactor driving machine, which must still be Start'd.
func New(cfg Config, machine *fsm.FSM) *Reactor {
	return &Reactor{
		cfg:      cfg,
		machine:  machine,
		commands: make(chan fsm.Command, 1024),
		events:   make(chan fsm.Event, 256),
		reads:    make(chan readEvent, 64),
		dials:    make(chan dialResult, 8),
		wakeups:  make(chan struct{}, 8),
		quit:     make(chan struct{}),
	}
}

// Commands returns the channel callers submit fsm.Commands on.
func (r *Reactor) Commands() chan<- fsm.Command { return r.commands }

// Events returns the channel the reactor forwards every fsm.Event onto.
// Callers must keep draining it.
func (r *Reactor) Events() <-chan fsm.Event { return r.events }

// Start brings the reactor up: the FSM is initialized, the run loop and
// peer-refresh loop are launched, and an optional listener is opened.
func (r *Reactor) Start() error {
	log.Infof("Starting reactor")

	r.machine.Initialize()
	r.forwardEvents(r.machine.Drain())

	if r.cfg.ListenAddr != "" {
		ln, err := net.Listen("tcp", r.cfg.ListenAddr)
		if err != nil {
			return err
		}
		r.wg.Add(1)
		go r.acceptLoop(ln)
	}

	r.wg.Add(1)
	go r.runLoop()

	return nil
}

// Stop shuts the reactor down, disconnecting every peer.
func (r *Reactor) Stop() {
	log.Infof("Stopping reactor")
	close(r.quit)
	r.wg.Wait()
}

// forwardEvents relays any Event outputs queued before the run loop starts
// (just the initial Ready event from Initialize).
func (r *Reactor) forwardEvents(outs []fsm.Output) {
	for _, o := range outs {
		if o.IsEvent() {
			select {
			case r.events <- o.Event:
			case <-r.quit:
			}
		}
	}
}

func (r *Reactor) acceptLoop(ln net.Listener) {
	defer r.wg.Done()
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-r.quit:
				return
			default:
				log.Warnf("Accept error: %v", err)
				continue
			}
		}
		tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
		if !ok {
			conn.Close()
			continue
		}
		id := fsm.NewPeerID(tcpAddr)
		select {
		case r.dials <- dialResult{peer: id, conn: conn, direction: fsm.Inbound}:
		case <-r.quit:
			conn.Close()
			return
		}
	}
}

// runLoop is the single goroutine that ever touches r.machine or conns: all
// FSM calls and conn read/write happen here.
func (r *Reactor) runLoop() {
	defer r.wg.Done()

	conns := make(map[fsm.PeerID]net.Conn)
	pending := make(map[fsm.PeerID]struct{})

	r.cfg.RefreshPeersTicker.Resume()
	defer r.cfg.RefreshPeersTicker.Stop()

	defer func() {
		for id, c := range conns {
			c.Close()
			delete(conns, id)
		}
	}()

	for {
		select {
		case <-r.quit:
			return

		case <-r.cfg.RefreshPeersTicker.Ticks():
			r.maintainOutboundConns(conns, pending)

		case cmd := <-r.commands:
			r.machine.Command(cmd)
			r.applyOutputs(r.machine.Drain(), conns, pending)

		case <-r.wakeups:
			r.machine.Wake()
			r.applyOutputs(r.machine.Drain(), conns, pending)

		case d := <-r.dials:
			delete(pending, d.peer)
			if d.err != nil {
				log.Debugf("Dial to %s failed: %v", d.peer, d.err)
				r.machine.Disconnected(d.peer, fsm.DialError(d.err))
				r.applyOutputs(r.machine.Drain(), conns, pending)
				continue
			}
			conns[d.peer] = d.conn
			r.wg.Add(1)
			go r.readLoop(d.peer, d.conn)
			if d.direction == fsm.Outbound {
				r.machine.Attempted(d.peer)
			}
			r.machine.Connected(d.peer, d.direction)
			r.applyOutputs(r.machine.Drain(), conns, pending)

		case ev := <-r.reads:
			if ev.err != nil {
				if c, ok := conns[ev.peer]; ok {
					c.Close()
					delete(conns, ev.peer)
				}
				r.machine.Disconnected(ev.peer, fsm.ConnectionError(ev.err))
				r.applyOutputs(r.machine.Drain(), conns, pending)
				continue
			}
			r.machine.ReceivedBytes(ev.peer, ev.data)
			r.applyOutputs(r.machine.Drain(), conns, pending)
		}
	}
}

// maintainOutboundConns asks the FSM to connect to fresh candidates until
// NumTargetOutbound outbound connections are in flight or established.
func (r *Reactor) maintainOutboundConns(conns map[fsm.PeerID]net.Conn, pending map[fsm.PeerID]struct{}) {
	needed := r.cfg.NumTargetOutbound - len(conns) - len(pending)
	if needed <= 0 || len(r.cfg.Bootstrap) == 0 {
		return
	}

	for i := 0; i < needed && i < len(r.cfg.Bootstrap); i++ {
		addr := r.cfg.Bootstrap[r.nextCandidate%len(r.cfg.Bootstrap)]
		r.nextCandidate++

		id := fsm.NewPeerID(addr)
		if _, ok := conns[id]; ok {
			continue
		}
		if _, ok := pending[id]; ok {
			continue
		}
		r.machine.Command(fsm.CommandConnect(addr))
		r.applyOutputs(r.machine.Drain(), conns, pending)
	}
}

func (r *Reactor) dial(id fsm.PeerID, addr *net.TCPAddr) {
	defer r.wg.Done()

	dial := r.cfg.Dial
	if dial == nil {
		dial = net.Dial
	}
	conn, err := dial("tcp", addr.String())
	select {
	case r.dials <- dialResult{peer: id, conn: conn, err: err, direction: fsm.Outbound}:
	case <-r.quit:
		if conn != nil {
			conn.Close()
		}
	}
}

func (r *Reactor) readLoop(id fsm.PeerID, conn net.Conn) {
	defer r.wg.Done()

	buf := make([]byte, r.cfg.ReadBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case r.reads <- readEvent{peer: id, data: data}:
			case <-r.quit:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Debugf("Read error from %s: %v", id, err)
			}
			select {
			case r.reads <- readEvent{peer: id, err: err}:
			case <-r.quit:
			}
			return
		}
	}
}

// applyOutputs carries out every Output the FSM queued, in order. A
// Disconnect output asks the reactor to tear the connection down and report
// back via machine.Disconnected, which itself queues a PeerDisconnected
// event; any such follow-on outputs are drained and applied recursively
// once the initial batch is done.
func (r *Reactor) applyOutputs(outs []fsm.Output, conns map[fsm.PeerID]net.Conn, pending map[fsm.PeerID]struct{}) {
	var disconnected bool

	for _, o := range outs {
		switch {
		case o.IsWrite():
			if c, ok := conns[o.Peer]; ok {
				if _, err := c.Write(o.Bytes); err != nil {
					log.Debugf("Write to %s failed: %v", o.Peer, err)
				}
			}

		case o.IsConnect():
			pending[o.Peer] = struct{}{}
			r.wg.Add(1)
			go r.dial(o.Peer, o.Peer.ToTCPAddr())

		case o.IsDisconnect():
			if c, ok := conns[o.Peer]; ok {
				c.Close()
				delete(conns, o.Peer)
			}
			r.machine.Disconnected(o.Peer, o.Reason)
			disconnected = true

		case o.IsWakeup():
			r.scheduleWakeup(o.Duration)

		case o.IsEvent():
			select {
			case r.events <- o.Event:
			case <-r.quit:
			}
		}
	}

	if disconnected {
		r.applyOutputs(r.machine.Drain(), conns, pending)
	}
}

func (r *Reactor) scheduleWakeup(after time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTimer(after)
		defer t.Stop()
		select {
		case <-t.C:
			select {
			case r.wakeups <- struct{}{}:
			case <-r.quit:
			}
		case <-r.quit:
		}
	}()
}
