// Package comm implements the communication platform (spec.md §4.4): the
// boundary between a policy domain's msgbus and whatever actually moves
// bytes between locations. It owns a small pool of comm workers supervised
// by an errgroup, in the same run/wait/stop shape the teacher gives its
// background xactions (compare the tcbFactory/XactTCB run loop: spawn,
// Run(wg), block on completion, tear down on Close).
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package comm

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/open-ocr/ocr-core/cmn"
	"github.com/open-ocr/ocr-core/cmn/nlog"
	"github.com/open-ocr/ocr-core/guid"
	"github.com/open-ocr/ocr-core/msgbus"
)

// DefaultMaxMsgSize bounds a single wire message when NewPlatform is given
// no positive maximum. SendBytes and readFrame check every message against
// the platform's maximum and return cmn.ErrNoMemory for one that exceeds it.
const DefaultMaxMsgSize = 1 << 20

// Peer is how the platform reaches one neighbor location: a live net.Conn
// plus the framing needed to delimit messages on it.
type Peer struct {
	Loc  guid.Location
	Conn net.Conn
}

// Platform is the comm-worker pool for one policy domain. It pulls frames
// off every peer connection (the "pre-post-receive" strategy: one
// outstanding read per peer, resubmitted after each delivery, rather than
// spec.md's alternative "probe" strategy of polling for arrival) and feeds
// them to the Bus.
type Platform struct {
	self      guid.Location
	maxMsg    int
	bus       *msgbus.Bus
	mu        sync.RWMutex
	peers     map[guid.Location]*Peer
	outgoing  int // count of in-flight sends, bookkeeping only
	incoming  int // count of in-flight receives, bookkeeping only
	grp       *errgroup.Group
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewPlatform(self guid.Location, maxMsg int) *Platform {
	if maxMsg <= 0 {
		maxMsg = DefaultMaxMsgSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Platform{
		self:   self,
		maxMsg: maxMsg,
		peers:  make(map[guid.Location]*Peer),
		ctx:    ctx,
		cancel: cancel,
	}
	p.grp, p.ctx = errgroup.WithContext(ctx)
	return p
}

// Attach wires the platform to the bus it feeds; done separately from
// NewPlatform because Bus and Platform are mutually referential (Bus needs
// a Transport, Platform needs a Bus to dispatch into).
func (p *Platform) Attach(bus *msgbus.Bus) { p.bus = bus }

// AddPeer registers a connection and starts a comm worker pulling frames
// off it for the lifetime of the platform.
func (p *Platform) AddPeer(loc guid.Location, conn net.Conn) {
	peer := &Peer{Loc: loc, Conn: conn}
	p.mu.Lock()
	p.peers[loc] = peer
	p.mu.Unlock()

	p.grp.Go(func() error {
		return p.recvLoop(peer)
	})
}

// SendBytes implements msgbus.Transport: frame and write main+addl to the
// peer named by dest, asserting size against maxMsg per spec.md §4.4.
func (p *Platform) SendBytes(dest guid.Location, main, addl []byte, _ msgbus.PropertyFlags) error {
	if len(main)+len(addl) > p.maxMsg {
		return cmn.ErrNoMemory
	}
	p.mu.RLock()
	peer, ok := p.peers[dest]
	p.mu.RUnlock()
	if !ok {
		return cmn.NewErrNotFound("comm peer", dest)
	}
	p.mu.Lock()
	p.outgoing++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.outgoing--
		p.mu.Unlock()
	}()
	return writeFrame(peer.Conn, main, addl)
}

// recvLoop is one comm worker: read a frame, hand it to the bus, repeat.
// Errors on a single peer don't bring down the pool -- a neighbor dying is
// routine in a distributed runtime -- except ctx cancellation, which is how
// Close unwinds every worker through the errgroup.
func (p *Platform) recvLoop(peer *Peer) error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		default:
		}
		p.mu.Lock()
		p.incoming++
		p.mu.Unlock()
		main, addl, err := readFrame(peer.Conn, p.maxMsg)
		p.mu.Lock()
		p.incoming--
		p.mu.Unlock()
		if err != nil {
			nlog.Warningf("comm: peer %s: %v", peer.Loc, err)
			return nil
		}
		msg := &msgbus.Message{Main: main, Addl: addl}
		p.bus.DispatchIncoming(msg)
	}
}

// Close stops every comm worker and waits for them to return.
func (p *Platform) Close() error {
	p.cancel()
	for _, peer := range p.snapshotPeers() {
		_ = peer.Conn.Close()
	}
	return p.grp.Wait()
}

func (p *Platform) snapshotPeers() []*Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Peer, 0, len(p.peers))
	for _, peer := range p.peers {
		out = append(out, peer)
	}
	return out
}

// Stats returns a point-in-time snapshot of in-flight work. The stats
// package does not read it; no gauge exports these counts.
func (p *Platform) Stats() (outgoing, incoming int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.outgoing, p.incoming
}
