/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

import (
	"sync"
	"sync/atomic"
)

// SendAnyID tags an asynchronous response the receiver should not try to
// match against a pending request (spec.md §4.3 "Correlation").
const SendAnyID uint64 = ^uint64(0)

// Correlator hands out fresh, monotonic msgIds for a single PD's outgoing
// two-way requests, and tracks which ones are still awaiting a response.
type Correlator struct {
	next    uint64
	pending sync.Map // msgID -> chan *Message
}

func NewCorrelator() *Correlator { return &Correlator{} }

// NewID allocates a fresh correlation id for an outgoing two-way request.
func (c *Correlator) NewID() uint64 {
	for {
		id := atomic.AddUint64(&c.next, 1)
		if id != SendAnyID {
			return id
		}
	}
}

// Register records that msgID is awaiting a response, returning the channel
// the caller should block on (classic style) or attach a continuation to
// (MT style, see strand.go).
func (c *Correlator) Register(msgID uint64) chan *Message {
	ch := make(chan *Message, 1)
	c.pending.Store(msgID, ch)
	return ch
}

// Resolve delivers resp to whichever Register call is waiting on its
// MsgID, returning false if nothing was pending (the response is either a
// duplicate, a stray, or tagged SendAnyID and meant to be delivered via
// poll/wait instead of correlation).
func (c *Correlator) Resolve(resp *Message) bool {
	if resp.MsgID == SendAnyID {
		return false
	}
	v, ok := c.pending.LoadAndDelete(resp.MsgID)
	if !ok {
		return false
	}
	ch := v.(chan *Message)
	ch <- resp
	return true
}

// Forget drops a pending registration without resolving it -- used when a
// two-way call's caller gives up (e.g. peer marked dead by the transport).
func (c *Correlator) Forget(msgID uint64) { c.pending.Delete(msgID) }
