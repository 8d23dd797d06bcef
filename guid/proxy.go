/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package guid

import "sync/atomic"

// Proxy is the local stand-in for a GUID whose home is not this PD
// (spec.md §4.2). Until the remote metadata clone lands, callers that need
// the object queue themselves (lock-free) on `head`; `register` closes the
// queue exactly once and drains it.
type Proxy struct {
	ptr  atomic.Value // holds the real metadata once registered; write-once
	head atomic.Pointer[node]
}

// node is one queued waiter. Req is opaque to the proxy itself -- the
// dispatcher decides what it means to "re-submit" a captured waiter
// (spec.md §4.2: "re-submit the carried message as a new, asynchronous
// processing action").
type node struct {
	next *node
	req  any
}

// closedMarker is a unique, never-dereferenced sentinel address standing in
// for REG_CLOSED; REG_OPEN is simply a nil head with room to grow.
var closedMarker = &node{}

func NewProxy() *Proxy { return &Proxy{} }

// Enqueue pushes req onto the waiter list if the proxy is still open. It
// returns false if the proxy has already closed, in which case the caller
// must resolve the GUID directly (the registration already happened, or is
// about to, and raced this call).
func (p *Proxy) Enqueue(req any) bool {
	for {
		old := p.head.Load()
		if old == closedMarker {
			return false
		}
		n := &node{next: old, req: req}
		if p.head.CompareAndSwap(old, n) {
			return true
		}
	}
}

// IsClosed reports whether the proxy's queue has already transitioned to
// REG_CLOSED (spec.md §8 invariant 3: proxy transition happens exactly once).
func (p *Proxy) IsClosed() bool { return p.head.Load() == closedMarker }

// Register publishes value as the proxy's resolved metadata, transitions
// the queue OPEN->CLOSED via a single CAS, and returns every waiter that had
// queued up in arrival order reversed (LIFO capture, oldest-pushed-last),
// matching spec.md §4.2: "capture old head, walk the captured list".
//
// Returns ok=false if some other goroutine already closed the proxy first
// (spec.md invariant: "once CLOSED, no further pushes occur" -- likewise no
// further closes).
func (p *Proxy) Register(value any) (waiters []any, ok bool) {
	for {
		old := p.head.Load()
		if old == closedMarker {
			return nil, false
		}
		if p.head.CompareAndSwap(old, closedMarker) {
			p.ptr.Store(box{v: value})
			// captured list is LIFO (most-recent push first); walk it to
			// produce waiters in that same order -- draining order among
			// waiters is unspecified by spec.md, only atomicity matters.
			for n := old; n != nil; n = n.next {
				waiters = append(waiters, n.req)
			}
			return waiters, true
		}
	}
}

// box avoids storing a bare nil interface in atomic.Value, which panics on
// Store with inconsistent concrete types across calls.
type box struct{ v any }

// Value returns the registered metadata, or (nil, false) if not yet set.
func (p *Proxy) Value() (any, bool) {
	v := p.ptr.Load()
	if v == nil {
		return nil, false
	}
	b := v.(box)
	return b.v, true
}
