// Package pd implements the policy-domain dispatcher (spec.md §4.5): the
// per-message-type routing table, placement hand-off to the scheduler, and
// finish-scope bookkeeping for DEP_SATISFY fan-in.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package pd

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/open-ocr/ocr-core/cmn"
	"github.com/open-ocr/ocr-core/cmn/nlog"
	"github.com/open-ocr/ocr-core/guid"
	"github.com/open-ocr/ocr-core/msgbus"
	"github.com/open-ocr/ocr-core/task"
)

// forwardTimeout bounds how long a CHANNEL-upgraded DEP_SATISFY (or any
// other two-way forward) blocks waiting on a remote home's ack.
const forwardTimeout = 5 * time.Second

// Scheduler is the subset of sched.Scheduler the dispatcher depends on --
// kept as an interface here so pd never imports sched, avoiding the import
// cycle that a direct dependency would create (sched's periodic update
// loop, in turn, notifies the dispatcher's peers through comm, not pd).
type Scheduler interface {
	NotifyReady(e *task.EDT, origin guid.Location)
	GetWork(requester guid.Location) (*task.EDT, error)
	// PlaceHint resolves where a newly-created EDT or DB should be placed
	// (spec.md §4.5 "Placement"), letting PRE_PROCESS_MSG override a
	// message's destLocation before routing runs.
	PlaceHint(hint uint64, origin guid.Location) guid.Location
}

// Domain is one running policy domain: its GUID provider, its message bus,
// the scheduler it hands runnable EDTs to, and the live EDT/Event tables.
type Domain struct {
	ID       guid.Location
	Provider *guid.Provider
	Bus      *msgbus.Bus
	Sched    Scheduler

	mu     sync.RWMutex
	edts   map[guid.GUID]*task.EDT
	events map[guid.GUID]*task.Event
	dbRefs map[guid.GUID]int32 // DB_ACQUIRE/DB_RELEASE refcounts, spec.md §4.5

	msgHandled   *prometheus.CounterVec
	msgCompleted *prometheus.CounterVec
}

func NewDomain(id guid.Location, provider *guid.Provider, bus *msgbus.Bus, sched Scheduler) *Domain {
	return &Domain{
		ID:       id,
		Provider: provider,
		Bus:      bus,
		Sched:    sched,
		edts:     make(map[guid.GUID]*task.EDT),
		events:   make(map[guid.GUID]*task.Event),
		dbRefs:   make(map[guid.GUID]int32),
		msgHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocr",
			Subsystem: "pd",
			Name:      "messages_handled_total",
			Help:      "policy messages processed, by type",
		}, []string{"type"}),
		msgCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocr",
			Subsystem: "pd",
			Name:      "messages_completed_total",
			Help:      "policy messages that finished local processing, by type",
		}, []string{"type"}),
	}
}

func (d *Domain) RegisterMetrics(reg *prometheus.Registry) {
	reg.MustRegister(d.msgHandled, d.msgCompleted)
}

// Dispatch routes an incoming message to its handler per spec.md §4.5's
// routing table, returning the response payload for TWOWAY callers (nil
// for one-way message types).
func (d *Domain) Dispatch(msg *msgbus.Message) (*msgbus.Message, error) {
	d.msgHandled.WithLabelValues(msg.Type.String()).Inc()
	d.preProcess(msg)
	resp, err := d.route(msg)
	d.postProcess(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "pd: dispatch %s", msg.Type)
	}
	return resp, nil
}

// preProcess is spec.md §4.5's PRE_PROCESS_MSG hook: for the two message
// types that mint a fresh GUID (WORK_CREATE, unlabeled DB_CREATE), it asks
// the scheduler where the new object should live and overwrites the
// message's destLocation before route() inspects it. Every other type's
// destination is dictated by the GUID it already names, not by placement.
func (d *Domain) preProcess(msg *msgbus.Message) {
	switch msg.Type {
	case msgbus.WorkCreate:
		var args msgbus.WorkCreateArgs
		if _, err := unmarshalInto(msg, &args); err == nil {
			msg.Header.Dest = d.Sched.PlaceHint(args.Hint, msg.Header.Src)
		}
	case msgbus.DbCreate:
		var args msgbus.MetadataCloneArgs
		if _, err := unmarshalInto(msg, &args); err == nil {
			if args.Target != guid.Nil {
				msg.Header.Dest = args.Target.Location() // labeled: label dictates home, not the scheduler
			} else {
				msg.Header.Dest = d.Sched.PlaceHint(0, msg.Header.Src)
			}
		}
	}
}

// postProcess is spec.md §4.5's POST_PROCESS_MSG hook: marks that msg
// finished local processing, independent of msgHandled's pre-dispatch
// count, so message-processing latency can be tracked against EDT
// execution time.
func (d *Domain) postProcess(msg *msgbus.Message) {
	d.msgCompleted.WithLabelValues(msg.Type.String()).Inc()
}

func (d *Domain) route(msg *msgbus.Message) (*msgbus.Message, error) {
	switch msg.Type {
	case msgbus.WorkCreate:
		return d.handleWorkCreate(msg)
	case msgbus.WorkDestroy, msgbus.EvtDestroy, msgbus.DbDestroy, msgbus.DbFree, msgbus.EdtTempDestroy:
		return d.routeDestroy(msg)
	case msgbus.DbCreate:
		return d.routeDbCreate(msg)
	case msgbus.DbAcquire:
		return nil, d.handleDbAcquire(msg)
	case msgbus.DbRelease:
		return nil, d.handleDbRelease(msg)
	case msgbus.EvtCreate:
		return d.routeEvtCreate(msg)
	case msgbus.DepSatisfy:
		return d.routeDepSatisfy(msg)
	case msgbus.GuidMetadataClone:
		return d.handleMetadataClone(msg)
	case msgbus.MetadataComm:
		return nil, d.handleMetadataComm(msg)
	case msgbus.MgtRlNotify:
		return nil, d.handleRlNotify(msg)
	default:
		return nil, cmn.NewErrUnknown("message type", msg.Type.String())
	}
}

// forward ships msg on to home via the bus: one-way for most types, or a
// blocking two-way call when twoWay is set -- the upgrade spec.md §4.5
// mandates for WORK_CREATE's ONCE/LATCH deps and for CHANNEL's DEP_SATISFY
// (spec.md §3 "Event record": "CHANNEL requires that satisfy on a remote
// producer be turned into a blocking two-way call, to preserve FIFO
// ordering across PDs").
func (d *Domain) forward(home guid.Location, msg *msgbus.Message, twoWay bool) (*msgbus.Message, error) {
	if twoWay {
		return d.Bus.SendTwoWay(home, msg, msgbus.ReqResponse, forwardTimeout)
	}
	return nil, d.Bus.SendMessage(home, msg, 0)
}

// hasLocalRepresentent reports whether g is tracked by this PD's own
// edt/event tables or installed in the GUID map, so a destroy can be
// applied locally even when g's encoded home is elsewhere (spec.md §4.5
// destroy row: "if no local representent, route to home; else local").
func (d *Domain) hasLocalRepresentent(g guid.GUID) bool {
	d.mu.RLock()
	_, isEdt := d.edts[g]
	_, isEvt := d.events[g]
	d.mu.RUnlock()
	if isEdt || isEvt {
		return true
	}
	v, _, _ := d.Provider.GetVal(g, guid.GetLocal)
	return v != nil
}

func (d *Domain) handleWorkCreate(msg *msgbus.Message) (*msgbus.Message, error) {
	var args msgbus.WorkCreateArgs
	if _, err := unmarshalInto(msg, &args); err != nil {
		return nil, err
	}

	paramc, depc := len(args.ParamV), len(args.DepV)
	if args.Template != guid.Nil {
		val, proxy, err := d.Provider.GetVal(args.Template, guid.GetFetch)
		if err != nil {
			if err == cmn.ErrPending && proxy != nil {
				proxy.Enqueue(msg) // parked; handleMetadataComm resubmits once the clone lands
			}
			return nil, err
		}
		if tmpl, ok := val.(*task.Template); ok {
			paramc, depc = tmpl.ParamC, tmpl.DepC
		}
	}
	if paramc != len(args.ParamV) || depc != len(args.DepV) {
		return nil, errors.Wrapf(cmn.ErrInval, "work_create: template expects paramc=%d depc=%d, got %d/%d",
			paramc, depc, len(args.ParamV), len(args.DepV))
	}

	if args.FinishLatch != guid.Nil {
		// Invariant 5 (sum(incr) == sum(decr)): the increment happens here,
		// synchronously, before this create is shipped anywhere -- local or
		// remote -- so the eventual completion's decrement always has a
		// matching increment already applied.
		d.mu.RLock()
		scope, ok := d.events[args.FinishLatch]
		d.mu.RUnlock()
		if ok {
			scope.Increment()
		} else {
			nlog.Warningf("pd: finish-scope %s not local to %s, parent latch not incremented", args.FinishLatch, d.ID)
		}
	}

	twoWay := false
	for _, dep := range args.DepV {
		if dep == guid.Nil {
			continue
		}
		switch dep.Kind() {
		case guid.KindEventOnce, guid.KindEventLatch:
			twoWay = true
		}
	}

	if msg.Header.Dest != d.ID {
		return d.forward(msg.Header.Dest, msg, twoWay)
	}

	g := d.Provider.Get(nil, guid.KindEDT, guid.Location(d.ID), guid.PropToRecord)
	e := task.NewEDT(g, args.Template, args.ParamV, args.DepV, args.FuncName, args.Hint)

	d.mu.Lock()
	d.edts[g] = e
	d.mu.Unlock()

	if len(args.DepV) == 0 {
		d.Sched.NotifyReady(e, d.ID)
		return nil, nil
	}
	// Seed already-resolved deps (a caller may pass concrete GUIDs rather
	// than placeholders for deps known up front).
	ready := false
	for i, dep := range args.DepV {
		if dep != guid.Nil {
			ready = e.Satisfy(i, d.ID, dep)
		}
	}
	if ready {
		d.Sched.NotifyReady(e, d.ID)
	}
	return nil, nil
}

func (d *Domain) routeDepSatisfy(msg *msgbus.Message) (*msgbus.Message, error) {
	var args msgbus.DepSatisfyArgs
	if _, err := unmarshalInto(msg, &args); err != nil {
		return nil, err
	}
	if home := args.Event.Location(); home != d.ID {
		return d.forward(home, msg, args.IsChannel)
	}
	return d.handleDepSatisfy(msg)
}

func (d *Domain) handleDepSatisfy(msg *msgbus.Message) (*msgbus.Message, error) {
	var args msgbus.DepSatisfyArgs
	h, err := unmarshalInto(msg, &args)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	e, ok := d.edts[args.Event]
	ev, evOk := d.events[args.Event]
	d.mu.RUnlock()

	switch {
	case ok:
		if e.Satisfy(int(args.Slot), msg.Header.Src, args.Value) {
			d.Sched.NotifyReady(e, d.ID)
		}
		return nil, nil
	case evOk:
		ev.Satisfy(args.Value)
		if args.IsChannel {
			// CHANNEL's blocking-call upgrade: the ack only goes out once
			// this satisfy has been applied, so a remote producer's next
			// send can't race ahead of it (spec.md §4.3 "Ordering
			// guarantees": "within a single CHANNEL event, satisfies are
			// delivered in the order they are issued by the sender").
			resp := &msgbus.DepSatisfyArgs{Event: args.Event, IsChannel: true}
			return reuseOrReallocate(msg, h, resp)
		}
		return nil, nil
	default:
		return nil, cmn.NewErrNotFound("edt or event", args.Event)
	}
}

func (d *Domain) routeEvtCreate(msg *msgbus.Message) (*msgbus.Message, error) {
	var args msgbus.DepSatisfyArgs // reused shape: Event doubles as an optional labeled target
	if _, err := unmarshalInto(msg, &args); err != nil {
		return nil, err
	}
	if args.Event != guid.Nil && args.Event.Location() != d.ID {
		return d.forward(args.Event.Location(), msg, false)
	}
	return nil, d.handleEvtCreate(msg)
}

func (d *Domain) handleEvtCreate(msg *msgbus.Message) error {
	var args msgbus.DepSatisfyArgs // reused shape: Event carries an optional label, Slot the kind, Value the latch init
	if _, err := unmarshalInto(msg, &args); err != nil {
		return err
	}
	kind := task.Kind(args.Slot)
	g := args.Event
	if g == guid.Nil {
		g = d.Provider.Get(nil, eventKindToGuidKind(kind), guid.Location(d.ID), guid.PropToRecord)
	}
	ev := task.NewEvent(g, kind, int32(args.Value))
	d.mu.Lock()
	d.events[g] = ev
	d.mu.Unlock()
	return nil
}

func (d *Domain) routeDestroy(msg *msgbus.Message) (*msgbus.Message, error) {
	var args msgbus.DepSatisfyArgs
	if _, err := unmarshalInto(msg, &args); err != nil {
		return nil, err
	}
	if home := args.Event.Location(); home != d.ID && !d.hasLocalRepresentent(args.Event) {
		return d.forward(home, msg, false)
	}
	return nil, d.handleDestroy(msg)
}

func (d *Domain) handleDestroy(msg *msgbus.Message) error {
	var args msgbus.DepSatisfyArgs
	if _, err := unmarshalInto(msg, &args); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.edts, args.Event)
	delete(d.events, args.Event)
	delete(d.dbRefs, args.Event)
	d.mu.Unlock()
	if err := d.Provider.Release(args.Event); err != nil {
		nlog.Warningf("pd: release %s on destroy: %v", args.Event, err)
	}
	return nil
}

func (d *Domain) routeDbCreate(msg *msgbus.Message) (*msgbus.Message, error) {
	if msg.Header.Dest != d.ID {
		return d.forward(msg.Header.Dest, msg, false)
	}
	return nil, d.handleDbCreate(msg)
}

func (d *Domain) handleDbCreate(msg *msgbus.Message) error {
	var args msgbus.MetadataCloneArgs
	if _, err := unmarshalInto(msg, &args); err != nil {
		return err
	}
	if args.Target != guid.Nil {
		// Labeled create at an already-known GUID: install directly if the
		// home check above kept this local; Register hands back any
		// waiters parked on the proxy for us to resubmit.
		d.resubmitWaiters(d.Provider.Register(args.Target, args.Blob))
		return nil
	}
	d.Provider.Get(args.Blob, guid.KindDB, guid.Location(d.ID), guid.PropToRecord)
	return nil
}

func (d *Domain) handleDbAcquire(msg *msgbus.Message) error {
	var args msgbus.DepSatisfyArgs
	if _, err := unmarshalInto(msg, &args); err != nil {
		return err
	}
	_, proxy, err := d.Provider.GetVal(args.Event, guid.GetFetch)
	if err == cmn.ErrPending && proxy != nil {
		proxy.Enqueue(msg) // parked; resubmitted once the clone lands
	}
	d.mu.Lock()
	d.dbRefs[args.Event]++
	d.mu.Unlock()
	return err // ErrPending here means the caller must tolerate an asynchronous completion, spec.md §4.5
}

func (d *Domain) handleDbRelease(msg *msgbus.Message) error {
	var args msgbus.DepSatisfyArgs
	if _, err := unmarshalInto(msg, &args); err != nil {
		return err
	}
	d.mu.Lock()
	n := d.dbRefs[args.Event] - 1
	if n <= 0 {
		delete(d.dbRefs, args.Event)
	} else {
		d.dbRefs[args.Event] = n
	}
	d.mu.Unlock()
	if n < 0 {
		return cmn.NewErrNotFound("db refcount", args.Event)
	}
	return nil
}

func (d *Domain) handleMetadataClone(msg *msgbus.Message) (*msgbus.Message, error) {
	var args msgbus.MetadataCloneArgs
	h, err := unmarshalInto(msg, &args)
	if err != nil {
		return nil, err
	}
	resp := &msgbus.MetadataCloneArgs{Target: args.Target, Blob: args.Blob}
	return reuseOrReallocate(msg, h, resp)
}

func (d *Domain) handleMetadataComm(msg *msgbus.Message) error {
	var args msgbus.MetadataCloneArgs
	if _, err := unmarshalInto(msg, &args); err != nil {
		return err
	}
	d.resubmitWaiters(d.Provider.Register(args.Target, args.Blob))
	return nil
}

// resubmitWaiters re-enters each parked request through the dispatcher as a
// fresh asynchronous action (spec.md §4.2: "re-submit the carried message
// as a new, asynchronous processing action"). Waiters that aren't a parked
// *msgbus.Message (e.g. Get()'s own bookkeeping use of Enqueue) have
// nothing to resubmit and are skipped.
func (d *Domain) resubmitWaiters(waiters []any) {
	for _, w := range waiters {
		pending, ok := w.(*msgbus.Message)
		if !ok {
			continue
		}
		go func(m *msgbus.Message) {
			resp, err := d.Dispatch(m)
			if err != nil {
				nlog.Warningf("pd: resubmit %s: %v", m.Header.Type, err)
				return
			}
			if resp == nil {
				return
			}
			if err := d.Bus.SendMessage(m.Header.Src, resp, 0); err != nil {
				nlog.Warningf("pd: resubmit response to %s: %v", m.Header.Src, err)
			}
		}(pending)
	}
}

func (d *Domain) handleRlNotify(msg *msgbus.Message) error {
	var args msgbus.RlNotifyArgs
	_, err := unmarshalInto(msg, &args)
	return err
}

func unmarshalInto(msg *msgbus.Message, p msgbus.Payload) (msgbus.Header, error) {
	if local, ok := msg.LocalPayload(); ok {
		// ModeDuplicate: the struct arrived by reference already.
		return msg.Header, copyLocal(local, p)
	}
	return msgbus.Unmarshal(msg.Main, msg.Addl, p)
}

func copyLocal(src, dst msgbus.Payload) error {
	b := src.Encode()
	return dst.Decode(b)
}

// reuseOrReallocate decides whether a response can be built in the
// request's own buffer (APPEND, if there's room) or needs a fresh one
// (spec.md §4.5 "response packaging: reuse the request buffer when it has
// spare capacity, else allocate").
func reuseOrReallocate(req *msgbus.Message, h msgbus.Header, resp msgbus.Payload) (*msgbus.Message, error) {
	h.Dir = msgbus.Response
	h.Type = resp.Type()
	spare := int(req.Header.BufferSize) - int(req.Header.UsefulSize)
	if spare >= len(resp.Encode()) {
		return msgbus.Marshal(h, resp, msgbus.ModeAppend, req.Main[:req.Header.BufferSize], 0)
	}
	return msgbus.Marshal(h, resp, msgbus.ModeFullCopy, nil, 0)
}

func eventKindToGuidKind(k task.Kind) guid.Kind {
	switch k {
	case task.Once:
		return guid.KindEventOnce
	case task.Sticky:
		return guid.KindEventSticky
	case task.Latch:
		return guid.KindEventLatch
	default:
		return guid.KindEventChannel
	}
}
