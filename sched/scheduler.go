/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/open-ocr/ocr-core/cmn"
	"github.com/open-ocr/ocr-core/cmn/debug"
	"github.com/open-ocr/ocr-core/cmn/nlog"
	"github.com/open-ocr/ocr-core/guid"
	"github.com/open-ocr/ocr-core/task"
)

// affinityMask selects the low byte of an EDT's placement hint as a
// preferred context index (spec.md §4.6 "NOTIFY_EDT_READY ... EDT_AFFINITY
// hints name a specific execution context").
const affinityMask = 0xFF

// OutRequestState is a context's last-known outbound-work-request status, as
// tracked by whichever peer most recently tried to steal from it (spec.md
// §3 "Scheduler context").
type OutRequestState uint8

const (
	NoRequest OutRequestState = iota
	AffRequest
	AffRequestFail
	NoAffRequest
)

// Context is one worker's scheduling context: its own local deque plus
// enough identity and pending-request bookkeeping for peers to find and
// steal from it (spec.md §3 "Scheduler context": "{location, deque,
// msgId_of_pending_reply, stealCursor, outWorkRequestPending ...,
// inWorkRequestPending, canAcceptWorkRequest, isChild}"). isChild marks a
// context as one of this PD's own local XE workers, as opposed to a
// neighbor CE reachable only through GET_WORK/NOTIFY_EDT_READY messages.
type Context struct {
	ID     int
	Loc    guid.Location
	deque  *Deque
	parked atomic.Bool

	mu                    sync.Mutex
	outWorkRequestPending OutRequestState
	inWorkRequestPending  bool
	canAcceptWorkRequest  bool
	isChild               bool
	msgIDOfPendingReply   uint64
}

func newContext(id int, loc guid.Location) *Context {
	return &Context{ID: id, Loc: loc, deque: NewDeque(), canAcceptWorkRequest: true}
}

func (c *Context) outState() OutRequestState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outWorkRequestPending
}

// tryBeginOutRequest enforces invariant 7 (spec.md §3: "at most one
// outstanding outbound work request per context"): it refuses to start a
// new request while AFF_REQUEST is already in flight.
func (c *Context) tryBeginOutRequest(want OutRequestState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outWorkRequestPending == AffRequest {
		return false
	}
	c.outWorkRequestPending = want
	return true
}

func (c *Context) setOutState(s OutRequestState) {
	c.mu.Lock()
	c.outWorkRequestPending = s
	c.mu.Unlock()
}

// promote makes a context previously marked AFF_REQUEST_FAIL eligible for a
// non-affinitized retry (spec.md §4.6 update loop: "contexts previously
// marked AFF_REQUEST_FAIL are now eligible to be re-asked, non-affinitized;
// promote them accordingly").
func (c *Context) promote() {
	c.mu.Lock()
	if c.outWorkRequestPending == AffRequestFail {
		c.outWorkRequestPending = NoAffRequest
	}
	c.mu.Unlock()
}

// CanAcceptWorkRequest reports whether a dead-peer detection by the
// transport has marked this context unreachable (spec.md §4.6
// "Cancellation / timeout": "the peer is marked non-receiving
// (canAcceptWorkRequest = false); the specific dead-detection is delegated
// to the transport").
func (c *Context) CanAcceptWorkRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canAcceptWorkRequest
}

// MarkUnreachable/MarkReachable are the transport's hooks for flipping
// canAcceptWorkRequest; no transport in this build calls them yet, so every
// context defaults to reachable.
func (c *Context) MarkUnreachable() {
	c.mu.Lock()
	c.canAcceptWorkRequest = false
	c.mu.Unlock()
}

func (c *Context) MarkReachable() {
	c.mu.Lock()
	c.canAcceptWorkRequest = true
	c.mu.Unlock()
}

func (c *Context) IsChild() bool { return c.isChild }

// VictimNotifier is how the scheduler tells a remote context it has
// outbound work to offer, batched by the periodic update loop (spec.md
// §4.6 "emit outbound requests to victims").
type VictimNotifier interface {
	NotifyVictim(ctx context.Context, from, to guid.Location, g guid.GUID) error
}

// Scheduler is one policy domain's scheduler heuristic: a fixed set of
// per-worker Contexts, an affinity-aware placement function, and the
// GET_WORK pull algorithm.
type Scheduler struct {
	mu               sync.RWMutex
	contexts         []*Context
	byLoc            map[guid.Location]*Context
	enforceAffinity  bool
	stealCursor      atomic.Uint64 // shared starting point for steal sweeps, for fairness across thieves
	notifier         VictimNotifier
	updateInterval   time.Duration

	grp    *errgroup.Group
	gctx   context.Context
	cancel context.CancelFunc
}

func NewScheduler(enforceAffinity bool, updateInterval time.Duration, notifier VictimNotifier) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		byLoc:           make(map[guid.Location]*Context),
		enforceAffinity: enforceAffinity,
		notifier:        notifier,
		updateInterval:  updateInterval,
		gctx:            ctx,
		cancel:          cancel,
	}
	s.grp, s.gctx = errgroup.WithContext(ctx)
	return s
}

// AddContext registers a local worker's scheduling context (isChild: true --
// spec.md §3's "each local XE worker").
func (s *Scheduler) AddContext(loc guid.Location) *Context {
	return s.addContext(loc, true)
}

// AddPeerContext registers a neighbor PD's scheduling context (isChild:
// false -- spec.md §3's "each neighbor CE"), reachable only through
// GET_WORK/NOTIFY_EDT_READY messages rather than direct deque access.
func (s *Scheduler) AddPeerContext(loc guid.Location) *Context {
	return s.addContext(loc, false)
}

func (s *Scheduler) addContext(loc guid.Location, isChild bool) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := newContext(len(s.contexts), loc)
	c.isChild = isChild
	s.contexts = append(s.contexts, c)
	s.byLoc[loc] = c
	return c
}

// PlaceHint resolves where a newly-created EDT or DB should be placed,
// without pushing anything onto a deque itself (spec.md §4.5 "Placement":
// PRE_PROCESS_MSG lets the scheduler override destLocation before WORK_CREATE
// or DB_CREATE is routed). Uses NotifyReady's hint rules; in the round-robin
// case it reads the cursor without advancing it, so it can name a different
// context than the one NotifyReady later pushes to.
func (s *Scheduler) PlaceHint(hint uint64, origin guid.Location) guid.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.contexts) == 0 {
		return origin
	}
	if s.enforceAffinity {
		idx := int(hint & affinityMask)
		if idx < len(s.contexts) {
			return s.contexts[idx].Loc
		}
	}
	if _, ok := s.byLoc[origin]; ok {
		return origin
	}
	idx := int(s.stealCursor.Load()) % len(s.contexts)
	return s.contexts[idx].Loc
}

// NotifyReady places a newly-runnable EDT onto a context's deque per
// spec.md §4.6's hint-based placement:
//   - EDT_AFFINITY (hint's low byte names a context index): place there if
//     that context exists and enforceAffinity is on.
//   - Otherwise EDT_SLOT_MAX_ACCESS/DB_AFFINITY-style fallback: push to the
//     origin context if it still exists, else round-robin.
func (s *Scheduler) NotifyReady(e *task.EDT, origin guid.Location) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.contexts) == 0 {
		return
	}
	if s.enforceAffinity {
		idx := int(e.Hint & affinityMask)
		if idx < len(s.contexts) {
			s.contexts[idx].deque.PushBottom(e)
			dequeDepth.WithLabelValues(ctxLabel(s.contexts[idx])).Set(float64(s.contexts[idx].deque.Len()))
			return
		}
		affRequestFailTotal.WithLabelValues("scheduler").Inc()
	}
	if c, ok := s.byLoc[origin]; ok {
		c.deque.PushBottom(e)
		dequeDepth.WithLabelValues(ctxLabel(c)).Set(float64(c.deque.Len()))
		return
	}
	// round-robin fallback: no affinity, no live origin context
	idx := int(s.stealCursor.Add(1)) % len(s.contexts)
	s.contexts[idx].deque.PushBottom(e)
	dequeDepth.WithLabelValues(ctxLabel(s.contexts[idx])).Set(float64(s.contexts[idx].deque.Len()))
}

// GetWork implements spec.md §4.6's pull algorithm: pop locally; failing
// that, sweep peer contexts for a steal in two passes -- first victims not
// already known-exhausted for this affinitized round, marking a miss
// AFF_REQUEST_FAIL; then victims the update loop has since promoted back to
// NO_AFF_REQUEST, asked non-affinitized (spec.md §4.6 end-to-end scenario
// 6) -- and on a total miss, park. With enforceAffinity on, no steal is
// attempted: a context runs only what was placed on its own deque.
func (s *Scheduler) GetWork(requester guid.Location) (*task.EDT, error) {
	s.mu.RLock()
	self, ok := s.byLoc[requester]
	contexts := append([]*Context(nil), s.contexts...)
	s.mu.RUnlock()
	if !ok {
		return nil, cmn.NewErrNotFound("scheduler context", requester)
	}

	if e := self.deque.PopBottom(); e != nil {
		dequeDepth.WithLabelValues(ctxLabel(self)).Set(float64(self.deque.Len()))
		return e, nil
	}

	n := len(contexts)
	if n > 1 && !s.enforceAffinity {
		start := int(s.stealCursor.Add(1)) % n

		for i := 0; i < n; i++ {
			victim := contexts[(start+i)%n]
			if victim == self || !victim.CanAcceptWorkRequest() || victim.outState() != NoRequest {
				continue // already mid-flight, known-exhausted, or awaiting promotion
			}
			if !victim.tryBeginOutRequest(AffRequest) {
				continue // invariant 7: a request to this victim is already in flight
			}
			if e := victim.deque.Steal(); e != nil {
				victim.setOutState(NoRequest)
				stealTotal.WithLabelValues(ctxLabel(self)).Inc()
				dequeDepth.WithLabelValues(ctxLabel(victim)).Set(float64(victim.deque.Len()))
				return e, nil
			}
			victim.setOutState(AffRequestFail)
			affRequestFailTotal.WithLabelValues(ctxLabel(victim)).Inc()
		}

		for i := 0; i < n; i++ {
			victim := contexts[(start+i)%n]
			if victim == self || !victim.CanAcceptWorkRequest() || victim.outState() != NoAffRequest {
				continue
			}
			if !victim.tryBeginOutRequest(NoAffRequest) {
				continue
			}
			if e := victim.deque.Steal(); e != nil {
				victim.setOutState(NoRequest)
				stealTotal.WithLabelValues(ctxLabel(self)).Inc()
				dequeDepth.WithLabelValues(ctxLabel(victim)).Set(float64(victim.deque.Len()))
				return e, nil
			}
			victim.setOutState(NoRequest)
		}
	}

	// total miss: mark the context parked and return ErrPending; GetWork
	// itself neither sleeps nor spins (spec.md §4.6 "park/sleep on total
	// miss").
	self.parked.Store(true)
	parkTotal.WithLabelValues(ctxLabel(self)).Inc()
	return nil, cmn.ErrPending
}

// RunUpdateLoop periodically sweeps every context for outbound steal
// offers to advertise to idle peers, sending the notifications concurrently
// through an errgroup, as the comm platform runs its receive loops (spec.md §4.6 "emit
// outbound requests to victims").
func (s *Scheduler) RunUpdateLoop(ctx context.Context) error {
	if s.updateInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.gctx.Done():
			return nil
		case <-ticker.C:
			s.advertiseOnce(ctx)
		}
	}
}

func (s *Scheduler) advertiseOnce(ctx context.Context) {
	s.mu.RLock()
	contexts := append([]*Context(nil), s.contexts...)
	s.mu.RUnlock()

	// Every tick, contexts stuck in AFF_REQUEST_FAIL since the last round
	// get promoted to NO_AFF_REQUEST so the next GetWork sweep can retry
	// them non-affinitized (spec.md §4.6 update loop).
	for _, c := range contexts {
		c.promote()
	}

	if s.notifier == nil {
		return
	}

	grp, gctx := errgroup.WithContext(ctx)
	for _, c := range contexts {
		if !c.parked.Load() {
			continue
		}
		c := c
		grp.Go(func() error {
			for _, peer := range contexts {
				if peer == c || peer.deque.Len() == 0 {
					continue
				}
				if e := peer.deque.Steal(); e != nil {
					c.deque.PushBottom(e)
					c.parked.Store(false)
					if err := s.notifier.NotifyVictim(gctx, peer.Loc, c.Loc, e.GUID); err != nil {
						nlog.Warningf("sched: notify victim %s: %v", c.Loc, err)
					}
					return nil
				}
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		nlog.Warningln(err)
	}
}

// Shutdown stops the update loop and releases scheduler resources.
func (s *Scheduler) Shutdown() {
	s.cancel()
	debug.Assert(s.grp != nil, "scheduler never started")
	_ = s.grp.Wait()
}

func ctxLabel(c *Context) string {
	return c.Loc.String()
}
