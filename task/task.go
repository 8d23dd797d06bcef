// Package task holds the in-memory records the policy domain and scheduler
// operate on: EDTs (event-driven tasks) and the four event flavors
// (spec.md §2 "Event", §4.2 "EDT lifecycle").
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package task

import (
	"sync"

	"github.com/open-ocr/ocr-core/cmn/atomic"
	"github.com/open-ocr/ocr-core/guid"
)

// MDState distinguishes the metadata's authoritative copy (MASTER, the
// home location) from a cached read-only copy elsewhere (GHOST).
type MDState uint8

const (
	MDMaster MDState = iota
	MDGhost
)

// EDT is the runtime record of one scheduled unit of work (spec.md §2
// GLOSSARY "EDT"). RegNodes/ResolvedDeps/UnkDbs track dependency resolution
// as DEP_SATISFY messages arrive, one slot at a time; the task becomes
// runnable once SlotSatisfiedCount reaches len(DepV).
type EDT struct {
	mu sync.Mutex

	GUID     guid.GUID
	Template guid.GUID
	ParamV   []uint64
	DepV     []guid.GUID

	RegNodes      []guid.Location // where each dep slot's value is homed
	ResolvedDeps  []guid.GUID     // resolved value GUIDs, parallel to DepV
	UnkDbs        map[int]bool    // slot index -> "datablock GUID not yet known"
	slotSatisfied atomic.Int32

	FrontierSlot int // spec.md's "frontier" optimization: first unresolved slot
	Hint         uint64
	MDState      MDState
	Func         string

	flags EDTFlags
}

// Template is the immutable shape an EDT's template GUID resolves to: the
// arg/dep counts a WORK_CREATE's ParamV/DepV are validated against before
// the EDT record is built (spec.md §4.5 WORK_CREATE: "fix paramc/depc from
// template").
type Template struct {
	ParamC int
	DepC   int
}

type EDTFlags uint8

const (
	EDTAborted EDTFlags = 1 << iota
	EDTRunning
	EDTFinished
)

func NewEDT(g guid.GUID, template guid.GUID, paramV []uint64, depV []guid.GUID, funcName string, hint uint64) *EDT {
	e := &EDT{
		GUID:         g,
		Template:     template,
		ParamV:       paramV,
		DepV:         depV,
		RegNodes:     make([]guid.Location, len(depV)),
		ResolvedDeps: make([]guid.GUID, len(depV)),
		UnkDbs:       make(map[int]bool, len(depV)),
		Func:         funcName,
		Hint:         hint,
		MDState:      MDMaster,
	}
	for i := range depV {
		e.UnkDbs[i] = depV[i] == guid.Nil
	}
	return e
}

// Satisfy records the value resolved for dep slot idx; returns true once
// every slot has been satisfied and the EDT is runnable (spec.md §4.2
// "DEP_SATISFY ... advances the frontier; the EDT becomes schedulable when
// the last slot resolves").
func (e *EDT) Satisfy(idx int, from guid.Location, value guid.GUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx < 0 || idx >= len(e.DepV) {
		return false
	}
	if e.ResolvedDeps[idx] != guid.Nil {
		return e.slotSatisfied.Load() == int32(len(e.DepV)) // already-satisfied slot, idempotent re-delivery
	}
	e.RegNodes[idx] = from
	e.ResolvedDeps[idx] = value
	delete(e.UnkDbs, idx)
	n := e.slotSatisfied.Inc()
	for e.FrontierSlot < len(e.DepV) && e.ResolvedDeps[e.FrontierSlot] != guid.Nil {
		e.FrontierSlot++
	}
	return int(n) == len(e.DepV)
}

func (e *EDT) IsRunnable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.slotSatisfied.Load()) == len(e.DepV)
}

func (e *EDT) SetFlag(f EDTFlags) {
	e.mu.Lock()
	e.flags |= f
	e.mu.Unlock()
}

func (e *EDT) HasFlag(f EDTFlags) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags&f != 0
}

// Kind enumerates the four event flavors of spec.md §2.
type Kind uint8

const (
	Once Kind = iota
	Sticky
	Latch
	Channel
)

// Event is the runtime record backing an ONCE/STICKY/LATCH/CHANNEL event
// GUID. ONCE and STICKY carry a single slot; LATCH carries a decrementing
// counter that satisfies its dependents only at zero; CHANNEL behaves like
// a sequence of ONCE satisfactions, one per registered waiter, and can be
// upgraded to a synchronous two-way call (spec.md §2 "Event").
type Event struct {
	mu sync.Mutex

	GUID  guid.GUID
	Kind  Kind
	Value guid.GUID // ONCE/STICKY: the satisfied value; unset (Nil) until fired

	latchCount atomic.Int32 // LATCH only

	waiters []chan guid.GUID // CHANNEL: one delivery per registered waiter
	fired   bool
}

func NewEvent(g guid.GUID, kind Kind, latchInit int32) *Event {
	e := &Event{GUID: g, Kind: kind}
	if kind == Latch {
		e.latchCount.Store(latchInit)
	}
	return e
}

// Satisfy fires the event with value. For LATCH it decrements first and
// only actually fires at zero; returns whether dependents should now be
// notified.
func (e *Event) Satisfy(value guid.GUID) (fire bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.Kind {
	case Latch:
		if e.latchCount.Dec() > 0 {
			return false
		}
		e.Value = value
		e.fired = true
		return true
	case Channel:
		e.Value = value
		if len(e.waiters) > 0 {
			w := e.waiters[0]
			e.waiters = e.waiters[1:]
			w <- value
		}
		return false // CHANNEL never "fires" globally; each waiter resolves individually
	default: // Once, Sticky
		if e.fired && e.Kind == Once {
			return false // ONCE tolerates at most one satisfaction
		}
		e.Value = value
		e.fired = true
		return true
	}
}

// Increment bumps a LATCH event's pending count before a new child EDT is
// shipped into its finish scope, so the matching decrement Satisfy performs
// on completion always has a corresponding increment (spec.md invariant 5:
// sum(incr) == sum(decr) at program end). A no-op on the other three kinds.
func (e *Event) Increment() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Kind == Latch {
		e.latchCount.Inc()
	}
}

// RegisterWaiter adds a CHANNEL waiter, to be delivered the next Satisfy
// call's value (spec.md §2: "CHANNEL ... can be upgraded to a synchronous
// two-way call" by the waiter blocking on this channel).
func (e *Event) RegisterWaiter() <-chan guid.GUID {
	ch := make(chan guid.GUID, 1)
	e.mu.Lock()
	e.waiters = append(e.waiters, ch)
	e.mu.Unlock()
	return ch
}

func (e *Event) IsFired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fired
}
