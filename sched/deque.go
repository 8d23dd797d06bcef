// Package sched implements the scheduler heuristic (spec.md §4.6): a
// per-context work-stealing deque, affinity-aware placement on
// NOTIFY_EDT_READY, and the GET_WORK pull algorithm.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package sched

import (
	"sync"

	"github.com/open-ocr/ocr-core/task"
)

// Deque is a double-ended queue of runnable EDTs in the Chase-Lev shape:
// the owning worker pushes and pops its own end ("bottom"), while other
// workers steal from the opposite end ("top"). Unlike the classic
// lock-free Chase-Lev deque (CAS-based, growable ring buffer), this one is
// mutex-backed -- same push-bottom/pop-bottom/steal-top contract, traded
// for straightforward correctness over single-writer lock freedom.
type Deque struct {
	mu    sync.Mutex
	items []*task.EDT
}

func NewDeque() *Deque { return &Deque{} }

// PushBottom is only ever called by the deque's owning worker.
func (d *Deque) PushBottom(e *task.EDT) {
	d.mu.Lock()
	d.items = append(d.items, e)
	d.mu.Unlock()
}

// PopBottom is only ever called by the deque's owning worker; LIFO, for
// locality with whatever that worker just finished.
func (d *Deque) PopBottom() *task.EDT {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return nil
	}
	e := d.items[n-1]
	d.items = d.items[:n-1]
	return e
}

// Steal is called by any other worker; FIFO, taking the oldest entry so a
// thief and the owner rarely contend for the same item.
func (d *Deque) Steal() *task.EDT {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return nil
	}
	e := d.items[0]
	d.items = d.items[1:]
	return e
}

func (d *Deque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
