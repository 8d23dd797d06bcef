/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package runlevel

import "sync"

// ShutdownBarrier implements spec.md §4.7's distributed quiescence barrier:
// a PD descends past USER_OK tear-down's final phase only once it has
// observed neighborCount+1 acks -- one from each neighbor's
// MGT_RL_NOTIFY(COMPUTE_OK, TEAR_DOWN|BARRIER), plus one the PD "sends
// itself" the moment it initiates shutdown locally.
type ShutdownBarrier struct {
	mu            sync.Mutex
	cond          *sync.Cond
	neighborCount int
	acks          int
	initiated     bool
	done          bool
}

func NewShutdownBarrier(neighborCount int) *ShutdownBarrier {
	b := &ShutdownBarrier{neighborCount: neighborCount}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// InitiateLocal records this PD's own shutdown decision as its first ack
// (spec.md §4.7 step 1: "notifies itself by incrementing its own ack
// counter"). Safe to call more than once; only the first call counts.
func (b *ShutdownBarrier) InitiateLocal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initiated {
		return
	}
	b.initiated = true
	b.recordAckLocked()
}

// RecordRemoteAck records one neighbor's MGT_RL_NOTIFY(COMPUTE_OK,
// TEAR_DOWN|BARRIER) ack. The pd dispatcher's MGT_RL_NOTIFY handler only
// decodes the message and does not call it, so with neighbors configured
// nothing outside tests feeds the barrier remote acks. If this PD
// has not yet initiated its own shutdown, handling asymmetry (spec.md
// §4.7: "if a remote notify arrives before our local shutdown was
// initiated... we locally initiate shutdown as if ocrShutdown() had been
// called on us") means this call also initiates local shutdown.
func (b *ShutdownBarrier) RecordRemoteAck() {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasInitiated := b.initiated
	b.initiated = true
	b.recordAckLocked()
	if !wasInitiated {
		b.recordAckLocked() // our own "notifies itself" ack, triggered late
	}
}

func (b *ShutdownBarrier) recordAckLocked() {
	b.acks++
	if b.acks >= b.neighborCount+1 {
		b.done = true
		b.cond.Broadcast()
	}
}

// Wait blocks until neighborCount+1 acks have been observed.
func (b *ShutdownBarrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.done {
		b.cond.Wait()
	}
}

// Acks reports the current ack count, exposed on the health endpoint
// (spec.md §4.7: "ack-counter and per-PD runlevel are exposed on the C9
// health endpoint").
func (b *ShutdownBarrier) Acks() (acks, needed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks, b.neighborCount + 1
}

func (b *ShutdownBarrier) IsDone() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}
